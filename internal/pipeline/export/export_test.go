package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/driftline/argopipe/internal/domain/model"
	"github.com/driftline/argopipe/internal/pipeline/export"
	"github.com/driftline/argopipe/internal/pipeline/preprocess"
	"github.com/driftline/argopipe/internal/pipeline/trace"
	"github.com/driftline/argopipe/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	_ = logger.SetLevelString("error")
	os.Exit(m.Run())
}

func sampleResult() *preprocess.Result {
	return &preprocess.Result{
		Observations: []model.Observation{
			{ProfileID: "1901234_001", Pressure: 5, Parameter: "TEMP", Value: 15.0, Flag: "1", Mode: model.ModeRealtime},
			{ProfileID: "1901234_001", Pressure: 10, Parameter: "TEMP", Value: 14.5, Flag: "3", Mode: model.ModeRealtime},
		},
		Summaries: []model.ProfileSummary{
			{
				ProfileID:  "1901234_001",
				Platform:   "1901234",
				Cycle:      1,
				Direction:  "A",
				Timestamp:  time.Date(2018, time.June, 14, 12, 0, 0, 0, time.UTC),
				Latitude:   -40.1,
				Longitude:  72.3,
				PositionQC: "1",
				Stats:      map[string]model.ParamStats{"TEMP": {Count: 2, Min: 14.5, Max: 15.0}},
			},
		},
		Quality: model.QualityReport{
			SourcePath: "R1901234_001.nc",
			Verdict:    model.VerdictPass,
			Accepted:   1,
			Flagged:    1,
			Rejected:   map[string]int{},
		},
	}
}

func TestExportCSV(t *testing.T) {
	Convey("Given a preprocessing result and an output directory", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		e := export.New(dir)
		tr := trace.New("R1901234_001")
		tr.Note("sample decision", nil)

		Convey("When exporting", func() {
			arts, err := e.Export(ctx, "R1901234_001", sampleResult(), tr)
			So(err, ShouldBeNil)

			Convey("Then all four artifacts should exist under their documented names", func() {
				So(filepath.Base(arts.Observations), ShouldEqual, "R1901234_001_observations.csv")
				So(filepath.Base(arts.Profiles), ShouldEqual, "R1901234_001_profiles.csv")
				So(filepath.Base(arts.Quality), ShouldEqual, "R1901234_001_quality.json")
				So(filepath.Base(arts.Processing), ShouldEqual, "R1901234_001_processing.json")
				for _, p := range []string{arts.Observations, arts.Profiles, arts.Quality, arts.Processing} {
					_, statErr := os.Stat(p)
					So(statErr, ShouldBeNil)
				}
			})

			Convey("Then no temporary files should be left behind", func() {
				entries, readErr := os.ReadDir(dir)
				So(readErr, ShouldBeNil)
				for _, entry := range entries {
					So(strings.HasPrefix(entry.Name(), ".tmp-"), ShouldBeFalse)
				}
			})

			Convey("Then the observation table should hold a header plus one row per value", func() {
				f, openErr := os.Open(arts.Observations)
				So(openErr, ShouldBeNil)
				defer f.Close()
				rows, csvErr := csv.NewReader(f).ReadAll()
				So(csvErr, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)
				So(rows[0][0], ShouldEqual, "profile_id")
				So(rows[1], ShouldResemble, []string{"1901234_001", "5", "TEMP", "15", "1", "R", "false"})
			})

			Convey("Then the profile table should render stats as JSON", func() {
				f, openErr := os.Open(arts.Profiles)
				So(openErr, ShouldBeNil)
				defer f.Close()
				rows, csvErr := csv.NewReader(f).ReadAll()
				So(csvErr, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[1][4], ShouldEqual, "2018-06-14T12:00:00Z")
				So(rows[1][8], ShouldContainSubstring, `"TEMP"`)
			})

			Convey("Then the quality report should carry the file id", func() {
				data, readErr := os.ReadFile(arts.Quality)
				So(readErr, ShouldBeNil)
				var q model.QualityReport
				So(json.Unmarshal(data, &q), ShouldBeNil)
				So(q.FileID, ShouldEqual, "R1901234_001")
				So(q.Verdict, ShouldEqual, model.VerdictPass)
			})

			Convey("Then the processing log should carry the recorded entries", func() {
				data, readErr := os.ReadFile(arts.Processing)
				So(readErr, ShouldBeNil)
				var plog trace.Log
				So(json.Unmarshal(data, &plog), ShouldBeNil)
				So(plog.FileID, ShouldEqual, "R1901234_001")
				So(plog.RunID, ShouldNotBeEmpty)
				So(plog.Entries, ShouldHaveLength, 1)
			})
		})
	})
}

func TestExportIdempotence(t *testing.T) {
	Convey("Given the same result exported twice", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		e := export.New(dir)

		first, err := e.Export(ctx, "repeat", sampleResult(), trace.New("repeat"))
		So(err, ShouldBeNil)
		obs1, err := os.ReadFile(first.Observations)
		So(err, ShouldBeNil)
		prof1, err := os.ReadFile(first.Profiles)
		So(err, ShouldBeNil)

		Convey("When exporting again over the same directory", func() {
			second, err := e.Export(ctx, "repeat", sampleResult(), trace.New("repeat"))
			So(err, ShouldBeNil)

			Convey("Then the table artifacts should be byte-identical", func() {
				obs2, readErr := os.ReadFile(second.Observations)
				So(readErr, ShouldBeNil)
				So(bytes.Equal(obs1, obs2), ShouldBeTrue)

				prof2, readErr := os.ReadFile(second.Profiles)
				So(readErr, ShouldBeNil)
				So(bytes.Equal(prof1, prof2), ShouldBeTrue)
			})
		})
	})
}

func TestExportArrow(t *testing.T) {
	Convey("Given an exporter in Arrow format", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		e := export.New(dir, export.WithFormat(export.FormatArrow))

		Convey("When exporting", func() {
			arts, err := e.Export(ctx, "R1901234_001", sampleResult(), trace.New("R1901234_001"))
			So(err, ShouldBeNil)

			Convey("Then the observation table should be a readable IPC file", func() {
				So(filepath.Base(arts.Observations), ShouldEqual, "R1901234_001_observations.arrow")

				f, openErr := os.Open(arts.Observations)
				So(openErr, ShouldBeNil)
				defer f.Close()

				reader, ipcErr := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
				So(ipcErr, ShouldBeNil)
				defer reader.Close()

				So(reader.NumRecords(), ShouldEqual, 1)
				record, recErr := reader.Record(0)
				So(recErr, ShouldBeNil)
				So(record.NumRows(), ShouldEqual, int64(2))
				So(record.NumCols(), ShouldEqual, int64(7))
			})
		})
	})
}

func TestExportUnknownFormat(t *testing.T) {
	Convey("Given an exporter with an unsupported format", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		e := export.New(dir, export.WithFormat(export.Format("parquet")))

		Convey("When exporting", func() {
			_, err := e.Export(ctx, "bad", sampleResult(), trace.New("bad"))

			Convey("Then it should fail with the unknown-format sentinel", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, export.ErrUnknownFormat), ShouldBeTrue)
			})
		})
	})
}

func TestExportEmptyResult(t *testing.T) {
	Convey("Given a result with no retained observations", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		e := export.New(dir)
		res := &preprocess.Result{
			Quality: model.QualityReport{Verdict: model.VerdictFail, Rejected: map[string]int{}},
		}

		Convey("When exporting", func() {
			arts, err := e.Export(ctx, "empty", res, trace.New("empty"))
			So(err, ShouldBeNil)

			Convey("Then header-only tables should still be written", func() {
				f, openErr := os.Open(arts.Observations)
				So(openErr, ShouldBeNil)
				defer f.Close()
				rows, csvErr := csv.NewReader(f).ReadAll()
				So(csvErr, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
			})
		})
	})
}
