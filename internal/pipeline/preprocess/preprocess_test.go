package preprocess_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/driftline/argopipe/internal/adapters/ncfile"
	"github.com/driftline/argopipe/internal/domain/model"
	"github.com/driftline/argopipe/internal/domain/qc"
	"github.com/driftline/argopipe/internal/pipeline/explorer"
	"github.com/driftline/argopipe/internal/pipeline/preprocess"
	"github.com/driftline/argopipe/internal/pipeline/trace"
	"github.com/driftline/argopipe/internal/pipeline/validator"
	"github.com/driftline/argopipe/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	_ = logger.SetLevelString("error")
	os.Exit(m.Run())
}

// coreFixture builds a single-profile core file with one measured parameter
// (TEMP) over the given depth levels, flagged per the flags string.
func coreFixture(levels int, flags string) *ncfile.MemDataset {
	pres := make([]float64, levels)
	temp := make([]float64, levels)
	for i := 0; i < levels; i++ {
		pres[i] = float64((i + 1) * 5)
		temp[i] = 15.0 - float64(i)*0.5
	}
	return ncfile.NewMem("R1901234_001.nc").
		AddDimension("N_PROF", 1).
		AddDimension("N_LEVELS", levels).
		AddChars("PLATFORM_NUMBER", []string{"1901234 "}).
		AddChars("DATA_MODE", []string{"R"}).
		AddVector("CYCLE_NUMBER", []float64{1}).
		AddChars("DIRECTION", []string{"A"}).
		AddVector("JULD", []float64{25000.5}).
		AddVector("LATITUDE", []float64{-40.1}).
		AddVector("LONGITUDE", []float64{72.3}).
		AddChars("POSITION_QC", []string{"1"}).
		AddMatrix("PRES", [][]float64{pres}).
		AddMatrix("TEMP", [][]float64{temp}).
		AddChars("TEMP_QC", []string{flags})
}

func run(ds *ncfile.MemDataset, opts ...preprocess.Option) (*preprocess.Result, *trace.Context, error) {
	ctx := context.Background()
	tr := trace.New("test")
	schema, err := explorer.New().Explore(ctx, ds, tr)
	So(err, ShouldBeNil)
	vrep, err := validator.New().Validate(ctx, ds, schema, tr)
	So(err, ShouldBeNil)
	res, err := preprocess.New(opts...).Run(ctx, ds, schema, vrep, tr)
	return res, tr, err
}

func TestCleanProfile(t *testing.T) {
	Convey("Given a single profile with 10 depth levels, all flagged good", t, func() {
		ds := coreFixture(10, "1111111111")

		Convey("When preprocessing", func() {
			res, _, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then every level should yield one observation", func() {
				So(res.Observations, ShouldHaveLength, 10)
				for _, obs := range res.Observations {
					So(obs.Parameter, ShouldEqual, "TEMP")
					So(obs.ProfileID, ShouldEqual, "1901234_001")
					So(obs.Mode, ShouldEqual, model.ModeRealtime)
					So(obs.Adjusted, ShouldBeFalse)
				}
			})

			Convey("Then one profile summary should be built", func() {
				So(res.Summaries, ShouldHaveLength, 1)
				s := res.Summaries[0]
				So(s.Platform, ShouldEqual, "1901234")
				So(s.Cycle, ShouldEqual, 1)
				So(s.Direction, ShouldEqual, "A")
				So(s.Latitude, ShouldEqual, -40.1)
				So(s.PositionQC, ShouldEqual, "1")
				So(s.Stats["TEMP"].Count, ShouldEqual, 10)
				So(s.Stats["TEMP"].Max, ShouldEqual, 15.0)
				So(s.Stats["TEMP"].Min, ShouldEqual, 10.5)
			})

			Convey("Then the quality report should count all values as accepted", func() {
				So(res.Quality.Accepted, ShouldEqual, 10)
				So(res.Quality.Flagged, ShouldEqual, 0)
				So(res.Quality.Rejected, ShouldBeEmpty)
				So(res.Quality.Verdict, ShouldEqual, model.VerdictPass)
			})
		})
	})
}

func TestRejectedFlags(t *testing.T) {
	Convey("Given a profile with two values flagged bad", t, func() {
		ds := coreFixture(10, "1141111411")

		Convey("When preprocessing", func() {
			res, tr, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then the bad values should be excluded", func() {
				So(res.Observations, ShouldHaveLength, 8)
				So(res.Quality.Rejected["rejected quality flag"], ShouldEqual, 2)
			})

			Convey("Then the exclusion should be traced with its count", func() {
				found := false
				for _, e := range tr.Entries() {
					if e.Kind == trace.KindExclusion && e.Fields["reason"] == "rejected quality flag" {
						found = true
						So(e.Fields["count"], ShouldEqual, "2")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestReviewFlags(t *testing.T) {
	Convey("Given a profile with one review-class flag", t, func() {
		ds := coreFixture(5, "11311")

		Convey("When preprocessing with the default policy", func() {
			res, _, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then the review value should be retained and counted as flagged", func() {
				So(res.Observations, ShouldHaveLength, 5)
				So(res.Quality.Accepted, ShouldEqual, 4)
				So(res.Quality.Flagged, ShouldEqual, 1)
			})
		})

		Convey("When preprocessing with review retention switched off", func() {
			res, _, err := run(ds, preprocess.WithPolicy(qc.NewPolicy(qc.WithIncludeReview(false))))
			So(err, ShouldBeNil)

			Convey("Then the review value should be excluded", func() {
				So(res.Observations, ShouldHaveLength, 4)
				So(res.Quality.Rejected["review flag excluded"], ShouldEqual, 1)
			})
		})
	})
}

func TestAdjustedVariantSelection(t *testing.T) {
	Convey("Given a delayed-mode profile carrying adjusted variants", t, func() {
		ds := coreFixture(3, "111")
		ds.AddChars("DATA_MODE", []string{"D"})
		ds.AddMatrix("PRES_ADJUSTED", [][]float64{{5, 10, 15}})
		ds.AddMatrix("TEMP_ADJUSTED", [][]float64{{14.9, 14.4, 13.9}})
		ds.AddChars("TEMP_ADJUSTED_QC", []string{"111"})

		Convey("When preprocessing", func() {
			res, tr, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then adjusted values should be selected", func() {
				So(res.Observations, ShouldHaveLength, 3)
				So(res.Observations[0].Value, ShouldEqual, 14.9)
				So(res.Observations[0].Adjusted, ShouldBeTrue)
				So(res.Observations[0].Mode, ShouldEqual, model.ModeDelayed)
			})

			Convey("Then the selection should be traced without fallback", func() {
				So(tr.CountKind(trace.KindFallback), ShouldEqual, 0)
				So(tr.CountKind(trace.KindVariantSelection), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestRawFallbackLoggedOncePerParameter(t *testing.T) {
	Convey("Given a delayed-mode profile with no adjusted variants declared", t, func() {
		ds := coreFixture(4, "1111")
		ds.AddChars("DATA_MODE", []string{"D"})
		ds.AddMatrix("PSAL", [][]float64{{35.1, 35.2, 35.3, 35.4}})
		ds.AddChars("PSAL_QC", []string{"1111"})

		Convey("When preprocessing", func() {
			res, tr, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then raw values should still be used", func() {
				So(res.Observations, ShouldHaveLength, 8)
				for _, obs := range res.Observations {
					So(obs.Adjusted, ShouldBeFalse)
				}
			})

			Convey("Then the fallback should be recorded once per parameter", func() {
				// PRES, TEMP, PSAL all lack adjusted variants.
				So(tr.CountKind(trace.KindFallback), ShouldEqual, 3)
			})
		})
	})
}

func TestParameterDataModeOverride(t *testing.T) {
	Convey("Given a real-time file whose TEMP column is delayed-mode", t, func() {
		ds := coreFixture(3, "111")
		// Parameter order is PRES, TEMP.
		ds.AddChars("PARAMETER_DATA_MODE", []string{"RD"})
		ds.AddMatrix("TEMP_ADJUSTED", [][]float64{{14.9, 14.4, 13.9}})
		ds.AddChars("TEMP_ADJUSTED_QC", []string{"111"})

		Convey("When preprocessing", func() {
			res, _, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then the column override should select the adjusted variant", func() {
				So(res.Observations, ShouldHaveLength, 3)
				So(res.Observations[0].Value, ShouldEqual, 14.9)
				So(res.Observations[0].Adjusted, ShouldBeTrue)
				So(res.Observations[0].Mode, ShouldEqual, model.ModeDelayed)
			})
		})
	})
}

func TestCorruptedPlatformField(t *testing.T) {
	Convey("Given a file whose platform field holds non-printable bytes", t, func() {
		ds := coreFixture(3, "111")
		ds.AddChars("PLATFORM_NUMBER", []string{"\x01\x02\x03"})

		Convey("When preprocessing", func() {
			res, tr, err := run(ds)

			Convey("Then processing should complete with the sentinel platform", func() {
				So(err, ShouldBeNil)
				So(res.Summaries, ShouldHaveLength, 1)
				So(res.Summaries[0].Platform, ShouldEqual, preprocess.SentinelPlatform)
				So(res.Observations, ShouldHaveLength, 3)
			})

			Convey("Then the decode failure should be traced", func() {
				So(tr.CountKind(trace.KindDecodeFailure), ShouldEqual, 1)
			})
		})
	})
}

func TestDuplicateDepths(t *testing.T) {
	Convey("Given a profile reporting the same depth twice", t, func() {
		ds := coreFixture(3, "111")
		ds.AddMatrix("PRES", [][]float64{{5, 5, 10}})

		Convey("When preprocessing", func() {
			res, _, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then only the first value at each depth should survive", func() {
				So(res.Observations, ShouldHaveLength, 2)
				So(res.Observations[0].Value, ShouldEqual, 15.0)
				So(res.Quality.Rejected["duplicate depth"], ShouldEqual, 1)
			})
		})
	})
}

func TestInvalidPosition(t *testing.T) {
	Convey("Given a profile with a fill-value latitude", t, func() {
		ds := coreFixture(4, "1111")
		ds.AddVector("LATITUDE", []float64{99999.0})

		Convey("When preprocessing", func() {
			res, _, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then all its values should be excluded and no summary built", func() {
				So(res.Observations, ShouldBeEmpty)
				So(res.Summaries, ShouldBeEmpty)
				So(res.Quality.Rejected["invalid position"], ShouldEqual, 4)
			})
		})
	})
}

func TestOutOfRangeValues(t *testing.T) {
	Convey("Given a profile with one physically impossible temperature", t, func() {
		ds := coreFixture(3, "111")
		ds.AddMatrix("TEMP", [][]float64{{15.0, 55.0, 14.0}})

		Convey("When preprocessing", func() {
			res, _, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then the impossible value should be excluded", func() {
				So(res.Observations, ShouldHaveLength, 2)
				So(res.Quality.Rejected["out of range"], ShouldEqual, 1)
			})
		})
	})
}

func TestFillValuesSkippedSilently(t *testing.T) {
	Convey("Given a profile padded with fill values", t, func() {
		ds := coreFixture(4, "1111")
		ds.AddMatrix("TEMP", [][]float64{{15.0, 99999.0, 14.0, 99999.0}})

		Convey("When preprocessing", func() {
			res, _, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then holes should be skipped without counting as exclusions", func() {
				So(res.Observations, ShouldHaveLength, 2)
				So(res.Quality.Rejected, ShouldBeEmpty)
			})
		})
	})
}

func TestMissingCoordinateVariable(t *testing.T) {
	Convey("Given a file with no latitude variable at all", t, func() {
		ds := ncfile.NewMem("R1901234_001.nc").
			AddDimension("N_PROF", 1).
			AddVector("JULD", []float64{25000.5}).
			AddVector("LONGITUDE", []float64{72.3}).
			AddMatrix("PRES", [][]float64{{5}}).
			AddMatrix("TEMP", [][]float64{{15}})

		Convey("When preprocessing", func() {
			ctx := context.Background()
			tr := trace.New("test")
			schema, err := explorer.New().Explore(ctx, ds, tr)
			So(err, ShouldBeNil)
			_, err = preprocess.New().Run(ctx, ds, schema, &model.ValidationReport{}, tr)

			Convey("Then it should fail with the preprocessing sentinel", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, preprocess.ErrPreprocessing), ShouldBeTrue)
			})
		})
	})
}

func TestMultiProfileOrdering(t *testing.T) {
	Convey("Given a file with two profiles", t, func() {
		ds := ncfile.NewMem("D1901234_002.nc").
			AddDimension("N_PROF", 2).
			AddDimension("N_LEVELS", 2).
			AddChars("PLATFORM_NUMBER", []string{"1901234", "1901234"}).
			AddChars("DATA_MODE", []string{"R", "R"}).
			AddVector("CYCLE_NUMBER", []float64{2, 1}).
			AddVector("JULD", []float64{25001.5, 25000.5}).
			AddVector("LATITUDE", []float64{-40.2, -40.1}).
			AddVector("LONGITUDE", []float64{72.4, 72.3}).
			AddMatrix("PRES", [][]float64{{5, 10}, {5, 10}}).
			AddMatrix("TEMP", [][]float64{{14, 13}, {15, 14.5}}).
			AddChars("TEMP_QC", []string{"11", "11"})

		Convey("When preprocessing", func() {
			res, _, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then observations should come out sorted by profile then pressure", func() {
				So(res.Observations, ShouldHaveLength, 4)
				So(res.Observations[0].ProfileID, ShouldEqual, "1901234_001")
				So(res.Observations[0].Pressure, ShouldEqual, 5.0)
				So(res.Observations[1].Pressure, ShouldEqual, 10.0)
				So(res.Observations[2].ProfileID, ShouldEqual, "1901234_002")
			})

			Convey("Then each profile should get its own summary", func() {
				So(res.Summaries, ShouldHaveLength, 2)
			})
		})
	})
}

func TestSparseBGCParameter(t *testing.T) {
	Convey("Given a BGC file where DOXY covers only one of two profiles", t, func() {
		ds := ncfile.NewMem("BR1901234_001.nc").
			AddDimension("N_PROF", 2).
			AddDimension("N_LEVELS", 2).
			AddChars("PLATFORM_NUMBER", []string{"1901234", "1901234"}).
			AddChars("DATA_MODE", []string{"R", "R"}).
			AddVector("CYCLE_NUMBER", []float64{1, 2}).
			AddVector("JULD", []float64{25000.5, 25001.5}).
			AddVector("LATITUDE", []float64{-40.1, -40.2}).
			AddVector("LONGITUDE", []float64{72.3, 72.4}).
			AddMatrix("PRES", [][]float64{{5, 10}, {5, 10}}).
			AddMatrix("DOXY", [][]float64{{210, 205}, {99999.0, 99999.0}}).
			AddChars("DOXY_QC", []string{"11", "  "})

		Convey("When preprocessing", func() {
			res, tr, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then only the covered profile should yield DOXY observations", func() {
				So(res.Observations, ShouldHaveLength, 2)
			})

			Convey("Then the absent profile should be noted", func() {
				found := false
				for _, e := range tr.Entries() {
					if e.Kind == trace.KindNote && e.Fields["parameter"] == "DOXY" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})

	Convey("Given a BGC parameter empty across the whole file", t, func() {
		ds := coreFixture(2, "11")
		ds.AddMatrix("CHLA", [][]float64{{99999.0, 99999.0}})
		ds.AddChars("CHLA_QC", []string{"  "})

		Convey("When preprocessing", func() {
			_, tr, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then the sparseness should stay silent", func() {
				for _, e := range tr.Entries() {
					if e.Kind == trace.KindNote {
						So(e.Fields["parameter"], ShouldNotEqual, "CHLA")
					}
				}
			})
		})
	})
}

func TestPressureInversionNoted(t *testing.T) {
	Convey("Given a profile whose pressure sequence inverts", t, func() {
		ds := coreFixture(3, "111")
		ds.AddMatrix("PRES", [][]float64{{5, 15, 10}})

		Convey("When preprocessing", func() {
			_, tr, err := run(ds)
			So(err, ShouldBeNil)

			Convey("Then the inversion should be noted in the trace", func() {
				found := false
				for _, e := range tr.Entries() {
					if e.Kind == trace.KindNote && e.Message == "non-monotonic pressure sequence" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestJuldToTime(t *testing.T) {
	Convey("Given julian-day offsets from the 1950 epoch", t, func() {
		Convey("When converting day zero", func() {
			ts, ok := preprocess.JuldToTime(0)
			So(ok, ShouldBeTrue)
			So(ts.Equal(time.Date(1950, time.January, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("When converting a fractional day", func() {
			ts, ok := preprocess.JuldToTime(1.5)
			So(ok, ShouldBeTrue)
			So(ts.Equal(time.Date(1950, time.January, 2, 12, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("When converting fill or invalid values", func() {
			_, ok := preprocess.JuldToTime(999999.0)
			So(ok, ShouldBeFalse)
			_, ok = preprocess.JuldToTime(-1)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestDecodeHelpers(t *testing.T) {
	Convey("Given raw identification fields", t, func() {
		Convey("When decoding a padded platform number", func() {
			dec := preprocess.DecodePlatform("1901234 \x00")
			So(dec.FellBack, ShouldBeFalse)
			So(dec.Value, ShouldEqual, "1901234")
		})

		Convey("When decoding an empty platform field", func() {
			dec := preprocess.DecodePlatform("   ")
			So(dec.FellBack, ShouldBeTrue)
			So(dec.Value, ShouldEqual, preprocess.SentinelPlatform)
		})

		Convey("When decoding data modes", func() {
			mode, dec := preprocess.DecodeMode("D")
			So(dec.FellBack, ShouldBeFalse)
			So(mode, ShouldEqual, model.ModeDelayed)

			mode, dec = preprocess.DecodeMode("Z")
			So(dec.FellBack, ShouldBeTrue)
			So(mode, ShouldEqual, preprocess.SentinelMode)
		})
	})
}
