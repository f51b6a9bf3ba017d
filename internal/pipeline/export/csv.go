package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/driftline/argopipe/internal/domain/model"
)

var observationHeader = []string{
	"profile_id", "pressure", "parameter", "value", "qc_flag", "data_mode", "adjusted",
}

var profileHeader = []string{
	"profile_id", "platform", "cycle", "direction", "timestamp",
	"latitude", "longitude", "position_qc", "param_stats",
}

func writeObservationCSV(w io.Writer, obs []model.Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(observationHeader); err != nil {
		return err
	}
	for i := range obs {
		o := &obs[i]
		record := []string{
			o.ProfileID,
			formatFloat(o.Pressure),
			o.Parameter,
			formatFloat(o.Value),
			o.Flag,
			o.Mode.String(),
			strconv.FormatBool(o.Adjusted),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeProfileCSV(w io.Writer, summaries []model.ProfileSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(profileHeader); err != nil {
		return err
	}
	for i := range summaries {
		s := &summaries[i]
		// Stats render as a JSON object; map keys marshal in sorted order,
		// keeping the artifact deterministic.
		statsJSON, err := json.Marshal(s.Stats)
		if err != nil {
			return err
		}
		ts := ""
		if !s.Timestamp.IsZero() {
			ts = s.Timestamp.UTC().Format(time.RFC3339)
		}
		record := []string{
			s.ProfileID,
			s.Platform,
			strconv.Itoa(s.Cycle),
			s.Direction,
			ts,
			formatFloat(s.Latitude),
			formatFloat(s.Longitude),
			s.PositionQC,
			string(statsJSON),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
