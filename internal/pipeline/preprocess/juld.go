package preprocess

import (
	"math"
	"time"
)

// juldEpoch is the ARGO reference date: days are counted from 1950-01-01 UTC.
var juldEpoch = time.Date(1950, time.January, 1, 0, 0, 0, 0, time.UTC)

// juldFill marks an unset JULD entry.
const juldFill = 999999.0

// JuldToTime converts a julian-day offset into an absolute UTC time.
// Returns false for fill or non-finite values.
func JuldToTime(days float64) (time.Time, bool) {
	if math.IsNaN(days) || math.IsInf(days, 0) || days >= juldFill || days < 0 {
		return time.Time{}, false
	}
	seconds := days * 24 * 3600
	return juldEpoch.Add(time.Duration(seconds * float64(time.Second))).UTC(), true
}
