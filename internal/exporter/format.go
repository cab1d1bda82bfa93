package exporter

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimeLayout is used for timestamps in CSV output; the zone offset is kept
const TimeLayout = "2006-01-02 15:04:05.999999999Z07:00"

// FormatFloat renders the shortest exact representation. Missing values are
// empty and infinities are written as inf/-inf.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ""
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatInt formats an int64 value for CSV output
func FormatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

// FormatBool formats a boolean value for CSV output
func FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// FormatTime formats a timestamp for CSV output
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// FormatValue formats any cell value of a report table
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return FormatFloat(val)
	case int:
		return FormatInt(int64(val))
	case int64:
		return FormatInt(val)
	case bool:
		return FormatBool(val)
	case time.Time:
		return FormatTime(val)
	default:
		return fmt.Sprint(val)
	}
}
