package alerts

import (
	"strconv"
	"strings"

	"github.com/obsidianstack/routepulse/internal/reporter"
)

// evalCondition evaluates a rule condition string against one route report.
//
// Supported expressions (field operator value):
//
//	health < 60
//	error_rate > 10          (percent)
//	avg_response_ms > 500
//	pulse_rate > 100         (req/s)
//	total_requests >= 1000
//	total_errors > 0
//	state == critical
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, row reporter.RouteReport) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "state" {
		switch op {
		case "==":
			return row.State == rhs, 0
		case "!=":
			return row.State != rhs, 0
		}
		return false, 0
	}

	v, ok := numericField(field, row)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the report row.
func numericField(field string, row reporter.RouteReport) (float64, bool) {
	switch field {
	case "health":
		return float64(row.Health), true
	case "error_rate":
		return row.ErrorRate, true
	case "avg_response_ms":
		return row.AvgResponseTimeMs, true
	case "pulse_rate":
		return row.PulseRate, true
	case "total_requests":
		return float64(row.TotalRequests), true
	case "total_errors":
		return float64(row.TotalErrors), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
