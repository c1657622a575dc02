package compute

import (
	"math"
	"time"

	"github.com/obsidianstack/routepulse/internal/store"
)

// Penalty constants for the health formula.
const (
	// ReferenceLatencyMs is the "ideal" average response time.
	ReferenceLatencyMs = 200.0

	// latencyPenalty is the number of points lost per ReferenceLatencyMs of
	// average latency. It is not capped before the final clamp.
	latencyPenalty = 30.0

	// errorPenalty is the number of points lost at a 100% error rate.
	errorPenalty = 50.0
)

// State constants returned by the score calculator.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateCritical = "critical"
)

// Thresholds that map a health score to a state.
const (
	ThresholdHealthy  = 80.0
	ThresholdDegraded = 60.0
)

// Output is the derived health of one route. Values are full precision;
// rounding for display happens in the reporter.
type Output struct {
	// PulseRate is requests per second over the trailing store.Window.
	PulseRate float64

	// AvgResponseMs is the mean response time over the route's lifetime.
	AvgResponseMs float64

	// ErrorRate is the fraction (0–1) of requests with status >= 400.
	ErrorRate float64

	// Health is the composite score in the range 0–100.
	Health float64

	// State is the health state derived from Health.
	State string
}

// Compute calculates pulse rate, average latency, error rate and health for m
// as observed at now. A route with no requests scores 100 with every rate 0.
func Compute(m store.RouteMetrics, now time.Time) Output {
	out := Output{PulseRate: PulseRate(m.Recent, now)}

	if m.TotalRequests > 0 {
		n := float64(m.TotalRequests)
		out.AvgResponseMs = durationMs(m.TotalTime) / n
		out.ErrorRate = clamp01(float64(m.Errors) / n)
	}

	out.Health = Health(out.AvgResponseMs, out.ErrorRate)
	out.State = stateFromScore(out.Health)
	return out
}

// PulseRate counts the timestamps in recent that lie strictly within
// store.Window of now and converts the count to requests per second.
// recent must be sorted oldest first.
func PulseRate(recent []time.Time, now time.Time) float64 {
	inWindow := len(recent) - store.FirstInWindow(recent, now)
	return float64(inWindow) / store.Window.Seconds()
}

// Health applies the scoring formula and clamps the result to [0, 100].
func Health(avgMs, errorRate float64) float64 {
	// Explicit conversions keep the products from being fused, so the same
	// inputs give bit-identical scores on every architecture.
	latency := float64((avgMs / ReferenceLatencyMs) * latencyPenalty)
	errs := float64(errorRate * errorPenalty)
	h := 100 - latency - errs
	if math.IsNaN(h) {
		return 0
	}
	return math.Max(0, math.Min(100, h))
}

// stateFromScore maps a numeric health score to a named state.
func stateFromScore(score float64) string {
	switch {
	case score >= ThresholdHealthy:
		return StateHealthy
	case score >= ThresholdDegraded:
		return StateDegraded
	default:
		return StateCritical
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
