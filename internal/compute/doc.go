// Package compute derives display metrics from a route's accumulated counters.
//
// Compute(metrics, now) is pure: the same RouteMetrics and now always yield the
// same Output. It filters the request window against now itself, so a route
// that stops receiving traffic decays to a pulse rate of 0 even though the
// store only evicts on write.
//
// Health formula (200ms reference latency):
//
//	health = clamp(100 - (avg_ms/200)*30 - error_rate*50, 0, 100)
//
// Health state thresholds: Healthy ≥80, Degraded 60–79, Critical <60.
package compute
