package api

import "github.com/obsidianstack/routepulse/internal/reporter"

// StatusSuccess is the envelope status of every successful metrics response.
const StatusSuccess = "success"

// MetricsResponse is the payload for GET <base>/api and for every message
// pushed on the WebSocket stream.
type MetricsResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"` // RFC3339
	Metrics   []reporter.RouteReport `json:"metrics"`
}

// RouteResponse is the payload for GET <base>/api/routes?route=KEY.
type RouteResponse struct {
	Status    string               `json:"status"`
	Timestamp string               `json:"timestamp"`
	Metric    reporter.RouteReport `json:"metric"`
}

// HealthResponse is the payload for GET <base>/api/health.
type HealthResponse struct {
	OverallHealth float64 `json:"overall_health"`
	State         string  `json:"state"`
	RouteCount    int     `json:"route_count"`
	HealthyCount  int     `json:"healthy_count"`
	DegradedCount int     `json:"degraded_count"`
	CriticalCount int     `json:"critical_count"`
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	AlertCount    int     `json:"alert_count"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
