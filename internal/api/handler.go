package api

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/obsidianstack/routepulse/internal/alerts"
	"github.com/obsidianstack/routepulse/internal/compute"
	"github.com/obsidianstack/routepulse/internal/reporter"
)

// ReportSource produces the current per-route report.
type ReportSource interface {
	Report() []reporter.RouteReport
}

// AlertSource lists firing and recently resolved alerts.
type AlertSource interface {
	Active() []*alerts.Alert
}

// Handler is the HTTP handler for all <base>/api and <base>/dashboard endpoints.
type Handler struct {
	reports ReportSource
	alerts  AlertSource // may be nil
	base    string
	poll    time.Duration
	now     func() time.Time
	mux     *http.ServeMux
}

// New creates a Handler mounted under base and registers all routes.
// alertSrc may be nil, in which case <base>/api/alerts returns an empty list.
func New(base string, reports ReportSource, alertSrc AlertSource, pollInterval time.Duration) http.Handler {
	h := &Handler{
		reports: reports,
		alerts:  alertSrc,
		base:    base,
		poll:    pollInterval,
		now:     time.Now,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc(base+"/api", h.metrics)
	h.mux.HandleFunc(base+"/api/health", h.health)
	h.mux.HandleFunc(base+"/api/routes", h.route)
	h.mux.HandleFunc(base+"/api/alerts", h.listAlerts)
	h.mux.HandleFunc(base+"/dashboard", h.dashboard)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// BuildMetrics wraps rows in the success envelope stamped with now.
func BuildMetrics(rows []reporter.RouteReport, now time.Time) MetricsResponse {
	if rows == nil {
		rows = []reporter.RouteReport{}
	}
	return MetricsResponse{
		Status:    StatusSuccess,
		Timestamp: now.UTC().Format(time.RFC3339),
		Metrics:   rows,
	}
}

// --- route handlers ---------------------------------------------------------

// metrics returns GET <base>/api: every route's report in the envelope.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildMetrics(h.reports.Report(), h.now()))
}

// health returns GET <base>/api/health: mean health and state counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rows := h.reports.Report()
	resp := HealthResponse{RouteCount: len(rows), OverallHealth: 100, State: compute.StateHealthy}
	if h.alerts != nil {
		for _, a := range h.alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}
	if len(rows) == 0 {
		jsonResp(w, http.StatusOK, resp)
		return
	}

	var total float64
	for _, row := range rows {
		total += float64(row.Health)
		resp.TotalRequests += row.TotalRequests
		resp.TotalErrors += row.TotalErrors
		switch row.State {
		case compute.StateHealthy:
			resp.HealthyCount++
		case compute.StateDegraded:
			resp.DegradedCount++
		default:
			resp.CriticalCount++
		}
	}
	resp.OverallHealth = math.Round(total/float64(len(rows))*10) / 10
	resp.State = stateFromScore(resp.OverallHealth)
	jsonResp(w, http.StatusOK, resp)
}

// route returns GET <base>/api/routes?route=KEY: a single route's report.
func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	key := r.URL.Query().Get("route")
	if key == "" {
		jsonErr(w, http.StatusBadRequest, "missing route query parameter")
		return
	}

	for _, row := range h.reports.Report() {
		if row.Route == key {
			jsonResp(w, http.StatusOK, RouteResponse{
				Status:    StatusSuccess,
				Timestamp: h.now().UTC().Format(time.RFC3339),
				Metric:    row,
			})
			return
		}
	}
	jsonErr(w, http.StatusNotFound, "route not found")
}

// listAlerts returns GET <base>/api/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []*alerts.Alert{}
	if h.alerts != nil {
		out = append(out, h.alerts.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// stateFromScore converts a 0–100 score to a health state string.
// Mirrors the thresholds in internal/compute.
func stateFromScore(score float64) string {
	switch {
	case score >= compute.ThresholdHealthy:
		return compute.StateHealthy
	case score >= compute.ThresholdDegraded:
		return compute.StateDegraded
	default:
		return compute.StateCritical
	}
}
