package api

import (
	"bytes"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/obsidianstack/routepulse/internal/auth"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

// dashboardData is the template input for dashboard.html.
type dashboardData struct {
	APIPath     string
	PollMs      int64
	APIKeyParam string
}

// dashboard serves GET <base>/dashboard, a static page polling <base>/api.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var buf bytes.Buffer
	err := dashboardTmpl.Execute(&buf, dashboardData{
		APIPath:     h.base + "/api",
		PollMs:      h.poll.Milliseconds(),
		APIKeyParam: auth.QueryParam,
	})
	if err != nil {
		slog.Error("api: render dashboard", "err", err)
		http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}
