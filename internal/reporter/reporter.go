package reporter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/routepulse/internal/compute"
	"github.com/obsidianstack/routepulse/internal/store"
)

// DefaultInterval is the console reporting period used when none is set.
const DefaultInterval = 5 * time.Second

// Snapshotter is the read side of the metrics store.
type Snapshotter interface {
	Snapshot() map[string]store.RouteMetrics
}

// RouteReport is one route's health, rounded for display.
type RouteReport struct {
	Route             string    `json:"route"`
	PulseRate         float64   `json:"pulseRate"`         // req/s, 2 dp
	AvgResponseTimeMs float64   `json:"avgResponseTimeMs"` // 1 dp
	ErrorRate         float64   `json:"errorRate"`         // percent, 1 dp
	Health            int       `json:"health"`
	State             string    `json:"state"`
	TotalRequests     int64     `json:"totalRequests"`
	TotalErrors       int64     `json:"totalErrors"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Reporter reads snapshots and renders them. All exported methods are safe
// for concurrent use.
type Reporter struct {
	src Snapshotter
	out io.Writer
	now func() time.Time // injectable for deterministic tests

	mu          sync.Mutex
	interval    time.Duration
	subscribers []func([]RouteReport)

	reset chan struct{}
}

// New creates a Reporter reading from src. Console lines go to out; a nil out
// disables console rendering while still notifying subscribers on each tick.
// A non-positive interval selects DefaultInterval.
func New(src Snapshotter, out io.Writer, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		src:      src,
		out:      out,
		now:      time.Now,
		interval: interval,
		reset:    make(chan struct{}, 1),
	}
}

// Report scores every route in a fresh snapshot.
func (r *Reporter) Report() []RouteReport {
	return Build(r.src.Snapshot(), r.now())
}

// Build scores and rounds every entry of snap as observed at now.
func Build(snap map[string]store.RouteMetrics, now time.Time) []RouteReport {
	out := make([]RouteReport, 0, len(snap))
	for route, m := range snap {
		o := compute.Compute(m, now)
		out = append(out, RouteReport{
			Route:             route,
			PulseRate:         round(o.PulseRate, 2),
			AvgResponseTimeMs: round(o.AvgResponseMs, 1),
			ErrorRate:         round(o.ErrorRate*100, 1),
			Health:            int(math.Round(o.Health)),
			State:             o.State,
			TotalRequests:     m.TotalRequests,
			TotalErrors:       m.Errors,
			LastUpdated:       m.LastUpdated,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// OnReport registers fn to receive the rows produced on every Run tick.
// fn runs on the reporter goroutine and must not block for long.
func (r *Reporter) OnReport(fn func([]RouteReport)) {
	r.mu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.mu.Unlock()
}

// Interval returns the current reporting period.
func (r *Reporter) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// SetInterval changes the reporting period. A running loop picks up the new
// value immediately. Non-positive values are ignored.
func (r *Reporter) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	changed := d != r.interval
	r.interval = d
	r.mu.Unlock()

	if changed {
		select {
		case r.reset <- struct{}{}:
		default:
		}
	}
}

// Run reports on every tick until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	interval := r.Interval()
	t := time.NewTicker(interval)
	defer t.Stop()

	slog.Info("reporter: started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reporter: stopped")
			return
		case <-r.reset:
			interval = r.Interval()
			t.Reset(interval)
			slog.Info("reporter: interval changed", "interval", interval)
		case <-t.C:
			r.tick()
		}
	}
}

func (r *Reporter) tick() {
	rows := r.Report()

	if r.out != nil {
		if err := Render(r.out, rows); err != nil {
			slog.Warn("reporter: console write failed", "err", err)
		}
	}

	r.mu.Lock()
	subs := make([]func([]RouteReport), len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(rows)
	}
}

// Render writes a header and one line per row to w.
func Render(w io.Writer, rows []RouteReport) error {
	if _, err := fmt.Fprintln(w, "routepulse live metrics"); err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "  no requests recorded yet")
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, FormatLine(row)); err != nil {
			return err
		}
	}
	return nil
}

// FormatLine renders one row as "<route> — <pulse> req/s | avg <avg>ms | health <health>%".
func FormatLine(row RouteReport) string {
	return fmt.Sprintf("%s — %.2f req/s | avg %.1fms | health %d%%",
		row.Route, row.PulseRate, row.AvgResponseTimeMs, row.Health)
}

// round rounds v half away from zero to the given number of decimal places.
func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
