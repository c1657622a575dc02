package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/obsidianstack/routepulse/internal/config"
	"github.com/obsidianstack/routepulse/internal/reporter"
)

const (
	maxHistoryLen = 200
	recentWindow  = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Route      string     `json:"route"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// rule is a config.AlertRule optionally scoped to one route.
type rule struct {
	config.AlertRule
	route string // empty applies to every route
}

// Engine evaluates alert rules against reporter rows and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []rule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: "ruleName|route"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts

	client  *http.Client
	now     func() time.Time // injectable for deterministic tests
	pending sync.WaitGroup   // in-flight webhook deliveries
}

// New creates an Engine from the alert rules, webhooks and per-route limits
// in cfg. An Engine with no rules is valid; Evaluate becomes a no-op.
func New(cfg *config.Config) *Engine {
	e := &Engine{
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	e.Update(cfg)
	return e
}

// Update replaces the rule set and webhook targets, e.g. after a config
// reload. Active alerts that no remaining rule applies to are dropped.
func (e *Engine) Update(cfg *config.Config) {
	rules := buildRules(cfg)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	e.webhooks = append([]config.WebhookConfig(nil), cfg.Alerts.Webhooks...)

	for key, a := range e.active {
		if !covered(rules, a) {
			delete(e.active, key)
			delete(e.lastFire, key)
		}
	}
}

// covered reports whether some rule can still evaluate a. Per-route rules
// share names, so the route has to match as well.
func covered(rules []rule, a *Alert) bool {
	for _, r := range rules {
		if r.Name == a.RuleName && (r.route == "" || r.route == a.Route) {
			return true
		}
	}
	return false
}

// buildRules flattens the global rules and the per-route limits.
func buildRules(cfg *config.Config) []rule {
	out := make([]rule, 0, len(cfg.Alerts.Rules)+2*len(cfg.Routes))
	for _, r := range cfg.Alerts.Rules {
		out = append(out, rule{AlertRule: r})
	}

	routes := make([]string, 0, len(cfg.Routes))
	for route := range cfg.Routes {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	for _, route := range routes {
		rc := cfg.Routes[route]
		if rc.HealthThreshold > 0 {
			out = append(out, rule{
				AlertRule: config.AlertRule{
					Name:      "health_threshold",
					Condition: "health < " + strconv.FormatFloat(rc.HealthThreshold, 'f', -1, 64),
					Severity:  "warning",
				},
				route: route,
			})
		}
		if rc.MaxResponseTime > 0 {
			ms := float64(rc.MaxResponseTime) / float64(time.Millisecond)
			out = append(out, rule{
				AlertRule: config.AlertRule{
					Name:      "max_response_time",
					Condition: "avg_response_ms > " + strconv.FormatFloat(ms, 'f', -1, 64),
					Severity:  "warning",
				},
				route: route,
			})
		}
	}
	return out
}

// Evaluate tests every rule against every row. Alerts that fire are stored
// and webhook delivery is triggered asynchronously. Alerts that were firing
// but whose condition is now false are resolved.
func (e *Engine) Evaluate(rows []reporter.RouteReport) {
	e.mu.Lock()
	if len(e.rules) == 0 {
		e.mu.Unlock()
		return
	}

	now := e.now()
	var notify []Alert
	for _, row := range rows {
		for _, r := range e.rules {
			if r.route != "" && r.route != row.Route {
				continue
			}
			if a, ok := e.evaluateRule(r, row, now); ok {
				notify = append(notify, a)
			}
		}
	}
	webhooks := e.webhooks
	e.mu.Unlock()

	for i := range notify {
		a := notify[i]
		if a.State == StateFiring {
			slog.Warn("alert fired",
				"rule", a.RuleName,
				"route", a.Route,
				"value", a.Value,
				"severity", a.Severity,
			)
		} else {
			slog.Info("alert resolved",
				"rule", a.RuleName,
				"route", a.Route,
			)
		}
		if len(webhooks) == 0 {
			continue
		}
		e.pending.Add(1)
		go func() {
			defer e.pending.Done()
			e.deliver(webhooks, &a)
		}()
	}
}

// evaluateRule applies one rule to one row. It must be called with e.mu held.
// It returns a copy of the alert when the rule changed state.
func (e *Engine) evaluateRule(r rule, row reporter.RouteReport, now time.Time) (Alert, bool) {
	key := r.Name + "|" + row.Route
	fires, value := evalCondition(r.Condition, row)

	if fires {
		if _, ok := e.active[key]; ok {
			return Alert{}, false
		}
		cooldown := r.Cooldown
		if cooldown <= 0 {
			cooldown = config.DefaultAlertCooldown
		}
		if last, ok := e.lastFire[key]; ok && now.Sub(last) < cooldown {
			return Alert{}, false
		}
		sev := r.Severity
		if sev == "" {
			sev = "warning"
		}
		a := &Alert{
			ID:       xid.New().String(),
			RuleName: r.Name,
			Route:    row.Route,
			Severity: sev,
			Value:    value,
			Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)",
				sev, r.Name, row.Route, r.Condition, value),
			FiredAt: now,
			State:   StateFiring,
		}
		e.active[key] = a
		e.lastFire[key] = now
		return *a, true
	}

	a, ok := e.active[key]
	if !ok {
		return Alert{}, false
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	return *a, true
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Wait blocks until all in-flight webhook deliveries have finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}
