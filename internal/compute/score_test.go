package compute

import (
	"math"
	"testing"
	"time"

	"github.com/obsidianstack/routepulse/internal/store"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

// uniform returns n timestamps spaced step apart, starting at start.
func uniform(start time.Time, n int, step time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

func TestCompute_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		m         store.RouteMetrics
		wantAvg   float64
		wantErr   float64
		wantScore float64
		wantState string
	}{
		{
			name:      "single fast success",
			m:         store.RouteMetrics{TotalRequests: 1, TotalTime: 50 * time.Millisecond},
			wantAvg:   50,
			wantErr:   0,
			wantScore: 92.5, // 100 - (50/200)*30
			wantState: StateHealthy,
		},
		{
			name:      "half errors",
			m:         store.RouteMetrics{TotalRequests: 2, TotalTime: 20 * time.Millisecond, Errors: 1},
			wantAvg:   10,
			wantErr:   0.5,
			wantScore: 73.5, // 100 - 1.5 - 25
			wantState: StateDegraded,
		},
		{
			name:      "slow route clamps to zero",
			m:         store.RouteMetrics{TotalRequests: 4, TotalTime: 4 * 2 * time.Second},
			wantAvg:   2000,
			wantErr:   0,
			wantScore: 0, // 100 - 300
			wantState: StateCritical,
		},
		{
			name:      "all errors, instant responses",
			m:         store.RouteMetrics{TotalRequests: 10, Errors: 10},
			wantAvg:   0,
			wantErr:   1,
			wantScore: 50,
			wantState: StateCritical,
		},
		{
			name:      "exactly at reference latency",
			m:         store.RouteMetrics{TotalRequests: 3, TotalTime: 600 * time.Millisecond},
			wantAvg:   200,
			wantErr:   0,
			wantScore: 70,
			wantState: StateDegraded,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Compute(tc.m, baseTime)
			if !almostEqual(out.AvgResponseMs, tc.wantAvg, 1e-9) {
				t.Errorf("AvgResponseMs = %.4f, want %.4f", out.AvgResponseMs, tc.wantAvg)
			}
			if !almostEqual(out.ErrorRate, tc.wantErr, 1e-9) {
				t.Errorf("ErrorRate = %.4f, want %.4f", out.ErrorRate, tc.wantErr)
			}
			if !almostEqual(out.Health, tc.wantScore, 1e-9) {
				t.Errorf("Health = %.4f, want %.4f", out.Health, tc.wantScore)
			}
			if out.State != tc.wantState {
				t.Errorf("State = %q, want %q", out.State, tc.wantState)
			}
		})
	}
}

func TestCompute_ZeroRequests(t *testing.T) {
	out := Compute(store.RouteMetrics{}, baseTime)
	if out.AvgResponseMs != 0 || out.ErrorRate != 0 || out.PulseRate != 0 {
		t.Errorf("zero route: got avg=%v err=%v pulse=%v, want all 0",
			out.AvgResponseMs, out.ErrorRate, out.PulseRate)
	}
	if out.Health != 100 {
		t.Errorf("zero route Health = %v, want 100", out.Health)
	}
	if out.State != StateHealthy {
		t.Errorf("zero route State = %q, want %q", out.State, StateHealthy)
	}
}

func TestCompute_HealthBounds(t *testing.T) {
	for requests := int64(1); requests <= 50; requests += 7 {
		for errors := int64(0); errors <= requests; errors++ {
			for _, avg := range []time.Duration{0, time.Millisecond, 199 * time.Millisecond, time.Second, time.Hour} {
				m := store.RouteMetrics{
					TotalRequests: requests,
					Errors:        errors,
					TotalTime:     avg * time.Duration(requests),
				}
				h := Compute(m, baseTime).Health
				if h < 0 || h > 100 || math.IsNaN(h) {
					t.Fatalf("Health out of bounds for %+v: %v", m, h)
				}
			}
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	m := store.RouteMetrics{
		TotalRequests: 7,
		Errors:        2,
		TotalTime:     910 * time.Millisecond,
		Recent:        uniform(baseTime, 7, time.Second),
	}
	now := baseTime.Add(10 * time.Second)
	first := Compute(m, now)
	for i := 0; i < 10; i++ {
		if got := Compute(m, now); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}

func TestPulseRate_WindowDecay(t *testing.T) {
	// 30 requests one second apart, the last at base+29s.
	recent := uniform(baseTime, 30, time.Second)

	now := baseTime.Add(29*time.Second + 500*time.Millisecond)
	if got := PulseRate(recent, now); !almostEqual(got, 1.0, 1e-9) {
		t.Errorf("PulseRate right after burst = %.4f, want 1.0", got)
	}

	// Halfway through the decay: the first 15 have aged out.
	mid := baseTime.Add(44*time.Second + 500*time.Millisecond)
	if got := PulseRate(recent, mid); !almostEqual(got, 0.5, 1e-9) {
		t.Errorf("PulseRate mid-decay = %.4f, want 0.5", got)
	}

	later := baseTime.Add(29*time.Second + 31*time.Second)
	if got := PulseRate(recent, later); got != 0 {
		t.Errorf("PulseRate 31s after last request = %.4f, want 0", got)
	}
}

func TestPulseRate_StaleSnapshotFilteredAtRead(t *testing.T) {
	// The store only evicts on write; an idle route still carries old
	// timestamps and Compute must ignore them.
	st := store.New()
	st.Record("GET /idle", 200, 10*time.Millisecond)
	m, _ := st.Route("GET /idle")

	if got := Compute(m, m.LastUpdated).PulseRate; !almostEqual(got, 1.0/30, 1e-9) {
		t.Errorf("PulseRate at record time = %.6f, want %.6f", got, 1.0/30)
	}
	if got := Compute(m, m.LastUpdated.Add(store.Window)).PulseRate; got != 0 {
		t.Errorf("PulseRate one window later = %.6f, want 0", got)
	}
}

func TestPulseRate_Empty(t *testing.T) {
	if got := PulseRate(nil, baseTime); got != 0 {
		t.Errorf("PulseRate(nil) = %v, want 0", got)
	}
}

func TestHealth_Clamp(t *testing.T) {
	tests := []struct {
		avg, errRate, want float64
	}{
		{0, 0, 100},
		{-100, 0, 100}, // impossible input, still bounded
		{1e9, 0, 0},
		{0, 2, 0},
		{100, 0.2, 75},
	}
	for _, tc := range tests {
		if got := Health(tc.avg, tc.errRate); !almostEqual(got, tc.want, 1e-9) {
			t.Errorf("Health(%v, %v) = %v, want %v", tc.avg, tc.errRate, got, tc.want)
		}
	}
}

func TestStateFromScore_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, StateHealthy},
		{80, StateHealthy},
		{79.99, StateDegraded},
		{60, StateDegraded},
		{59.99, StateCritical},
		{0, StateCritical},
	}
	for _, tc := range tests {
		if got := stateFromScore(tc.score); got != tc.want {
			t.Errorf("stateFromScore(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}
