package middleware

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/obsidianstack/routepulse/internal/store"
)

// call is one captured Record invocation.
type call struct {
	route  string
	status int
	d      time.Duration
}

// fakeRecorder captures Record calls.
type fakeRecorder struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeRecorder) Record(route string, status int, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{route, status, d})
}

func (f *fakeRecorder) only(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) != 1 {
		t.Fatalf("Record calls: got %d, want 1 (%+v)", len(f.calls), f.calls)
	}
	return f.calls[0]
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	cur := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		cur = cur.Add(step)
		return cur
	}
}

func TestRouteKey(t *testing.T) {
	tests := []struct {
		method, pattern, path, want string
	}{
		{"GET", "GET /api/users/{id}", "/api/users/7", "GET /api/users/{id}"},
		{"POST", "/api/auth", "/api/auth", "POST /api/auth"},
		{"GET", "example.com/x", "/x", "GET /x"},
		{"GET", "GET example.com/x/{y}", "/x/1", "GET /x/{y}"},
		{"GET", "", "/raw/path", "GET /raw/path"},
		{"DELETE", "", "", "DELETE unknown"},
		{"", "", "/p", "GET /p"},
	}
	for _, tc := range tests {
		if got := RouteKey(tc.method, tc.pattern, tc.path); got != tc.want {
			t.Errorf("RouteKey(%q, %q, %q) = %q, want %q", tc.method, tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestHTTP_RecordsPatternStatusAndDuration(t *testing.T) {
	rec := &fakeRecorder{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := HTTP(rec, func(o *options) { o.now = steppingClock(40 * time.Millisecond) })(mux)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/42", nil))

	c := rec.only(t)
	if c.route != "GET /api/users/{id}" {
		t.Errorf("route: got %q, want GET /api/users/{id}", c.route)
	}
	if c.status != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", c.status)
	}
	if c.d != 40*time.Millisecond {
		t.Errorf("duration: got %v, want 40ms", c.d)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("response code: got %d, want 404", w.Code)
	}
}

func TestHTTP_ImplicitOK(t *testing.T) {
	rec := &fakeRecorder{}
	h := HTTP(rec)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/orders", nil))

	c := rec.only(t)
	if c.route != "POST /api/orders" || c.status != http.StatusOK {
		t.Errorf("got %+v, want POST /api/orders 200", c)
	}
}

func TestHTTP_NoWriteRecordsZeroStatus(t *testing.T) {
	rec := &fakeRecorder{}
	h := HTTP(rec)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/empty", nil))

	// The store normalises 0 to 200, matching what net/http sends.
	if c := rec.only(t); c.status != 0 {
		t.Errorf("status: got %d, want 0 (left to the store)", c.status)
	}
}

func TestHTTP_FirstStatusWins(t *testing.T) {
	rec := &fakeRecorder{}
	h := HTTP(rec)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.WriteHeader(http.StatusInternalServerError) // superfluous, ignored by net/http too
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/x", nil))

	if c := rec.only(t); c.status != http.StatusCreated {
		t.Errorf("status: got %d, want 201", c.status)
	}
}

func TestHTTP_PanicRecordedAs500(t *testing.T) {
	rec := &fakeRecorder{}
	h := HTTP(rec)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	func() {
		defer func() {
			if p := recover(); p != "boom" {
				t.Errorf("recovered %v, want boom (panic must propagate)", p)
			}
		}()
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/panic", nil))
	}()

	if c := rec.only(t); c.status != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", c.status)
	}
}

func TestHTTP_Skip(t *testing.T) {
	rec := &fakeRecorder{}
	h := HTTP(rec, WithSkip(SkipPrefix("/wizbeat/")))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, p := range []string{"/wizbeat", "/wizbeat/api", "/wizbeat/dashboard"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wizbeatx", nil))

	if c := rec.only(t); c.route != "GET /wizbeatx" {
		t.Errorf("recorded route: got %q, want GET /wizbeatx", c.route)
	}
}

func TestHTTP_WithStore(t *testing.T) {
	st := store.New()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	h := HTTP(st)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/auth", nil))
	req := httptest.NewRequest(http.MethodPost, "/api/auth", nil)
	req.Header.Set("Authorization", "Bearer x")
	h.ServeHTTP(httptest.NewRecorder(), req)

	m, ok := st.Route("POST /api/auth")
	if !ok {
		t.Fatal("store has no POST /api/auth entry")
	}
	if m.TotalRequests != 2 || m.Errors != 1 {
		t.Errorf("got requests=%d errors=%d, want 2/1", m.TotalRequests, m.Errors)
	}
}

func TestGin_RecordsFullPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &fakeRecorder{}

	r := gin.New()
	r.Use(Gin(rec))
	r.GET("/api/users/:id", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"id": c.Param("id")})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/9", nil))

	c := rec.only(t)
	if c.route != "GET /api/users/:id" {
		t.Errorf("route: got %q, want GET /api/users/:id", c.route)
	}
	if c.status != http.StatusAccepted {
		t.Errorf("status: got %d, want 202", c.status)
	}
	if c.d < 0 {
		t.Errorf("duration negative: %v", c.d)
	}
}

func TestGin_UnmatchedSharesOneKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &fakeRecorder{}

	r := gin.New()
	r.Use(Gin(rec))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	c := rec.only(t)
	if c.route != "GET unmatched" || c.status != http.StatusNotFound {
		t.Errorf("got %+v, want GET unmatched 404", c)
	}
}

func TestGin_PanicRecordedAs500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &fakeRecorder{}

	r := gin.New()
	r.Use(Gin(rec, func(o *options) { o.now = steppingClock(15 * time.Millisecond) }))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	func() {
		defer func() {
			if p := recover(); p != "boom" {
				t.Errorf("recovered %v, want boom (panic must propagate)", p)
			}
		}()
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	}()

	c := rec.only(t)
	if c.route != "GET /boom" || c.status != http.StatusInternalServerError {
		t.Errorf("got %+v, want GET /boom 500", c)
	}
	if c.d != 15*time.Millisecond {
		t.Errorf("duration: got %v, want 15ms", c.d)
	}
}

func TestGin_BeforeRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &fakeRecorder{}

	r := gin.New()
	r.Use(Gin(rec), gin.RecoveryWithWriter(io.Discard))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("response code: got %d, want 500", w.Code)
	}
	if c := rec.only(t); c.status != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", c.status)
	}
}

func TestGin_Skip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &fakeRecorder{}

	r := gin.New()
	r.Use(Gin(rec, WithSkip(SkipPrefix("/wizbeat"))))
	r.GET("/wizbeat/api", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wizbeat/api", nil))

	if len(rec.calls) != 0 {
		t.Errorf("Record calls: got %d, want 0", len(rec.calls))
	}
}

func TestHTTP_UnmatchedSharesOneKey(t *testing.T) {
	rec := &fakeRecorder{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users", func(w http.ResponseWriter, _ *http.Request) {})
	h := HTTP(rec)(mux)

	for _, p := range []string{"/wp-login.php", "/.env", "/admin/x"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if len(rec.calls) != 3 {
		t.Fatalf("Record calls: got %d, want 3", len(rec.calls))
	}
	for _, c := range rec.calls {
		if c.route != "GET unmatched" || c.status != http.StatusNotFound {
			t.Errorf("got %+v, want GET unmatched 404", c)
		}
	}
}

func TestHTTP_UnmatchedIntoStore(t *testing.T) {
	st := store.New()
	mux := http.NewServeMux()
	h := HTTP(st)(mux)

	for i := 0; i < 50; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, fmt.Sprintf("/scan/%d", i), nil))
	}

	if n := st.Len(); n != 1 {
		t.Errorf("store routes: got %d, want 1", n)
	}
}
