package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/obsidianstack/routepulse/internal/store"
)

// UnmatchedRoute is the path part of the key shared by requests that no
// route matched.
const UnmatchedRoute = "unmatched"

// Recorder is the write side of the metrics store.
type Recorder interface {
	Record(route string, status int, d time.Duration)
}

// Option customises the net/http middleware.
type Option func(*options)

type options struct {
	skip func(*http.Request) bool
	now  func() time.Time
}

// WithSkip excludes requests for which skip returns true, e.g. the
// dashboard's own polling.
func WithSkip(skip func(*http.Request) bool) Option {
	return func(o *options) { o.skip = skip }
}

// SkipPrefix returns a skip function matching every path under prefix.
func SkipPrefix(prefix string) func(*http.Request) bool {
	prefix = strings.TrimRight(prefix, "/")
	return func(r *http.Request) bool {
		return r.URL.Path == prefix || strings.HasPrefix(r.URL.Path, prefix+"/")
	}
}

// HTTP returns middleware that records every request next serves.
func HTTP(rec Recorder, opts ...Option) func(http.Handler) http.Handler {
	o := newOptions(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.skip != nil && o.skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			start := o.now()
			sw := &statusWriter{ResponseWriter: w}

			// Record after the handler returns, even if it panics; the panic
			// still propagates to net/http's own recovery.
			defer func() {
				status := sw.status
				if p := recover(); p != nil {
					if !sw.wroteHeader {
						status = http.StatusInternalServerError
					}
					rec.Record(recordKey(r.Method, r.Pattern, r.URL.Path, status), status, o.now().Sub(start))
					panic(p)
				}
				rec.Record(recordKey(r.Method, r.Pattern, r.URL.Path, status), status, o.now().Sub(start))
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

// Gin returns a gin middleware that records every request. Registered ahead
// of gin.Recovery it still counts requests whose handler panics, as 500.
func Gin(rec Recorder, opts ...Option) gin.HandlerFunc {
	o := newOptions(opts)

	return func(c *gin.Context) {
		if o.skip != nil && o.skip(c.Request) {
			c.Next()
			return
		}

		start := o.now()
		defer func() {
			status := c.Writer.Status()
			if p := recover(); p != nil {
				if !c.Writer.Written() {
					status = http.StatusInternalServerError
				}
				rec.Record(recordKey(c.Request.Method, c.FullPath(), c.Request.URL.Path, status), status, o.now().Sub(start))
				panic(p)
			}
			rec.Record(recordKey(c.Request.Method, c.FullPath(), c.Request.URL.Path, status), status, o.now().Sub(start))
		}()

		c.Next()
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// recordKey is RouteKey, except that 404 and 405 responses with no matched
// pattern share one "<METHOD> unmatched" key, so unknown paths cannot grow
// the store without bound.
func recordKey(method, pattern, path string, status int) string {
	if patternPath(pattern) == "" && (status == http.StatusNotFound || status == http.StatusMethodNotAllowed) {
		return RouteKey(method, "", UnmatchedRoute)
	}
	return RouteKey(method, pattern, path)
}

// RouteKey builds "<METHOD> <path>" from the matched pattern, falling back
// to the raw path. A net/http pattern that already carries a method
// ("GET /users/{id}") or host is reduced to its path part.
func RouteKey(method, pattern, path string) string {
	p := patternPath(pattern)
	if p == "" {
		p = path
	}
	if p == "" {
		p = store.UnknownRoute
	}
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + p
}

// patternPath strips the optional "METHOD " and host prefixes from a
// ServeMux pattern.
func patternPath(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = strings.TrimSpace(pattern[i+1:])
	}
	if i := strings.IndexByte(pattern, '/'); i > 0 {
		pattern = pattern[i:]
	}
	return pattern
}

// statusWriter captures the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.status = http.StatusOK
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush lets streaming handlers keep working behind the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.wroteHeader {
			w.status = http.StatusOK
			w.wroteHeader = true
		}
		f.Flush()
	}
}

// Hijack supports WebSocket upgrades behind the wrapper. A hijacked
// connection is recorded as 101 Switching Protocols.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: underlying ResponseWriter does not support hijacking")
	}
	if !w.wroteHeader {
		w.status = http.StatusSwitchingProtocols
		w.wroteHeader = true
	}
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
