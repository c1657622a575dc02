// Package middleware is the write-path hook: it times every request handled
// by the host service and records the route, final status and elapsed time
// in the metrics store.
//
// HTTP(rec) wraps a net/http handler; Gin(rec) is the equivalent
// gin.HandlerFunc. Route keys are "<METHOD> <pattern>", using the mux
// pattern (r.Pattern) or gin's FullPath when one matched, the raw URL path
// otherwise, and "unknown" as a last resort. A 404 or 405 with no matched
// pattern is recorded as "<METHOD> unmatched".
package middleware
