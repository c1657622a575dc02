// Package api implements the HTTP endpoints that expose the route report.
//
// New(base, reports, alerts, pollInterval) returns an http.Handler that serves:
//
//	GET <base>/api                   {"status","timestamp","metrics":[RouteReport]}
//	GET <base>/api/health            mean health, overall state, per-state counts
//	GET <base>/api/routes?route=KEY  a single RouteReport; 404 if never recorded
//	GET <base>/api/alerts            firing and recently resolved alerts
//	GET <base>/dashboard             HTML page polling <base>/api
//
// All JSON endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//   - Only read the report; nothing here writes to the metrics store
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
