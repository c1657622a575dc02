// Package store holds the per-route request counters for one process. It is
// the only mutable state in routepulse: the interception middleware writes to
// it through Record and every reader (reporter, REST API, WebSocket hub)
// works from the deep copies returned by Snapshot.
package store
