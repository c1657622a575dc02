// Package reporter turns a store snapshot into per-route display rows.
//
// Report() scores every route with compute.Compute and rounds for display:
// pulse rate to 2 decimals, average response time to 1 decimal, health to the
// nearest integer and error rate as a percentage to 1 decimal. Rows are
// ordered by route key.
//
// Run(ctx) is the console mode: every interval (default 5s) it writes one
// line per route to the configured writer and hands the rows to any
// OnReport subscribers (the alert engine). It never writes to the store.
package reporter
