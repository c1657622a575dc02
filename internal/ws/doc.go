// Package ws pushes the routepulse metrics envelope to WebSocket clients.
//
// Clients connect to <base>/stream. Each receives the current report right
// away and then one message per push interval:
//
//	{"event":"report","data":{"status":"success","timestamp":"...","metrics":[...]}}
package ws
