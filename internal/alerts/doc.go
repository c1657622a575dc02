// Package alerts evaluates health rules against every report and delivers
// webhook notifications when a rule fires or resolves. Rules come from the
// alerts section of the config and from per-route health_threshold and
// max_response_time limits; webhooks go to Slack, Teams or a generic HTTP
// endpoint.
package alerts
