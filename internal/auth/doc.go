// Package auth provides API key authentication for the routepulse endpoints.
//
// APIKey(mode, header, key) returns net/http middleware that validates the
// key from the named request header. The WebSocket stream may also pass the
// key as the "api_key" query parameter, since browsers cannot set headers on
// a WebSocket handshake.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or
// absent, the middleware answers 401 with a JSON error body.
package auth
