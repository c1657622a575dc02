// Package config loads the routepulse configuration file (config.yaml).
//
// Config fields:
//   - Server.HTTPPort    port of the demo host and the routepulse endpoints (default 3000)
//   - Server.BasePath    URL prefix of the API, dashboard and stream (default "/wizbeat")
//   - Server.LogLevel    debug | info | warn | error (default info)
//   - Server.Auth        "apikey" or "none"; KeyEnv names the variable holding the key
//   - Reporter.Interval  console reporting period (default 5s)
//   - Reporter.Console   write the console rendering to stdout (default true)
//   - Dashboard          browser poll interval (default 3s) and WebSocket push interval (default 5s)
//   - Routes             per-route health_threshold / max_response_time alert limits
//   - Alerts             rule expressions and webhook targets
//
// Load(path) applies defaults before unmarshalling, then validates.
// LoadEnv(path) reads an optional .env file next to the config so that
// key_env / url_env secrets can be kept out of the YAML.
// Watch(ctx, path, onChange) reloads the file on change via fsnotify.
package config
