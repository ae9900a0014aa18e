// Package config loads and validates the uamguard YAML configuration.
//
// Secrets (API token, webhook URLs, postgres DSN) are never stored in the
// file itself — the config names environment variables and the accessor
// methods resolve them at use time.
//
// The configuration is immutable after startup with one exception: Watch
// re-reads the file on change so the logging level can be adjusted on a
// running daemon.
package config
