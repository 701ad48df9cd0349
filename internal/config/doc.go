// Package config handles configuration loading for assistant-console.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CONSOLE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/assistant-console/console.yaml
//  3. ~/.config/assistant-console/console.yaml
//
// Files ending in .toml are parsed as TOML; anything else as YAML. A .env
// file in the same directory is loaded before parsing without overriding
// variables that are already set.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${CONSOLE_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Durations
//
// token_ttl, request_timeout, debounce and idempotency.ttl use
// time.ParseDuration syntax ("30s", "5m", "12h").
//
// # Validation
//
// Load() rejects a missing HTTP address (unless Tailscale is enabled), a
// missing database path, a JWT secret shorter than 32 bytes and unknown
// logging levels or formats. Example() returns a starter file.
package config
