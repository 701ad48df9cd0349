// Package dedupe tracks Idempotency-Key headers so a repeated submission of
// the same side-effecting request (a template test that calls a paid model
// API, for example) inside a time window is rejected instead of re-run.
package dedupe
