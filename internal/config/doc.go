// Package config loads, normalizes, and validates the TOML configuration for
// veridoc. Validation runs once at startup: weight sums and threshold ordering
// are checked eagerly and rejected with a configuration error rather than
// silently adjusted.
package config
