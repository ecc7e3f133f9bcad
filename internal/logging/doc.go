// Package logging wraps log/slog with the attribute helpers and standardized
// field keys used throughout the repository. Loggers are constructed once at
// startup from configuration and threaded into components; context-derived
// attributes (job, region, stage, correlation id) are attached via WithContext.
package logging
