// Package services defines the shared error taxonomy and context annotations
// used across the pipeline, review, and workflow packages. Stage adapters and
// stores tag failures with the exported sentinel errors so callers can
// classify them with errors.Is instead of string matching.
package services
