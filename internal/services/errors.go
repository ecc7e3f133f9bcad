package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIngest marks unreadable or corrupt source documents. Job-fatal.
	ErrIngest = errors.New("ingest error")
	// ErrTimeout marks a stage that exceeded its configured deadline.
	ErrTimeout = errors.New("stage timeout")
	// ErrModelUnavailable marks an external collaborator that could not be reached.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrValidation marks rejected caller input; job state is unaffected.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks concurrent mutation attempts; callers must re-fetch and retry.
	ErrConflict = errors.New("conflict")
	// ErrConfiguration marks invalid configuration detected at load time.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks failures worth retrying within a stage.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// JobFatal reports whether a stage error must abort the whole job instead of
// degrading the region. Only ingest-level failures qualify.
func JobFatal(err error) bool {
	return errors.Is(err, ErrIngest)
}

// Retryable reports whether a stage error may be retried before the region is
// degraded. Validation and configuration problems never heal on retry.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrConflict):
		return false
	default:
		return true
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
