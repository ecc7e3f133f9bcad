package logging_test

import (
	"context"
	"testing"

	"veridoc/internal/logging"
	"veridoc/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewAcceptsJSONAndText(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		if _, err := logging.New(logging.Options{Format: format, Level: "debug"}); err != nil {
			t.Fatalf("format %q: %v", format, err)
		}
	}
}

func TestContextFields(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "job-1")
	ctx = services.WithStage(ctx, "ocr")
	ctx = services.WithRegionID(ctx, "region-9")

	fields := logging.ContextFields(ctx)
	keys := make(map[string]string, len(fields))
	for _, f := range fields {
		keys[f.Key] = f.Value.String()
	}
	if keys[logging.FieldJobID] != "job-1" {
		t.Fatalf("missing job id field: %v", keys)
	}
	if keys[logging.FieldStage] != "ocr" {
		t.Fatalf("missing stage field: %v", keys)
	}
	if keys[logging.FieldRegionID] != "region-9" {
		t.Fatalf("missing region field: %v", keys)
	}
}

func TestWithContextNilLogger(t *testing.T) {
	logger := logging.WithContext(context.Background(), nil)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Info("safe to call")
}
