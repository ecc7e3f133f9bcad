// Package redact produces the irreversibly masked artifact for a done job.
// Masking replaces every detected PII character with a full block, so the
// artifact never contains recoverable source text, and the store's
// compare-and-set guarantees at most one artifact per job.
package redact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"veridoc/internal/audit"
	"veridoc/internal/config"
	"veridoc/internal/jobs"
	"veridoc/internal/logging"
	"veridoc/internal/services"
)

const maskRune = '█'

// Artifact is the persisted redaction output. Region order and span order are
// fixed, so identical input produces identical bytes.
type Artifact struct {
	JobID   string           `json:"job_id"`
	FileRef string           `json:"file_ref"`
	Regions []ArtifactRegion `json:"regions"`
}

// ArtifactRegion is one region's masked text with the span positions that
// were removed. Span types survive; the covered content does not.
type ArtifactRegion struct {
	RegionID   string         `json:"region_id"`
	PageNumber int            `json:"page_number"`
	MaskedText string         `json:"masked_text"`
	Spans      []ArtifactSpan `json:"spans"`
}

// ArtifactSpan records what was masked without retaining the original text.
type ArtifactSpan struct {
	Type      string `json:"type"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// Generator owns redaction for done jobs.
type Generator struct {
	store  *jobs.Store
	ledger *audit.Ledger
	outDir string
	logger *slog.Logger
}

// NewGenerator builds a redaction generator writing under the data directory.
func NewGenerator(cfg *config.Config, store *jobs.Store, ledger *audit.Ledger, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		store:  store,
		ledger: ledger,
		outDir: filepath.Join(cfg.Paths.DataDir, "redacted"),
		logger: logger,
	}
}

// Redact produces the masked artifact for a done job. Re-invoking on an
// already-redacted job returns the stored artifact reference without
// recomputation.
func (g *Generator) Redact(ctx context.Context, jobID string) (string, error) {
	job, err := g.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", services.Wrap(services.ErrValidation, "redact", "redact", "job not found", nil)
	}
	if job.RedactedRef != "" {
		return job.RedactedRef, nil
	}
	if job.Status != jobs.StatusDone {
		return "", services.Wrap(services.ErrConflict, "redact", "redact",
			fmt.Sprintf("job is %s, redaction requires done", job.Status), nil)
	}

	regions, err := g.store.RegionsForJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	artifact := buildArtifact(job, regions)
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}
	digest := SpanDigest(jobID, regions)

	if err := os.MkdirAll(g.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create redaction dir: %w", err)
	}
	artifactRef := filepath.Join(g.outDir, jobID+".json")
	if err := os.WriteFile(artifactRef, payload, 0o600); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	won, err := g.store.SetRedaction(ctx, jobID, artifactRef, digest)
	if err != nil {
		return "", err
	}
	if !won {
		// A concurrent call landed first; discard ours and serve the stored ref.
		_ = os.Remove(artifactRef)
		current, getErr := g.store.GetJob(ctx, jobID)
		if getErr != nil {
			return "", getErr
		}
		return current.RedactedRef, nil
	}

	// The artifact ref is committed at this point; a failed audit write must
	// not surface as a redaction failure, or a retry would serve the stored
	// ref without ever recording the entry.
	if _, err := g.ledger.Append(ctx, jobs.AuditEntry{
		JobID:    jobID,
		Actor:    audit.SystemActor,
		Action:   audit.ActionRedacted,
		NewValue: artifactRef,
	}); err != nil {
		logging.WithContext(ctx, g.logger).Error("redaction audit entry failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err))
	}
	logging.WithContext(ctx, g.logger).Info("redaction artifact written",
		logging.String(logging.FieldJobID, jobID),
		logging.String("artifact", artifactRef),
		logging.Int("regions", len(artifact.Regions)))
	return artifactRef, nil
}

// SpanDigest hashes the complete span set of a job. Identical spans yield an
// identical digest, which makes redaction reruns verifiable.
func SpanDigest(jobID string, regions []*jobs.Region) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", jobID)
	for _, region := range regions {
		for _, span := range sortedSpans(region.PIISpans) {
			fmt.Fprintf(h, "%s|%s|%d|%d\n", region.ID, span.Type, span.CharStart, span.CharEnd)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func buildArtifact(job *jobs.Job, regions []*jobs.Region) Artifact {
	artifact := Artifact{JobID: job.ID, FileRef: job.FileRef, Regions: []ArtifactRegion{}}
	for _, region := range regions {
		spans := sortedSpans(region.PIISpans)
		out := ArtifactRegion{
			RegionID:   region.ID,
			PageNumber: region.PageNumber,
			MaskedText: Mask(region.NormalizedText, spans),
			Spans:      make([]ArtifactSpan, 0, len(spans)),
		}
		for _, span := range spans {
			out.Spans = append(out.Spans, ArtifactSpan{
				Type:      span.Type,
				CharStart: span.CharStart,
				CharEnd:   span.CharEnd,
			})
		}
		artifact.Regions = append(artifact.Regions, out)
	}
	return artifact
}

// Mask replaces every character inside the spans with the block rune. Span
// offsets are character positions; out-of-range bounds are clamped.
func Mask(text string, spans []jobs.PIISpan) string {
	if len(spans) == 0 {
		return text
	}
	runes := []rune(text)
	for _, span := range spans {
		start := span.CharStart
		end := span.CharEnd
		if start < 0 {
			start = 0
		}
		if end > len(runes) {
			end = len(runes)
		}
		for i := start; i < end; i++ {
			runes[i] = maskRune
		}
	}
	return string(runes)
}

func sortedSpans(spans []jobs.PIISpan) []jobs.PIISpan {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]jobs.PIISpan, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CharStart != sorted[j].CharStart {
			return sorted[i].CharStart < sorted[j].CharStart
		}
		if sorted[i].CharEnd != sorted[j].CharEnd {
			return sorted[i].CharEnd < sorted[j].CharEnd
		}
		return sorted[i].Type < sorted[j].Type
	})
	return sorted
}
