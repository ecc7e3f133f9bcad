// Package stage defines the contracts between the pipeline orchestrator and
// the external model backends. The backends do the ML work; this system only
// consumes their (value, confidence) outputs.
package stage

import (
	"context"

	"veridoc/internal/jobs"
)

// Stage names, used for logging, error wrapping, and confidence weight keys.
const (
	NameIngest = "ingest"
	NameOCR    = "ocr"
	NameLingua = "lingua"
	NamePII    = "comply"
)

// RegionLayout is one detected region within an ingested page.
type RegionLayout struct {
	BBox       jobs.BBox
	Label      string
	LayoutConf float64
}

// PageLayout is one page produced by ingest with its detected regions.
type PageLayout struct {
	PageNumber int
	SourceRef  string
	Regions    []RegionLayout
}

// Ingester loads a document and performs layout detection. A document that
// yields zero pages is unprocessable and fails the job.
type Ingester interface {
	Ingest(ctx context.Context, fileRef string) ([]PageLayout, error)
}

// OCRRequest identifies the region image handed to text recognition.
type OCRRequest struct {
	FileRef    string
	PageNumber int
	BBox       jobs.BBox
	Label      string
}

// OCRResult carries recognized text with the chosen recognition track.
type OCRResult struct {
	RawText    string
	Confidence float64
	Track      jobs.Track
}

// OCREngine recognizes text within a region, classifying the region as
// printed or handwritten and dispatching the matching track.
type OCREngine interface {
	Recognize(ctx context.Context, req OCRRequest) (OCRResult, error)
}

// LinguaRequest hands raw OCR text to language normalization.
type LinguaRequest struct {
	RawText    string
	DomainHint string
}

// LinguaResult is normalized text with its detected language.
type LinguaResult struct {
	NormalizedText string
	Language       string
	Confidence     float64
}

// Normalizer performs language detection and text normalization.
type Normalizer interface {
	Normalize(ctx context.Context, req LinguaRequest) (LinguaResult, error)
}

// PIIResult lists sensitive spans found in normalized text. Confidence is the
// detector's overall confidence for the region, independent of per-span
// confidences.
type PIIResult struct {
	Spans      []jobs.PIISpan
	Confidence float64
}

// PIIDetector locates sensitive character ranges in normalized text.
type PIIDetector interface {
	Detect(ctx context.Context, normalizedText string) (PIIResult, error)
}

// Adapters bundles the external collaborators the orchestrator depends on.
type Adapters struct {
	Ingester Ingester
	OCR      OCREngine
	Lingua   Normalizer
	PII      PIIDetector
}
