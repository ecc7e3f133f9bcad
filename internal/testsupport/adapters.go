package testsupport

import (
	"context"

	"veridoc/internal/jobs"
	"veridoc/internal/stage"
)

// StubIngester returns a fixed page layout, or err when set.
type StubIngester struct {
	Pages []stage.PageLayout
	Err   error
	Calls int
}

func (s *StubIngester) Ingest(ctx context.Context, fileRef string) ([]stage.PageLayout, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Pages, nil
}

// StubOCR returns a fixed recognition result. Errs is consumed one call at a
// time before Result applies, which lets tests model transient failures.
type StubOCR struct {
	Result stage.OCRResult
	Errs   []error
	Calls  int
}

func (s *StubOCR) Recognize(ctx context.Context, req stage.OCRRequest) (stage.OCRResult, error) {
	s.Calls++
	if len(s.Errs) > 0 {
		err := s.Errs[0]
		s.Errs = s.Errs[1:]
		if err != nil {
			return stage.OCRResult{}, err
		}
	}
	return s.Result, nil
}

// StubNormalizer echoes the raw text with fixed language and confidence.
type StubNormalizer struct {
	Language   string
	Confidence float64
	Err        error
	Calls      int
}

func (s *StubNormalizer) Normalize(ctx context.Context, req stage.LinguaRequest) (stage.LinguaResult, error) {
	s.Calls++
	if s.Err != nil {
		return stage.LinguaResult{}, s.Err
	}
	lang := s.Language
	if lang == "" {
		lang = "en"
	}
	conf := s.Confidence
	if conf == 0 {
		conf = 0.95
	}
	return stage.LinguaResult{NormalizedText: req.RawText, Language: lang, Confidence: conf}, nil
}

// StubPII returns fixed spans with a fixed confidence.
type StubPII struct {
	Spans      []jobs.PIISpan
	Confidence float64
	Err        error
	Calls      int
}

func (s *StubPII) Detect(ctx context.Context, normalizedText string) (stage.PIIResult, error) {
	s.Calls++
	if s.Err != nil {
		return stage.PIIResult{}, s.Err
	}
	conf := s.Confidence
	if conf == 0 {
		conf = 0.95
	}
	return stage.PIIResult{Spans: s.Spans, Confidence: conf}, nil
}

// OnePageLayout builds a single-page layout with one region per label.
func OnePageLayout(labels ...string) []stage.PageLayout {
	page := stage.PageLayout{PageNumber: 1, SourceRef: "page-1"}
	for i, label := range labels {
		top := (i + 1) * 30
		page.Regions = append(page.Regions, stage.RegionLayout{
			BBox:       jobs.BBox{X1: 0, Y1: top, X2: 200, Y2: top + 24},
			Label:      label,
			LayoutConf: 0.98,
		})
	}
	return []stage.PageLayout{page}
}

// StubAdapters bundles default stubs producing one confident text region.
func StubAdapters() (stage.Adapters, *StubIngester, *StubOCR, *StubNormalizer, *StubPII) {
	ingester := &StubIngester{Pages: OnePageLayout("text")}
	ocr := &StubOCR{Result: stage.OCRResult{RawText: "hello world", Confidence: 0.95, Track: jobs.TrackPrinted}}
	lingua := &StubNormalizer{Language: "en", Confidence: 0.95}
	pii := &StubPII{Confidence: 0.95}
	adapters := stage.Adapters{Ingester: ingester, OCR: ocr, Lingua: lingua, PII: pii}
	return adapters, ingester, ocr, lingua, pii
}
