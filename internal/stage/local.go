package stage

import (
	"bufio"
	"context"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"veridoc/internal/jobs"
	"veridoc/internal/services"
)

// LocalAdapters returns a self-contained backend set that treats the source
// file as UTF-8 text, one region per non-empty line. It exists for offline
// development and smoke runs; production deployments swap in real model
// clients behind the same interfaces.
func LocalAdapters() Adapters {
	return Adapters{
		Ingester: localIngester{},
		OCR:      localOCR{},
		Lingua:   localNormalizer{},
		PII:      localPII{},
	}
}

const localLineHeight = 24

type localIngester struct{}

func (localIngester) Ingest(ctx context.Context, fileRef string) ([]PageLayout, error) {
	f, err := os.Open(fileRef)
	if err != nil {
		return nil, services.Wrap(services.ErrIngest, NameIngest, "open", "source file unreadable", err)
	}
	defer f.Close()

	page := PageLayout{PageNumber: 1, SourceRef: fileRef}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		top := line * localLineHeight
		page.Regions = append(page.Regions, RegionLayout{
			BBox:       jobs.BBox{X1: 0, Y1: top, X2: len(text) * 8, Y2: top + localLineHeight},
			Label:      "text",
			LayoutConf: 0.99,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrIngest, NameIngest, "scan", "source file unreadable", err)
	}
	if len(page.Regions) == 0 {
		return nil, nil
	}
	return []PageLayout{page}, nil
}

type localOCR struct{}

func (localOCR) Recognize(ctx context.Context, req OCRRequest) (OCRResult, error) {
	f, err := os.Open(req.FileRef)
	if err != nil {
		return OCRResult{}, services.Wrap(services.ErrModelUnavailable, NameOCR, "open", "source file unreadable", err)
	}
	defer f.Close()

	// Region bboxes from localIngester encode the source line number.
	wantLine := req.BBox.Y1 / localLineHeight
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if line != wantLine {
			continue
		}
		text := strings.TrimSpace(scanner.Text())
		return OCRResult{RawText: text, Confidence: textConfidence(text), Track: jobs.TrackPrinted}, nil
	}
	return OCRResult{}, services.Wrap(services.ErrValidation, NameOCR, "recognize", "region outside source", nil)
}

// textConfidence degrades with the share of non-alphanumeric runes, a cheap
// stand-in for recognition uncertainty on noisy input.
func textConfidence(text string) float64 {
	if text == "" {
		return 0
	}
	clean := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			clean++
		}
	}
	ratio := float64(clean) / float64(total)
	return 0.55 + 0.44*ratio
}

type localNormalizer struct{}

func (localNormalizer) Normalize(ctx context.Context, req LinguaRequest) (LinguaResult, error) {
	normalized := strings.Join(strings.Fields(req.RawText), " ")
	confidence := 0.97
	if normalized != req.RawText {
		confidence = 0.90
	}
	return LinguaResult{NormalizedText: normalized, Language: "en", Confidence: confidence}, nil
}

var localPIIPatterns = map[string]*regexp.Regexp{
	"email":    regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	"phone":    regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`),
	"iso_date": regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	"ssn":      regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"iban":     regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
}

type localPII struct{}

func (localPII) Detect(ctx context.Context, normalizedText string) (PIIResult, error) {
	var spans []jobs.PIISpan
	for piiType, pattern := range localPIIPatterns {
		for _, match := range pattern.FindAllStringIndex(normalizedText, -1) {
			// Span offsets are character positions; regexp reports bytes.
			spans = append(spans, jobs.PIISpan{
				Type:       piiType,
				CharStart:  utf8.RuneCountInString(normalizedText[:match[0]]),
				CharEnd:    utf8.RuneCountInString(normalizedText[:match[1]]),
				Confidence: 0.90,
			})
		}
	}
	return PIIResult{Spans: spans, Confidence: 0.95}, nil
}
