// Package export materializes a finished job as a result document: job
// summary, per-region records, and roll-up confidence metrics, validated
// against an embedded JSON Schema before anything is written.
package export

import (
	"time"

	"veridoc/internal/jobs"
	"veridoc/internal/scoring"
)

// Result is the exported view of one job.
type Result struct {
	Job               JobSummary        `json:"job"`
	Regions           []RegionRecord    `json:"regions"`
	ConfidenceMetrics ConfidenceMetrics `json:"confidence_metrics"`
	Distribution      ScoreDistribution `json:"distribution"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// JobSummary mirrors the job row.
type JobSummary struct {
	ID            string  `json:"id"`
	FileRef       string  `json:"file_ref"`
	Domain        string  `json:"domain"`
	Status        string  `json:"status"`
	AvgTrustScore float64 `json:"avg_trust_score"`
	ErrorMessage  string  `json:"error_message,omitempty"`
	RedactedRef   string  `json:"redacted_ref,omitempty"`
}

// RegionRecord is the persisted per-region outcome.
type RegionRecord struct {
	RegionID       string         `json:"region_id"`
	PageNumber     int            `json:"page_number"`
	BBox           jobs.BBox      `json:"bbox"`
	Label          string         `json:"label"`
	Track          string         `json:"track,omitempty"`
	RawText        string         `json:"raw_text"`
	NormalizedText string         `json:"normalized_text"`
	FinalValue     string         `json:"final_value"`
	Language       string         `json:"language,omitempty"`
	LayoutConf     float64        `json:"layout_conf"`
	OCRConf        float64        `json:"ocr_conf"`
	TransConf      float64        `json:"trans_conf"`
	PIIConf        float64        `json:"pii_conf"`
	RawScore       float64        `json:"raw_score"`
	TrustScore     float64        `json:"trust_score"`
	Epistemic      float64        `json:"epistemic"`
	Aleatoric      float64        `json:"aleatoric"`
	ReviewAction   string         `json:"review_action"`
	StageFailed    bool           `json:"stage_failed"`
	HumanVerified  bool           `json:"human_verified"`
	VerifiedValue  string         `json:"verified_value,omitempty"`
	PIISpans       []jobs.PIISpan `json:"pii_spans"`
}

// ConfidenceMetrics is the job-level roll-up reported to consumers.
type ConfidenceMetrics struct {
	AvgOCRConfidence    float64 `json:"avg_ocr_confidence"`
	AvgLinguaConfidence float64 `json:"avg_lingua_confidence"`
	FinalConfidence     float64 `json:"final_confidence"`
	ReviewAction        string  `json:"review_action"`
	NeedsReview         bool    `json:"needs_review"`
}

// ScoreDistribution reports trust-score spread and the tier histogram.
type ScoreDistribution struct {
	Count int            `json:"count"`
	Mean  float64        `json:"mean"`
	Min   float64        `json:"min"`
	Max   float64        `json:"max"`
	Tiers map[string]int `json:"tiers"`
}

// tierSeverity orders review actions from least to most severe.
var tierSeverity = map[jobs.ReviewAction]int{
	jobs.ActionAutoAccept:       0,
	jobs.ActionLightReview:      1,
	jobs.ActionFullReview:       2,
	jobs.ActionManualCorrection: 3,
}

// Build assembles the result document from stored state.
func Build(job *jobs.Job, regions []*jobs.Region) Result {
	result := Result{
		Job: JobSummary{
			ID:            job.ID,
			FileRef:       job.FileRef,
			Domain:        job.Domain,
			Status:        string(job.Status),
			AvgTrustScore: job.AvgTrustScore,
			ErrorMessage:  job.ErrorMessage,
			RedactedRef:   job.RedactedRef,
		},
		Regions:     make([]RegionRecord, 0, len(regions)),
		GeneratedAt: time.Now().UTC(),
	}

	var ocrSum, linguaSum float64
	worst := jobs.ActionAutoAccept
	needsReview := false
	for _, region := range regions {
		spans := region.PIISpans
		if spans == nil {
			spans = []jobs.PIISpan{}
		}
		result.Regions = append(result.Regions, RegionRecord{
			RegionID:       region.ID,
			PageNumber:     region.PageNumber,
			BBox:           region.BBox,
			Label:          region.Label,
			Track:          string(region.Track),
			RawText:        region.RawText,
			NormalizedText: region.NormalizedText,
			FinalValue:     region.FinalValue(),
			Language:       region.Language,
			LayoutConf:     region.LayoutConf,
			OCRConf:        region.OCRConf,
			TransConf:      region.LinguaConf,
			PIIConf:        region.PIIConf,
			RawScore:       region.RawScore,
			TrustScore:     region.TrustScore,
			Epistemic:      region.Epistemic,
			Aleatoric:      region.Aleatoric,
			ReviewAction:   string(region.ReviewAction),
			StageFailed:    region.StageFailed,
			HumanVerified:  region.HumanVerified,
			VerifiedValue:  region.VerifiedValue,
			PIISpans:       spans,
		})
		ocrSum += region.OCRConf
		linguaSum += region.LinguaConf
		if tierSeverity[region.ReviewAction] > tierSeverity[worst] {
			worst = region.ReviewAction
		}
		if region.PendingReview() {
			needsReview = true
		}
	}

	if len(regions) > 0 {
		result.ConfidenceMetrics = ConfidenceMetrics{
			AvgOCRConfidence:    ocrSum / float64(len(regions)),
			AvgLinguaConfidence: linguaSum / float64(len(regions)),
			FinalConfidence:     job.AvgTrustScore,
			ReviewAction:        string(worst),
			NeedsReview:         needsReview,
		}
	}

	dist := scoring.Summarize(regions)
	result.Distribution = ScoreDistribution{
		Count: dist.Count,
		Mean:  dist.Mean,
		Min:   dist.Min,
		Max:   dist.Max,
		Tiers: make(map[string]int, len(dist.Tiers)),
	}
	for action, count := range dist.Tiers {
		result.Distribution.Tiers[string(action)] = count
	}
	return result
}
