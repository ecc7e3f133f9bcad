package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job. Transitions are monotonic:
// queued -> processing -> done|failed. There is no backward transition;
// reprocessing requires a new job record.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusDone,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// ReviewAction is the routing tier assigned to a region by the calibrated
// trust score.
type ReviewAction string

const (
	ActionAutoAccept       ReviewAction = "AUTO_ACCEPT"
	ActionLightReview      ReviewAction = "LIGHT_REVIEW"
	ActionFullReview       ReviewAction = "FULL_REVIEW"
	ActionManualCorrection ReviewAction = "MANUAL_CORRECTION"
)

// ParseReviewAction converts a string into a known ReviewAction.
func ParseReviewAction(value string) (ReviewAction, bool) {
	normalized := ReviewAction(strings.ToUpper(strings.TrimSpace(value)))
	switch normalized {
	case ActionAutoAccept, ActionLightReview, ActionFullReview, ActionManualCorrection:
		return normalized, true
	}
	return "", false
}

// NeedsReview reports whether the action places the region in the review queue.
func (a ReviewAction) NeedsReview() bool {
	return a != "" && a != ActionAutoAccept
}

// Track identifies the OCR recognition track chosen for a region.
type Track string

const (
	TrackPrinted     Track = "printed"
	TrackHandwritten Track = "handwritten"
)

// BBox is an axis-aligned bounding box in pixel space.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// PIISpan marks a sensitive character range within normalized text.
type PIISpan struct {
	Type       string  `json:"type"`
	CharStart  int     `json:"char_start"`
	CharEnd    int     `json:"char_end"`
	Confidence float64 `json:"confidence"`
}

// Job is the unit of document processing persisted in SQLite. Identity and
// source reference are immutable once created.
type Job struct {
	ID            string
	FileRef       string
	Domain        string
	Status        Status
	AvgTrustScore float64
	ErrorMessage  string
	RedactedRef   string
	SpanDigest    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
}

// Page belongs to exactly one job. Created during ingest, never mutated after.
type Page struct {
	ID         string
	JobID      string
	PageNumber int
	SourceRef  string
}

// Region is a detected sub-area of a page carrying its extracted value and
// per-stage confidences. The orchestrator is its sole writer while the job is
// processing; after the job is done only the review workflow may set
// VerifiedValue and HumanVerified.
type Region struct {
	ID             string
	JobID          string
	PageID         string
	PageNumber     int
	BBox           BBox
	Label          string
	Track          Track
	RawText        string
	NormalizedText string
	Language       string
	LayoutConf     float64
	OCRConf        float64
	LinguaConf     float64
	PIIConf        float64
	RawScore       float64
	TrustScore     float64
	Epistemic      float64
	Aleatoric      float64
	ReviewAction   ReviewAction
	StageFailed    bool
	PIISpans       []PIISpan
	HumanVerified  bool
	VerifiedValue  string
	ReviewedBy     string
	ReviewedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PendingReview reports whether the region is eligible for the review queue.
func (r Region) PendingReview() bool {
	return r.ReviewAction.NeedsReview() && !r.HumanVerified
}

// FinalValue returns the human-corrected value when present, the normalized
// text otherwise.
func (r Region) FinalValue() string {
	if r.HumanVerified && r.VerifiedValue != "" {
		return r.VerifiedValue
	}
	return r.NormalizedText
}

// ReviewQueueItem is the derived review-queue view of a pending region. It is
// computed from region state, never persisted separately.
type ReviewQueueItem struct {
	RegionID       string
	JobID          string
	JobFileRef     string
	PageNumber     int
	BBox           BBox
	Label          string
	RawText        string
	NormalizedText string
	TrustScore     float64
	ReviewAction   ReviewAction
	StageFailed    bool
	CreatedAt      time.Time
}

// StatusCounts summarizes jobs per lifecycle state.
type StatusCounts struct {
	Total      int
	Queued     int
	Processing int
	Done       int
	Failed     int
}
