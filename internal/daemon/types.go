package daemon

import (
	"time"

	"veridoc/internal/jobs"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Running      bool            `json:"running"`
	DBPath       string          `json:"db_path"`
	LockFilePath string          `json:"lock_file"`
	Queue        queueCounts     `json:"queue"`
	Backends     []backendStatus `json:"backends"`
}

type queueCounts struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

type backendStatus struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

type createJobRequest struct {
	FileRef string `json:"file_ref"`
	Domain  string `json:"domain,omitempty"`
}

type jobSummary struct {
	ID            string    `json:"id"`
	FileRef       string    `json:"file_ref"`
	Domain        string    `json:"domain"`
	Status        string    `json:"status"`
	AvgTrustScore float64   `json:"avg_trust_score"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	RedactedRef   string    `json:"redacted_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type jobResponse struct {
	Job jobSummary `json:"job"`
}

type jobListResponse struct {
	Jobs []jobSummary `json:"jobs"`
}

type redactResponse struct {
	ArtifactRef string `json:"artifact_ref"`
}

type exportResponse struct {
	ResultRef string `json:"result_ref"`
}

type reviewQueueItem struct {
	RegionID       string    `json:"region_id"`
	JobID          string    `json:"job_id"`
	JobFileRef     string    `json:"job_file_ref"`
	PageNumber     int       `json:"page_number"`
	BBox           jobs.BBox `json:"bbox"`
	Label          string    `json:"label"`
	RawText        string    `json:"raw_text"`
	NormalizedText string    `json:"normalized_text"`
	TrustScore     float64   `json:"trust_score"`
	ReviewAction   string    `json:"review_action"`
	StageFailed    bool      `json:"stage_failed"`
	CreatedAt      time.Time `json:"created_at"`
}

type reviewQueueResponse struct {
	Items []reviewQueueItem `json:"items"`
}

type reviewStatsResponse struct {
	TotalRegions     int            `json:"total_regions"`
	VerifiedRegions  int            `json:"verified_regions"`
	PendingReview    int            `json:"pending_review"`
	VerificationRate float64        `json:"verification_rate"`
	Actions          map[string]int `json:"actions"`
}

type reviewDecisionRequest struct {
	Action string `json:"action"`
	Actor  string `json:"actor"`
	Value  string `json:"value,omitempty"`
}

type reviewDecisionResponse struct {
	RegionID   string `json:"region_id"`
	FinalValue string `json:"final_value,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
}

type auditEntry struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	RegionID  string    `json:"region_id,omitempty"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	PrevValue string    `json:"prev_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type auditResponse struct {
	Entries []auditEntry `json:"entries"`
}

func toJobSummary(job *jobs.Job) jobSummary {
	return jobSummary{
		ID:            job.ID,
		FileRef:       job.FileRef,
		Domain:        job.Domain,
		Status:        string(job.Status),
		AvgTrustScore: job.AvgTrustScore,
		ErrorMessage:  job.ErrorMessage,
		RedactedRef:   job.RedactedRef,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}

func toReviewQueueItem(item jobs.ReviewQueueItem) reviewQueueItem {
	return reviewQueueItem{
		RegionID:       item.RegionID,
		JobID:          item.JobID,
		JobFileRef:     item.JobFileRef,
		PageNumber:     item.PageNumber,
		BBox:           item.BBox,
		Label:          item.Label,
		RawText:        item.RawText,
		NormalizedText: item.NormalizedText,
		TrustScore:     item.TrustScore,
		ReviewAction:   string(item.ReviewAction),
		StageFailed:    item.StageFailed,
		CreatedAt:      item.CreatedAt,
	}
}

func toAuditEntry(entry jobs.AuditEntry) auditEntry {
	return auditEntry{
		ID:        entry.ID,
		JobID:     entry.JobID,
		RegionID:  entry.RegionID,
		Actor:     entry.Actor,
		Action:    entry.Action,
		PrevValue: entry.PrevValue,
		NewValue:  entry.NewValue,
		CreatedAt: entry.CreatedAt,
	}
}
