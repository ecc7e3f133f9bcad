package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// apiClient talks to a running veridocd over its HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(addr string) *apiClient {
	host, port, err := net.SplitHostPort(addr)
	if err == nil && host == "" {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	return &apiClient{
		base: "http://" + addr,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) reachable() bool {
	probe := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := probe.Get(c.base + "/api/status")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type daemonStatus struct {
	Running      bool   `json:"running"`
	DBPath       string `json:"db_path"`
	LockFilePath string `json:"lock_file"`
	Queue        struct {
		Total      int `json:"total"`
		Queued     int `json:"queued"`
		Processing int `json:"processing"`
		Done       int `json:"done"`
		Failed     int `json:"failed"`
	} `json:"queue"`
	Backends []struct {
		Name   string `json:"name"`
		Ready  bool   `json:"ready"`
		Detail string `json:"detail"`
	} `json:"backends"`
}

type jobRecord struct {
	ID            string    `json:"id"`
	FileRef       string    `json:"file_ref"`
	Domain        string    `json:"domain"`
	Status        string    `json:"status"`
	AvgTrustScore float64   `json:"avg_trust_score"`
	ErrorMessage  string    `json:"error_message"`
	RedactedRef   string    `json:"redacted_ref"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type reviewRecord struct {
	RegionID       string    `json:"region_id"`
	JobID          string    `json:"job_id"`
	JobFileRef     string    `json:"job_file_ref"`
	PageNumber     int       `json:"page_number"`
	Label          string    `json:"label"`
	RawText        string    `json:"raw_text"`
	NormalizedText string    `json:"normalized_text"`
	TrustScore     float64   `json:"trust_score"`
	ReviewAction   string    `json:"review_action"`
	StageFailed    bool      `json:"stage_failed"`
	CreatedAt      time.Time `json:"created_at"`
}

type reviewStatsRecord struct {
	TotalRegions     int            `json:"total_regions"`
	VerifiedRegions  int            `json:"verified_regions"`
	PendingReview    int            `json:"pending_review"`
	VerificationRate float64        `json:"verification_rate"`
	Actions          map[string]int `json:"actions"`
}

type auditRecord struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	RegionID  string    `json:"region_id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	PrevValue string    `json:"prev_value"`
	NewValue  string    `json:"new_value"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *apiClient) Status() (*daemonStatus, error) {
	var status daemonStatus
	if err := c.get("/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *apiClient) Submit(fileRef, domain string) (*jobRecord, error) {
	var resp struct {
		Job jobRecord `json:"job"`
	}
	body := map[string]string{"file_ref": fileRef, "domain": domain}
	if err := c.post("/api/jobs", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

func (c *apiClient) Job(id string) (*jobRecord, error) {
	var resp struct {
		Job jobRecord `json:"job"`
	}
	if err := c.get("/api/jobs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

func (c *apiClient) Jobs(limit, offset int) ([]jobRecord, error) {
	var resp struct {
		Jobs []jobRecord `json:"jobs"`
	}
	if err := c.get("/api/jobs", pageQuery(limit, offset), &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (c *apiClient) Result(id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get("/api/jobs/"+url.PathEscape(id)+"/result", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *apiClient) Export(id string) (string, error) {
	var resp struct {
		ResultRef string `json:"result_ref"`
	}
	if err := c.post("/api/jobs/"+url.PathEscape(id)+"/export", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.ResultRef, nil
}

func (c *apiClient) Redact(id string) (string, error) {
	var resp struct {
		ArtifactRef string `json:"artifact_ref"`
	}
	if err := c.post("/api/jobs/"+url.PathEscape(id)+"/redact", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.ArtifactRef, nil
}

func (c *apiClient) ReviewQueue(limit, offset int) ([]reviewRecord, error) {
	var resp struct {
		Items []reviewRecord `json:"items"`
	}
	if err := c.get("/api/review", pageQuery(limit, offset), &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *apiClient) ReviewStats() (*reviewStatsRecord, error) {
	var stats reviewStatsRecord
	if err := c.get("/api/review/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *apiClient) Decide(regionID, action, actor, value string) (string, error) {
	var resp struct {
		FinalValue string `json:"final_value"`
	}
	body := map[string]string{"action": action, "actor": actor, "value": value}
	if err := c.post("/api/review/"+url.PathEscape(regionID), body, &resp); err != nil {
		return "", err
	}
	return resp.FinalValue, nil
}

func (c *apiClient) Audit(jobID, regionID, actor string, limit int) ([]auditRecord, error) {
	query := url.Values{}
	if jobID != "" {
		query.Set("job", jobID)
	}
	if regionID != "" {
		query.Set("region", regionID)
	}
	if actor != "" {
		query.Set("actor", actor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Entries []auditRecord `json:"entries"`
	}
	if err := c.get("/api/audit", query, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *apiClient) AuditReport() ([]byte, error) {
	resp, err := c.http.Get(c.base + "/api/audit/report.xlsx")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

func pageQuery(limit, offset int) url.Values {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	return query
}

func (c *apiClient) get(path string, query url.Values, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	resp, err := c.http.Get(target)
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *apiClient) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			return fmt.Errorf("daemon: %s", msg)
		}
	}
	return fmt.Errorf("daemon: unexpected status %s", resp.Status)
}
