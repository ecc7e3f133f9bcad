package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"veridoc/internal/daemon"
	"veridoc/internal/jobs"
	"veridoc/internal/stage"
	"veridoc/internal/testsupport"
)

func startDaemon(t *testing.T, adapters stage.Adapters) (*daemon.Daemon, *jobs.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Workers = 1
	cfg.Workflow.QueuePollInterval = 1
	cfg.Pipeline.RetryAttempts = 0
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, store, adapters, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("expected api address after start")
	}
	return d, store, "http://" + addr
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func waitForStatus(t *testing.T, base, jobID string, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for {
		var payload struct {
			Job map[string]any `json:"job"`
		}
		if code := getJSON(t, base+"/api/jobs/"+jobID, &payload); code == http.StatusOK {
			if payload.Job["status"] == want {
				return payload.Job
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never reached %s", jobID, want)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)
	adapters, _, _, _, _ := testsupport.StubAdapters()

	first, err := daemon.New(cfg, store, adapters, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, store, adapters, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail lock acquisition")
	}
}

func TestAPIStatus(t *testing.T) {
	adapters, _, _, _, _ := testsupport.StubAdapters()
	_, _, base := startDaemon(t, adapters)

	var status struct {
		Running  bool `json:"running"`
		Backends []struct {
			Name  string `json:"name"`
			Ready bool   `json:"ready"`
		} `json:"backends"`
	}
	if code := getJSON(t, base+"/api/status", &status); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if len(status.Backends) == 0 {
		t.Fatal("expected backend health entries")
	}
}

func TestAPIJobLifecycle(t *testing.T) {
	adapters, _, _, _, _ := testsupport.StubAdapters()
	_, _, base := startDaemon(t, adapters)

	var created struct {
		Job map[string]any `json:"job"`
	}
	code := postJSON(t, base+"/api/jobs", map[string]string{"file_ref": "/tmp/doc.pdf"}, &created)
	if code != http.StatusAccepted {
		t.Fatalf("create job code %d", code)
	}
	jobID, _ := created.Job["id"].(string)
	if jobID == "" {
		t.Fatal("expected job id in response")
	}

	waitForStatus(t, base, jobID, "done")

	var result struct {
		Job struct {
			ID string `json:"id"`
		} `json:"job"`
		Regions []map[string]any `json:"regions"`
	}
	if code := getJSON(t, base+"/api/jobs/"+jobID+"/result", &result); code != http.StatusOK {
		t.Fatalf("result code %d", code)
	}
	if result.Job.ID != jobID || len(result.Regions) != 1 {
		t.Fatalf("unexpected result payload: %+v", result)
	}

	var exported struct {
		ResultRef string `json:"result_ref"`
	}
	if code := postJSON(t, base+"/api/jobs/"+jobID+"/export", map[string]string{}, &exported); code != http.StatusOK {
		t.Fatalf("export code %d", code)
	}
	if exported.ResultRef == "" {
		t.Fatal("expected result ref")
	}

	var redacted struct {
		ArtifactRef string `json:"artifact_ref"`
	}
	if code := postJSON(t, base+"/api/jobs/"+jobID+"/redact", map[string]string{}, &redacted); code != http.StatusOK {
		t.Fatalf("redact code %d", code)
	}
	if redacted.ArtifactRef == "" {
		t.Fatal("expected artifact ref")
	}
	if code := getJSON(t, base+"/api/jobs/"+jobID+"/redacted", nil); code != http.StatusOK {
		t.Fatalf("redacted artifact code %d", code)
	}
}

func TestAPIReviewFlow(t *testing.T) {
	adapters, _, ocr, _, _ := testsupport.StubAdapters()
	ocr.Result.Confidence = 0.2
	_, _, base := startDaemon(t, adapters)

	var created struct {
		Job map[string]any `json:"job"`
	}
	postJSON(t, base+"/api/jobs", map[string]string{"file_ref": "/tmp/doc.pdf"}, &created)
	jobID, _ := created.Job["id"].(string)
	waitForStatus(t, base, jobID, "done")

	var queue struct {
		Items []struct {
			RegionID string `json:"region_id"`
		} `json:"items"`
	}
	if code := getJSON(t, base+"/api/review", &queue); code != http.StatusOK {
		t.Fatalf("queue code %d", code)
	}
	if len(queue.Items) != 1 {
		t.Fatalf("expected 1 queue item, got %d", len(queue.Items))
	}
	regionID := queue.Items[0].RegionID

	decision := map[string]string{"action": "correct", "actor": "reviewer-1", "value": "corrected"}
	var decided struct {
		FinalValue string `json:"final_value"`
	}
	if code := postJSON(t, base+"/api/review/"+regionID, decision, &decided); code != http.StatusOK {
		t.Fatalf("decision code %d", code)
	}
	if decided.FinalValue != "corrected" {
		t.Fatalf("expected corrected final value, got %q", decided.FinalValue)
	}

	if code := postJSON(t, base+"/api/review/"+regionID, decision, nil); code != http.StatusConflict {
		t.Fatalf("expected conflict on second decision, got %d", code)
	}

	var stats struct {
		VerifiedRegions int `json:"verified_regions"`
	}
	if code := getJSON(t, base+"/api/review/stats", &stats); code != http.StatusOK {
		t.Fatalf("stats code %d", code)
	}
	if stats.VerifiedRegions != 1 {
		t.Fatalf("expected 1 verified region, got %d", stats.VerifiedRegions)
	}
}

func TestAPIAudit(t *testing.T) {
	adapters, _, _, _, _ := testsupport.StubAdapters()
	_, _, base := startDaemon(t, adapters)

	var created struct {
		Job map[string]any `json:"job"`
	}
	postJSON(t, base+"/api/jobs", map[string]string{"file_ref": "/tmp/doc.pdf"}, &created)
	jobID, _ := created.Job["id"].(string)
	waitForStatus(t, base, jobID, "done")

	var audit struct {
		Entries []struct {
			Action string `json:"action"`
		} `json:"entries"`
	}
	url := fmt.Sprintf("%s/api/audit?job=%s", base, jobID)
	if code := getJSON(t, url, &audit); code != http.StatusOK {
		t.Fatalf("audit code %d", code)
	}
	if len(audit.Entries) != 2 || audit.Entries[0].Action != "job_created" {
		t.Fatalf("unexpected audit trail: %+v", audit.Entries)
	}

	resp, err := http.Get(base + "/api/audit/report.xlsx")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report code %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(payload) < 4 || string(payload[:2]) != "PK" {
		t.Fatal("expected xlsx payload")
	}
}
