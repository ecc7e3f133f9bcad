package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"veridoc/internal/config"
	"veridoc/internal/jobs"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	path := filepath.Join(base, "veridoc.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
api_bind = ""
`, filepath.Join(base, "data"), filepath.Join(base, "logs"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeDocument(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return path
}

func processedJobID(t *testing.T, output string) string {
	t.Helper()
	fields := strings.Fields(output)
	if len(fields) < 2 || fields[0] != "Job" {
		t.Fatalf("unexpected process output: %q", output)
	}
	return fields[1]
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected target path in output, got %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config on disk: %v", err)
	}

	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
}

func TestProcessAndInspectOffline(t *testing.T) {
	cfgPath := writeTestConfig(t)
	doc := writeDocument(t, "hello world", "@@@@####!!!!")

	out, err := runCLI(t, "--config", cfgPath, "process", doc)
	if err != nil {
		t.Fatalf("process: %v\n%s", err, out)
	}
	if !strings.Contains(out, "done") {
		t.Fatalf("expected done job, got %q", out)
	}
	jobID := processedJobID(t, out)

	out, err = runCLI(t, "--config", cfgPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if !strings.Contains(out, "done") {
		t.Fatalf("expected done row, got %q", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "doc.txt") {
		t.Fatalf("expected job file in list, got %q", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "show", jobID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "hello world") {
		t.Fatalf("expected region value in output, got %q", out)
	}
}

func TestReviewFlowOffline(t *testing.T) {
	cfgPath := writeTestConfig(t)
	doc := writeDocument(t, "hello world", "@@@@####!!!!")

	out, err := runCLI(t, "--config", cfgPath, "process", doc)
	if err != nil {
		t.Fatalf("process: %v\n%s", err, out)
	}
	jobID := processedJobID(t, out)

	out, err = runCLI(t, "--config", cfgPath, "review", "list")
	if err != nil {
		t.Fatalf("review list: %v", err)
	}
	if strings.Contains(out, "Review queue is empty") {
		t.Fatalf("expected pending region, got %q", out)
	}

	regionID := pendingRegionID(t, cfgPath, jobID)
	out, err = runCLI(t, "--config", cfgPath, "review", "correct", regionID, "fixed value", "--actor", "tester")
	if err != nil {
		t.Fatalf("review correct: %v\n%s", err, out)
	}

	out, err = runCLI(t, "--config", cfgPath, "review", "stats")
	if err != nil {
		t.Fatalf("review stats: %v", err)
	}
	if !strings.Contains(out, "1 verified") {
		t.Fatalf("expected one verified region, got %q", out)
	}

	if _, err := runCLI(t, "--config", cfgPath, "review", "approve", regionID, "--actor", "tester"); err == nil {
		t.Fatal("expected second decision on verified region to fail")
	}
}

func TestResultRedactAndAuditOffline(t *testing.T) {
	cfgPath := writeTestConfig(t)
	doc := writeDocument(t, "contact: alice@example.com")

	out, err := runCLI(t, "--config", cfgPath, "process", doc)
	if err != nil {
		t.Fatalf("process: %v\n%s", err, out)
	}
	jobID := processedJobID(t, out)

	resultPath := filepath.Join(t.TempDir(), "result.json")
	if _, err := runCLI(t, "--config", cfgPath, "result", jobID, "-o", resultPath); err != nil {
		t.Fatalf("result: %v", err)
	}
	payload, err := os.ReadFile(resultPath)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var decoded struct {
		Job struct {
			ID string `json:"id"`
		} `json:"job"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded.Job.ID != jobID {
		t.Fatalf("result for wrong job: %q", decoded.Job.ID)
	}

	out, err = runCLI(t, "--config", cfgPath, "result", jobID, "--save")
	if err != nil {
		t.Fatalf("result --save: %v", err)
	}
	saved := strings.Fields(out)
	if _, err := os.Stat(saved[len(saved)-1]); err != nil {
		t.Fatalf("expected persisted result: %v", err)
	}

	out, err = runCLI(t, "--config", cfgPath, "redact", jobID)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	fields := strings.Fields(out)
	artifact := fields[len(fields)-1]
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("expected artifact on disk: %v", err)
	}

	out, err = runCLI(t, "--config", cfgPath, "audit", "list", "--job", jobID)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	for _, action := range []string{"job_created", "job_completed", "redacted"} {
		if !strings.Contains(out, action) {
			t.Fatalf("expected %s entry, got %q", action, out)
		}
	}

	reportPath := filepath.Join(t.TempDir(), "report.xlsx")
	if _, err := runCLI(t, "--config", cfgPath, "audit", "export", "-o", reportPath); err != nil {
		t.Fatalf("audit export: %v", err)
	}
	report, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(report) < 4 || string(report[:2]) != "PK" {
		t.Fatal("expected xlsx report payload")
	}
}

func pendingRegionID(t *testing.T, cfgPath, jobID string) string {
	t.Helper()
	cfg, _, _, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	regions, err := store.RegionsForJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("RegionsForJob: %v", err)
	}
	for _, region := range regions {
		if region.PendingReview() {
			return region.ID
		}
	}
	t.Fatal("no pending region found")
	return ""
}
