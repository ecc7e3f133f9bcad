package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"veridoc/internal/audit"
	"veridoc/internal/config"
	"veridoc/internal/export"
	"veridoc/internal/jobs"
	"veridoc/internal/logging"
	"veridoc/internal/redact"
	"veridoc/internal/review"
	"veridoc/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	reviewSvc *review.Service
	exportSvc *export.Service
	redactor  *redact.Generator
	ledger    *audit.Ledger

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	ledger := audit.NewLedger(d.store, logger)
	exportSvc, err := export.NewService(cfg, d.store, logger)
	if err != nil {
		return nil, err
	}
	srv := &apiServer{
		bind:      bind,
		logger:    logger,
		daemon:    d,
		reviewSvc: review.NewService(d.store, ledger, logger),
		exportSvc: exportSvc,
		redactor:  redact.NewGenerator(cfg, d.store, ledger, logger),
		ledger:    ledger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/jobs", srv.handleJobs)
	mux.HandleFunc("/api/jobs/", srv.handleJob)
	mux.HandleFunc("/api/review", srv.handleReviewQueue)
	mux.HandleFunc("/api/review/stats", srv.handleReviewStats)
	mux.HandleFunc("/api/review/", srv.handleReviewDecision)
	mux.HandleFunc("/api/audit", srv.handleAudit)
	mux.HandleFunc("/api/audit/report.xlsx", srv.handleAuditReport)

	srv.server = &http.Server{
		Handler:           srv.withRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// withRequestID tags every request context with a correlation ID so handler
// logs and store operations can be tied back to one API call.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithRequestID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	backends := make([]backendStatus, 0, len(status.Backends))
	for _, health := range status.Backends {
		backends = append(backends, backendStatus{
			Name:   health.Name,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Running:      status.Running,
		DBPath:       status.DBPath,
		LockFilePath: status.LockFilePath,
		Queue: queueCounts{
			Total:      status.Queue.Total,
			Queued:     status.Queue.Queued,
			Processing: status.Queue.Processing,
			Done:       status.Queue.Done,
			Failed:     status.Queue.Failed,
		},
		Backends: backends,
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset := pagination(r)
		list, err := s.daemon.store.ListJobs(r.Context(), limit, offset)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		payload := jobListResponse{Jobs: make([]jobSummary, 0, len(list))}
		for _, job := range list {
			payload.Jobs = append(payload.Jobs, toJobSummary(job))
		}
		s.writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		job, err := s.daemon.workflow.Runner().Submit(r.Context(), req.FileRef, req.Domain)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, jobResponse{Job: toJobSummary(job)})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		job, err := s.daemon.store.GetJob(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if job == nil {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, jobResponse{Job: toJobSummary(job)})
	case "result":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		result, err := s.exportSvc.Result(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	case "export":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		path, err := s.exportSvc.Export(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, exportResponse{ResultRef: path})
	case "redact":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		ref, err := s.redactor.Redact(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, redactResponse{ArtifactRef: ref})
	case "redacted":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.serveRedacted(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "unknown job resource")
	}
}

func (s *apiServer) serveRedacted(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.daemon.store.GetJob(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.RedactedRef == "" {
		s.writeError(w, http.StatusNotFound, "job has no redaction artifact")
		return
	}
	payload, err := os.ReadFile(job.RedactedRef)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "artifact unreadable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *apiServer) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, offset := pagination(r)
	items, err := s.reviewSvc.Queue(r.Context(), limit, offset)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	payload := reviewQueueResponse{Items: make([]reviewQueueItem, 0, len(items))}
	for _, item := range items {
		payload.Items = append(payload.Items, toReviewQueueItem(item))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleReviewStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.reviewSvc.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	actions := make(map[string]int, len(stats.Actions))
	for action, count := range stats.Actions {
		actions[string(action)] = count
	}
	s.writeJSON(w, http.StatusOK, reviewStatsResponse{
		TotalRegions:     stats.TotalRegions,
		VerifiedRegions:  stats.VerifiedRegions,
		PendingReview:    stats.PendingReview,
		VerificationRate: stats.VerificationRate,
		Actions:          actions,
	})
}

func (s *apiServer) handleReviewDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	regionID := strings.TrimPrefix(r.URL.Path, "/api/review/")
	if regionID == "" || strings.Contains(regionID, "/") {
		s.writeError(w, http.StatusNotFound, "region not found")
		return
	}
	var req reviewDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case review.TransitionApprove:
		region, err := s.reviewSvc.Approve(r.Context(), regionID, req.Actor)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, reviewDecisionResponse{RegionID: region.ID, FinalValue: region.FinalValue()})
	case review.TransitionCorrect:
		region, err := s.reviewSvc.Correct(r.Context(), regionID, req.Actor, req.Value)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, reviewDecisionResponse{RegionID: region.ID, FinalValue: region.FinalValue()})
	case review.TransitionSkip:
		if err := s.reviewSvc.Skip(r.Context(), regionID, req.Actor); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, reviewDecisionResponse{RegionID: regionID, Skipped: true})
	default:
		s.writeError(w, http.StatusBadRequest, "action must be approve, correct, or skip")
	}
}

func (s *apiServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entries, err := s.ledger.Query(r.Context(), auditFilter(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	payload := auditResponse{Entries: make([]auditEntry, 0, len(entries))}
	for _, entry := range entries {
		payload.Entries = append(payload.Entries, toAuditEntry(entry))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleAuditReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := s.ledger.ReportXLSX(r.Context(), auditFilter(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-report.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}

func auditFilter(r *http.Request) jobs.AuditFilter {
	query := r.URL.Query()
	filter := jobs.AuditFilter{
		JobID:    strings.TrimSpace(query.Get("job")),
		RegionID: strings.TrimSpace(query.Get("region")),
		Actor:    strings.TrimSpace(query.Get("actor")),
	}
	if value := query.Get("since"); value != "" {
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			filter.Since = parsed
		}
	}
	if value := query.Get("until"); value != "" {
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			filter.Until = parsed
		}
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	return filter
}

func pagination(r *http.Request) (limit, offset int) {
	query := r.URL.Query()
	limit, _ = strconv.Atoi(query.Get("limit"))
	offset, _ = strconv.Atoi(query.Get("offset"))
	return limit, offset
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("api response encode failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}
