package export

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"veridoc/internal/config"
	"veridoc/internal/jobs"
	"veridoc/internal/logging"
	"veridoc/internal/services"
)

//go:embed result_schema.json
var resultSchema []byte

// Service writes validated result documents for done jobs.
type Service struct {
	store  *jobs.Store
	outDir string
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewService compiles the embedded result schema and prepares the output
// directory path. Schema compilation failure is a build defect, surfaced
// immediately.
func NewService(cfg *config.Config, store *jobs.Store, logger *slog.Logger) (*Service, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result_schema.json", bytes.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("add result schema: %w", err)
	}
	schema, err := compiler.Compile("result_schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:  store,
		outDir: filepath.Join(cfg.Paths.DataDir, "results"),
		schema: schema,
		logger: logger,
	}, nil
}

// Result assembles and validates the result document for a done job without
// writing it.
func (s *Service) Result(ctx context.Context, jobID string) (*Result, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrValidation, "export", "result", "job not found", nil)
	}
	if job.Status != jobs.StatusDone {
		return nil, services.Wrap(services.ErrConflict, "export", "result",
			fmt.Sprintf("job is %s, export requires done", job.Status), nil)
	}

	regions, err := s.store.RegionsForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	result := Build(job, regions)
	if err := s.validate(result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Export writes the result document under the data directory and returns its
// path.
func (s *Service) Export(ctx context.Context, jobID string) (string, error) {
	result, err := s.Result(ctx, jobID)
	if err != nil {
		return "", err
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}

	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	path := filepath.Join(s.outDir, jobID+".json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	logging.WithContext(ctx, s.logger).Info("result exported",
		logging.String(logging.FieldJobID, jobID),
		logging.String("path", path),
		logging.Int("regions", len(result.Regions)))
	return path, nil
}

func (s *Service) validate(result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("unmarshal for validation: %w", err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return services.Wrap(services.ErrValidation, "export", "validate", "result does not match schema", err)
	}
	return nil
}
