package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/service"
)

// ResultSink stores the outcome of a finished job
type ResultSink interface {
	Save(ctx context.Context, job *Job, resp *service.CheckResponse) error
}

// CheckRunner runs jobs through the check service and hands the report to the sink
type CheckRunner struct {
	checks service.CheckService
	sink   ResultSink
	logger *logrus.Logger
}

func NewCheckRunner(checks service.CheckService, sink ResultSink, logger *logrus.Logger) *CheckRunner {
	return &CheckRunner{checks: checks, sink: sink, logger: logger}
}

// Handle implements Handler.
func (r *CheckRunner) Handle(ctx context.Context, job *Job) error {
	if job.Request == nil {
		return fmt.Errorf("job %s has no request", job.ID)
	}

	resp, err := r.checks.Check(ctx, job.Request)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	if r.sink == nil {
		return nil
	}
	if err := r.sink.Save(ctx, job, resp); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileSink writes one indented JSON report per job into a directory
type FileSink struct {
	dir    string
	logger *logrus.Logger
}

func NewFileSink(dir string, logger *logrus.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create result directory: %w", err)
	}
	return &FileSink{dir: dir, logger: logger}, nil
}

// Path report location for job.
func (s *FileSink) Path(job *Job) string {
	name := unsafeName.ReplaceAllString(job.ReportName(), "_")
	if name == "" || name == "." || name == ".." {
		name = job.ID
	}
	return filepath.Join(s.dir, name+".json")
}

// Save writes through a temp file so readers never see a partial report.
func (s *FileSink) Save(_ context.Context, job *Job, resp *service.CheckResponse) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	path := s.Path(job)
	tmp, err := os.CreateTemp(s.dir, ".report-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"report": path,
	}).Info("Report written")
	return nil
}
