package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rf-checker/rf-checker-go/internal/service"
)

// JournalEntry one line of the results journal
type JournalEntry struct {
	JobID      string                 `json:"job_id"`
	Source     string                 `json:"source"`
	Name       string                 `json:"name,omitempty"`
	FinishedAt time.Time              `json:"finished_at"`
	Report     *service.CheckResponse `json:"report"`
}

// JSONLSink appends every finished job to a JSON Lines journal
type JSONLSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

func NewJSONLSink(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
	}, nil
}

// Save writes one line and flushes it.
func (s *JSONLSink) Save(_ context.Context, job *Job, resp *service.CheckResponse) error {
	line, err := json.Marshal(&JournalEntry{
		JobID:      job.ID,
		Source:     job.Source,
		Name:       job.Name,
		FinishedAt: time.Now().UTC(),
		Report:     resp,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(append(line, '\n')); err != nil {
		return err
	}
	return s.writer.Flush()
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// MultiSink saves to every sink and joins their errors
type MultiSink []ResultSink

func (m MultiSink) Save(ctx context.Context, job *Job, resp *service.CheckResponse) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, job, resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
