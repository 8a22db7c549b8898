package watcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/rf-checker/rf-checker-go/internal/service"
	"github.com/rf-checker/rf-checker-go/internal/worker"
)

// ParseCheckFile reads an inbox file: one URL per line, blank lines and
// "#" comments skipped, "game:" and "text:" lines set the other fields.
func ParseCheckFile(r io.Reader) (*service.CheckRequest, error) {
	req := &service.CheckRequest{}
	var text []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		switch k := strings.ToLower(strings.TrimSpace(key)); {
		case found && k == "game":
			req.GameName = strings.TrimSpace(value)
		case found && k == "text":
			text = append(text, strings.TrimSpace(value))
		default:
			req.URLs = append(req.URLs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inbox file: %w", err)
	}

	req.Text = strings.Join(text, "\n")
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Submitter runs a job to completion
type Submitter interface {
	SubmitAndWait(ctx context.Context, job *worker.Job) error
}

// NewJobHandler turns each inbox file into a pool job named after the file.
func NewJobHandler(pool Submitter) FileHandler {
	return func(ctx context.Context, path string) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		req, err := ParseCheckFile(f)
		if err != nil {
			return err
		}

		base := filepath.Base(path)
		return pool.SubmitAndWait(ctx, &worker.Job{
			ID:      uuid.New().String(),
			Name:    strings.TrimSuffix(base, filepath.Ext(base)),
			Source:  worker.SourceWatcher,
			Request: req,
		})
	}
}
