package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/config"
)

// PlainTextInstruction system instruction sent with every request
const PlainTextInstruction = "Answer in plain text. Do not use Markdown, lists, headings or code blocks."

// Request one completion request
type Request struct {
	Prompt            string
	SystemInstruction string
	MaxTokens         int
}

// Backend a generative completion service
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// StatusError non-200 answer of a backend.
// Only "service unavailable" is a transient signal; quota errors are fatal.
type StatusError struct {
	Backend string
	Code    int
	Status  string // backend status string, e.g. "UNAVAILABLE"
	Message string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s API returned status %d (%s): %s", e.Backend, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Backend, e.Code, e.Message)
}

// IsRetryable implements retry.RetryableError.
func (e *StatusError) IsRetryable() bool {
	return e.Code == http.StatusServiceUnavailable || strings.EqualFold(e.Status, "UNAVAILABLE")
}

// NewBackend builds the backend selected by cfg.Provider.
func NewBackend(cfg *config.AIConfig, logger *logrus.Logger) (Backend, error) {
	switch cfg.Provider {
	case "", "gemini":
		return NewGeminiBackend(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Grounding, cfg.Timeout, logger), nil
	case "openrouter":
		return NewOpenRouterBackend(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
