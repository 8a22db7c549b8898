package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.0-flash"
)

// GeminiBackend Google Gemini generateContent over REST
type GeminiBackend struct {
	apiKey     string
	baseURL    string
	model      string
	grounding  bool
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewGeminiBackend grounding enables the Google Search tool.
func NewGeminiBackend(apiKey, model, baseURL string, grounding bool, timeout time.Duration, logger *logrus.Logger) *GeminiBackend {
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiBackend{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		grounding:  grounding,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (b *GeminiBackend) Name() string { return "gemini" }

type geminiRequest struct {
	Contents          []Content              `json:"contents"`
	SystemInstruction *Content               `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	Tools             []geminiTool           `json:"tools,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int    `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiResponse struct {
	Candidates []Candidate   `json:"candidates"`
	Error      *geminiStatus `json:"error,omitempty"`
}

type geminiStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Complete sends one generateContent call.
func (b *GeminiBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	body := geminiRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens:  req.MaxTokens,
			ResponseMimeType: "text/plain",
		},
	}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &Content{Parts: []Part{{Text: req.SystemInstruction}}}
	}
	if b.grounding {
		body.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", b.baseURL, b.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed geminiResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Backend: b.Name(), Code: resp.StatusCode, Message: snippet(respBody)}
		if decodeErr == nil && parsed.Error != nil {
			statusErr.Status = parsed.Error.Status
			statusErr.Message = parsed.Error.Message
		}
		return nil, statusErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("unmarshal response: %w", decodeErr)
	}
	if parsed.Error != nil {
		return nil, &StatusError{Backend: b.Name(), Code: parsed.Error.Code, Status: parsed.Error.Status, Message: parsed.Error.Message}
	}

	b.logger.WithFields(logrus.Fields{
		"model":      b.model,
		"candidates": len(parsed.Candidates),
	}).Debug("Gemini response received")

	return CandidatesResponse(parsed.Candidates), nil
}
