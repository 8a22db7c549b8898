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
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "mistralai/mistral-7b-instruct:free"
)

// OpenRouterBackend OpenAI-compatible chat completions client
type OpenRouterBackend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewOpenRouterBackend(apiKey, model, baseURL string, timeout time.Duration, logger *logrus.Logger) *OpenRouterBackend {
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	if model == "" || strings.HasPrefix(model, "gemini") {
		model = defaultOpenRouterModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenRouterBackend{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (b *OpenRouterBackend) Name() string { return "openrouter" }

// ChatRequest chat completion request
type ChatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Message chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse chat completion response
type ChatResponse struct {
	Choices []Choice   `json:"choices"`
	Usage   Usage      `json:"usage"`
	Error   *chatError `json:"error,omitempty"`
}

// Choice one completion
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// Usage token accounting
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Complete sends the instruction as the system message and the prompt as
// the user message.
func (b *OpenRouterBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]Message, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemInstruction})
	}
	messages = append(messages, Message{Role: "user", Content: req.Prompt})

	chatResp, err := b.sendChatRequest(ctx, ChatRequest{
		Model:     b.model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	if len(chatResp.Choices) == 0 {
		return TextResponse(""), nil
	}

	b.logger.WithFields(logrus.Fields{
		"model":             b.model,
		"completion_tokens": chatResp.Usage.CompletionTokens,
	}).Debug("Chat completion received")

	return TextResponse(chatResp.Choices[0].Message.Content), nil
}

func (b *OpenRouterBackend) sendChatRequest(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", b.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", b.apiKey))

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Backend: b.Name(), Code: resp.StatusCode, Message: snippet(bodyBytes)}
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, &StatusError{Backend: b.Name(), Code: chatResp.Error.Code, Message: chatResp.Error.Message}
	}

	return &chatResp, nil
}
