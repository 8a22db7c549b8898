package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/ai"
	"github.com/rf-checker/rf-checker-go/internal/cache"
	"github.com/rf-checker/rf-checker-go/internal/domain"
	"github.com/rf-checker/rf-checker-go/internal/evidence"
)

// request limits
const (
	MaxURLs         = 10
	MaxURLLength    = 500
	MaxGameNameLen  = 100
	MaxTextLength   = 5000
	DisabledMessage = "Text generation is disabled"
)

// ErrInvalidRequest wrapped by every validation failure
var ErrInvalidRequest = errors.New("invalid request")

var (
	urlMarkers  = []string{"<script", "javascript:", "onerror="}
	gameMarkers = []string{"<", ">", "script", "union", "select"}
)

// CheckRequest one content check
type CheckRequest struct {
	URLs     []string `json:"urls" binding:"max=10,dive,max=500,safeurl"`
	GameName string   `json:"game_name" binding:"max=100"`
	Text     string   `json:"text" binding:"max=5000"`
}

// CheckResponse result of a content check
type CheckResponse struct {
	Message      string                      `json:"message"`
	URLsMetadata []*domain.DomainProbeResult `json:"urls_metadata"`
	SteamInfo    *domain.SteamGameInfo       `json:"steam_info"`
	RequestID    string                      `json:"request_id"`
	Timestamp    time.Time                   `json:"timestamp"`
}

// Prober URL probing
type Prober interface {
	AnalyzeAll(ctx context.Context, urls []string) []*domain.DomainProbeResult
}

// GameLookup Steam metadata
type GameLookup interface {
	GameInfo(ctx context.Context, name string) (*domain.SteamGameInfo, error)
}

// TextGenerator cached text generation
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, kc cache.KeyContext) string
}

// CheckService content check operations
type CheckService interface {
	// steam lookup, URL probing and generated verdict
	Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error)

	// evidence reports only
	Probe(ctx context.Context, urls []string) ([]*domain.DomainProbeResult, error)
}

type checkService struct {
	prober    Prober
	games     GameLookup
	generator TextGenerator
	prompts   *ai.Prompts
	logger    *logrus.Logger
}

// NewCheckService games and generator may be nil when disabled.
func NewCheckService(prober Prober, games GameLookup, generator TextGenerator, prompts *ai.Prompts, logger *logrus.Logger) CheckService {
	if prompts == nil {
		prompts = &ai.Prompts{InstructionValidation: ai.DefaultValidationInstruction}
	}
	return &checkService{
		prober:    prober,
		games:     games,
		generator: generator,
		prompts:   prompts,
		logger:    logger,
	}
}

func (s *checkService) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.empty() {
		return nil, fmt.Errorf("%w: one of urls, game_name or text is required", ErrInvalidRequest)
	}

	requestID := uuid.New().String()
	log := s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"urls":       len(req.URLs),
		"game":       req.GameName,
	})
	log.Info("Check started")

	cc := &domain.CheckContext{
		URLs:     append([]string(nil), req.URLs...),
		GameName: strings.TrimSpace(req.GameName),
		Text:     req.Text,
	}

	if cc.GameName != "" && s.games != nil {
		info, err := s.games.GameInfo(ctx, cc.GameName)
		if err != nil {
			log.WithError(err).Warn("Steam lookup failed, continuing without game metadata")
		} else {
			cc.SteamInfo = info
			if info.Website != "" {
				cc.URLs = append(cc.URLs, info.Website)
			}
		}
	}

	if len(cc.URLs) > 0 {
		cc.URLResults = s.prober.AnalyzeAll(ctx, cc.URLs)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	message := DisabledMessage
	if s.generator != nil {
		prompt := s.prompts.BuildPrompt(ai.FormatMetadata(cc))
		message = s.generator.Generate(ctx, prompt, cache.KeyContext{
			Domain:   cc.PrimaryDomain(),
			GameName: cc.GameName,
			Text:     cc.Text,
		})
	}

	results := cc.URLResults
	if results == nil {
		results = []*domain.DomainProbeResult{}
	}

	log.WithFields(logrus.Fields{
		"probed":  len(results),
		"flagged": countFlagged(results),
	}).Info("Check completed")

	return &CheckResponse{
		Message:      message,
		URLsMetadata: results,
		SteamInfo:    cc.SteamInfo,
		RequestID:    requestID,
		Timestamp:    time.Now().UTC(),
	}, nil
}

func (s *checkService) Probe(ctx context.Context, urls []string) ([]*domain.DomainProbeResult, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: urls must not be empty", ErrInvalidRequest)
	}
	if err := validateURLs(urls); err != nil {
		return nil, err
	}
	results := s.prober.AnalyzeAll(ctx, urls)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Validate applies the request limits.
func (r *CheckRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidRequest)
	}
	if err := validateURLs(r.URLs); err != nil {
		return err
	}
	if len([]rune(r.GameName)) > MaxGameNameLen {
		return fmt.Errorf("%w: game_name longer than %d characters", ErrInvalidRequest, MaxGameNameLen)
	}
	if containsAny(r.GameName, gameMarkers) {
		return fmt.Errorf("%w: invalid game name", ErrInvalidRequest)
	}
	if len([]rune(r.Text)) > MaxTextLength {
		return fmt.Errorf("%w: text longer than %d characters", ErrInvalidRequest, MaxTextLength)
	}
	return nil
}

func (r *CheckRequest) empty() bool {
	return len(r.URLs) == 0 && strings.TrimSpace(r.GameName) == "" && strings.TrimSpace(r.Text) == ""
}

func validateURLs(urls []string) error {
	if len(urls) > MaxURLs {
		return fmt.Errorf("%w: at most %d urls per request", ErrInvalidRequest, MaxURLs)
	}
	for _, u := range urls {
		if err := ValidateURL(u); err != nil {
			return err
		}
	}
	return nil
}

// ValidateURL length and script-marker check for one input URL.
func ValidateURL(u string) error {
	if len(u) > MaxURLLength {
		return fmt.Errorf("%w: URL too long", ErrInvalidRequest)
	}
	if containsAny(u, urlMarkers) {
		return fmt.Errorf("%w: invalid URL format", ErrInvalidRequest)
	}
	return nil
}

func containsAny(s string, markers []string) bool {
	lower := strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func countFlagged(results []*domain.DomainProbeResult) int {
	n := 0
	for _, r := range results {
		if r != nil && r.Resolved() && !evidence.IsNoEvidence(r.Evidence) {
			n++
		}
	}
	return n
}
