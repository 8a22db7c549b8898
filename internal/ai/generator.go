package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/cache"
	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/retry"
)

// ErrorPrefix starts every canonical failure string returned by Generate.
const ErrorPrefix = "Error: "

// generation outcomes reported to the observer
const (
	OutcomeGenerated = "generated"
	OutcomeCached    = "cached"
	OutcomeExhausted = "exhausted"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
)

// GenerationObserver receives one outcome per Generate call.
type GenerationObserver interface {
	RecordGeneration(backend, outcome string, seconds float64)
}

// GeneratorOptions knobs taken from the ai config section
type GeneratorOptions struct {
	MaxTokens         int
	MaxLength         int // characters; <= 0 keeps everything
	CacheReadThrough  bool
	SystemInstruction string
}

// Generator cached, retried text generation with plain-text output.
type Generator struct {
	backend  Backend
	store    cache.Store
	policy   *retry.Policy
	opts     GeneratorOptions
	observer GenerationObserver
	logger   *logrus.Logger
}

// NewGenerator store may be nil to disable caching.
func NewGenerator(backend Backend, store cache.Store, policy *retry.Policy, opts GeneratorOptions, logger *logrus.Logger) *Generator {
	if opts.SystemInstruction == "" {
		opts.SystemInstruction = PlainTextInstruction
	}
	return &Generator{
		backend: backend,
		store:   store,
		policy:  policy,
		opts:    opts,
		logger:  logger,
	}
}

// NewGeneratorFromConfig builds the configured backend.
func NewGeneratorFromConfig(cfg *config.AIConfig, store cache.Store, policy *retry.Policy, logger *logrus.Logger) (*Generator, error) {
	backend, err := NewBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewGenerator(backend, store, policy, GeneratorOptions{
		MaxTokens:        cfg.MaxTokens,
		MaxLength:        cfg.MaxLength,
		CacheReadThrough: cfg.CacheReadThrough,
	}, logger), nil
}

// SetObserver reports every Generate outcome to o.
func (g *Generator) SetObserver(o GenerationObserver) {
	g.observer = o
}

// Generate returns the generated plain text for prompt, or a canonical
// error string starting with ErrorPrefix. It never returns an error value.
func (g *Generator) Generate(ctx context.Context, prompt string, kc cache.KeyContext) string {
	start := time.Now()
	kc.Prompt = prompt
	key := kc.Key()

	log := g.logger.WithFields(logrus.Fields{
		"backend":   g.backend.Name(),
		"cache_key": key,
		"scope":     kc.Scope(),
	})

	if g.store != nil && g.opts.CacheReadThrough {
		cached, ok, err := g.store.Get(ctx, key)
		switch {
		case err != nil:
			log.WithError(err).Warn("Cache read failed, generating")
		case ok:
			log.Debug("Using cached generation")
			g.record(OutcomeCached, start)
			return cached
		}
	}

	req := Request{
		Prompt:            prompt,
		SystemInstruction: g.opts.SystemInstruction,
		MaxTokens:         g.opts.MaxTokens,
	}
	resp, err := retry.Call(ctx, g.policy, "ai."+g.backend.Name(), func(ctx context.Context) (*Response, error) {
		return g.backend.Complete(ctx, req)
	}, isEmptyResponse)
	if err != nil {
		outcome, msg := canonicalError(err, g.attempts())
		log.WithError(err).Warn("Text generation failed")
		g.record(outcome, start)
		return msg
	}

	text := Truncate(SanitizePlainText(resp.Normalize()), g.opts.MaxLength)

	if g.store != nil && text != "" {
		if err := g.store.Put(ctx, key, text); err != nil {
			log.WithError(err).Warn("Cache write failed")
		}
	}

	log.WithFields(logrus.Fields{
		"length":   len([]rune(text)),
		"duration": time.Since(start),
	}).Info("Text generated")
	g.record(OutcomeGenerated, start)
	return text
}

func (g *Generator) attempts() int {
	if g.policy == nil {
		return retry.DefaultPolicy().MaxAttempts
	}
	if g.policy.MaxAttempts < 1 {
		return 1
	}
	return g.policy.MaxAttempts
}

func (g *Generator) record(outcome string, start time.Time) {
	if g.observer != nil {
		g.observer.RecordGeneration(g.backend.Name(), outcome, time.Since(start).Seconds())
	}
}

// canonicalError maps a retry.Call failure to its outcome and text.
func canonicalError(err error, attempts int) (string, string) {
	var exhausted *retry.ExhaustedError
	var fatal *retry.FatalError
	switch {
	case errors.As(err, &exhausted):
		return OutcomeExhausted, fmt.Sprintf("%stext generation unavailable after %d attempts: %v", ErrorPrefix, exhausted.Attempts, exhausted.Last)
	case errors.Is(err, retry.ErrEmptyResponse):
		return OutcomeEmpty, fmt.Sprintf("%stext generation returned an empty response after %d attempts", ErrorPrefix, attempts)
	case errors.As(err, &fatal):
		return OutcomeFailed, fmt.Sprintf("%stext generation failed: %v", ErrorPrefix, fatal.Err)
	default:
		return OutcomeFailed, fmt.Sprintf("%stext generation failed: %v", ErrorPrefix, err)
	}
}

// IsErrorText reports whether s is one of Generate's canonical failures.
func IsErrorText(s string) bool {
	return strings.HasPrefix(s, ErrorPrefix)
}

var (
	fencePattern    = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z0-9_-]*[ \t]*$")
	headingPattern  = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`)
	bulletPattern   = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+[.)])[ \t]+`)
	emphasisPattern = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)
)

// SanitizePlainText strips the Markdown the backend sometimes emits
// despite the plain-text instruction.
func SanitizePlainText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = fencePattern.ReplaceAllString(s, "")
	s = headingPattern.ReplaceAllString(s, "")
	s = bulletPattern.ReplaceAllString(s, "")
	s = emphasisPattern.ReplaceAllString(s, "$2")
	s = strings.ReplaceAll(s, "`", "")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Truncate keeps at most max characters of s.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
