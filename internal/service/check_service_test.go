package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rf-checker/rf-checker-go/internal/ai"
	"github.com/rf-checker/rf-checker-go/internal/cache"
	"github.com/rf-checker/rf-checker-go/internal/domain"
	"github.com/rf-checker/rf-checker-go/internal/evidence"
	"github.com/rf-checker/rf-checker-go/internal/steam"
)

// MockProber Mock Prober
type MockProber struct {
	mock.Mock
}

func (m *MockProber) AnalyzeAll(ctx context.Context, urls []string) []*domain.DomainProbeResult {
	args := m.Called(ctx, urls)
	return args.Get(0).([]*domain.DomainProbeResult)
}

// MockGameLookup Mock GameLookup
type MockGameLookup struct {
	mock.Mock
}

func (m *MockGameLookup) GameInfo(ctx context.Context, name string) (*domain.SteamGameInfo, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SteamGameInfo), args.Error(1)
}

// MockGenerator Mock TextGenerator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string, kc cache.KeyContext) string {
	args := m.Called(ctx, prompt, kc)
	return args.String(0)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func probed(url, d string, ev ...string) *domain.DomainProbeResult {
	r := domain.NewDomainProbeResult(url)
	r.Domain = d
	r.Evidence = ev
	return r
}

// TestCheckService_Check steam website is probed and the verdict generated
func TestCheckService_Check(t *testing.T) {
	prober := new(MockProber)
	games := new(MockGameLookup)
	generator := new(MockGenerator)

	ctx := context.Background()
	hades := &domain.SteamGameInfo{AppID: 1145360, Name: "Hades", Developers: []string{"Supergiant Games"}, Website: "https://www.supergiantgames.com/games/hades/"}

	games.On("GameInfo", ctx, "Hades").Return(hades, nil)
	prober.On("AnalyzeAll", ctx, []string{"https://shop.ru", hades.Website}).Return([]*domain.DomainProbeResult{
		probed("https://shop.ru", "shop.ru", evidence.RiskTLD),
		probed(hades.Website, "supergiantgames.com", evidence.NoEvidenceFound),
	})
	generator.On("Generate", ctx, mock.MatchedBy(func(prompt string) bool {
		return strings.HasPrefix(prompt, "Instruction: judge Text: Game: Hades") &&
			strings.Contains(prompt, "Developers: Supergiant Games") &&
			strings.Contains(prompt, "Domain: shop.ru")
	}), cache.KeyContext{Domain: "shop.ru", GameName: "Hades"}).Return("The shop is Russian.")

	svc := NewCheckService(prober, games, generator, &ai.Prompts{InstructionValidation: "judge"}, testLogger())

	resp, err := svc.Check(ctx, &CheckRequest{URLs: []string{"https://shop.ru"}, GameName: " Hades "})

	require.NoError(t, err)
	assert.Equal(t, "The shop is Russian.", resp.Message)
	assert.Len(t, resp.URLsMetadata, 2)
	assert.Same(t, hades, resp.SteamInfo)
	assert.NotEmpty(t, resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
	prober.AssertExpectations(t)
	games.AssertExpectations(t)
	generator.AssertExpectations(t)
}

// TestCheckService_SteamFailureIsNotFatal the check continues without metadata
func TestCheckService_SteamFailureIsNotFatal(t *testing.T) {
	prober := new(MockProber)
	games := new(MockGameLookup)
	ctx := context.Background()

	games.On("GameInfo", ctx, "Unknown Game").Return(nil, steam.ErrGameNotFound)
	prober.On("AnalyzeAll", ctx, []string{"example.com"}).Return([]*domain.DomainProbeResult{
		probed("example.com", "example.com", evidence.NoEvidenceFound),
	})

	svc := NewCheckService(prober, games, nil, nil, testLogger())

	resp, err := svc.Check(ctx, &CheckRequest{URLs: []string{"example.com"}, GameName: "Unknown Game"})

	require.NoError(t, err)
	assert.Nil(t, resp.SteamInfo)
	assert.Equal(t, DisabledMessage, resp.Message)
	assert.Len(t, resp.URLsMetadata, 1)
}

// TestCheckService_TextOnly no probing without URLs, text keys the cache
func TestCheckService_TextOnly(t *testing.T) {
	prober := new(MockProber)
	generator := new(MockGenerator)
	ctx := context.Background()

	generator.On("Generate", ctx, mock.AnythingOfType("string"), cache.KeyContext{Text: "some post"}).Return("No Russian ties.")

	svc := NewCheckService(prober, nil, generator, nil, testLogger())

	resp, err := svc.Check(ctx, &CheckRequest{Text: "some post"})

	require.NoError(t, err)
	assert.Equal(t, "No Russian ties.", resp.Message)
	assert.NotNil(t, resp.URLsMetadata)
	assert.Empty(t, resp.URLsMetadata)
	prober.AssertNotCalled(t, "AnalyzeAll", mock.Anything, mock.Anything)
}

func TestCheckRequest_Validate(t *testing.T) {
	tooMany := make([]string, MaxURLs+1)
	for i := range tooMany {
		tooMany[i] = "example.com"
	}

	tests := []struct {
		name    string
		req     *CheckRequest
		wantErr bool
	}{
		{"nil", nil, true},
		{"valid", &CheckRequest{URLs: []string{"https://example.ru"}, GameName: "Hades"}, false},
		{"ten urls", &CheckRequest{URLs: tooMany[:MaxURLs]}, false},
		{"too many urls", &CheckRequest{URLs: tooMany}, true},
		{"long url", &CheckRequest{URLs: []string{"https://example.com/" + strings.Repeat("a", MaxURLLength)}}, true},
		{"script marker", &CheckRequest{URLs: []string{"https://x.com/<SCRIPT>alert(1)"}}, true},
		{"javascript scheme", &CheckRequest{URLs: []string{"javascript:alert(1)"}}, true},
		{"onerror", &CheckRequest{URLs: []string{"https://x.com/?a=onerror=1"}}, true},
		{"long game name", &CheckRequest{GameName: strings.Repeat("g", MaxGameNameLen+1)}, true},
		{"game name injection", &CheckRequest{GameName: "x' UNION SELECT"}, true},
		{"long text", &CheckRequest{Text: strings.Repeat("t", MaxTextLength+1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidRequest), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckService_RejectsInvalid(t *testing.T) {
	prober := new(MockProber)
	svc := NewCheckService(prober, nil, nil, nil, testLogger())

	_, err := svc.Check(context.Background(), &CheckRequest{})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = svc.Check(context.Background(), &CheckRequest{URLs: []string{"javascript:void(0)"}})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = svc.Probe(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	prober.AssertNotCalled(t, "AnalyzeAll", mock.Anything, mock.Anything)
}

func TestCheckService_Probe(t *testing.T) {
	prober := new(MockProber)
	ctx := context.Background()
	urls := []string{"example.ru", "not a url"}

	prober.On("AnalyzeAll", ctx, urls).Return([]*domain.DomainProbeResult{
		probed("example.ru", "example.ru", evidence.RiskTLD),
		probed("not a url", ""),
	})

	svc := NewCheckService(prober, nil, nil, nil, testLogger())
	results, err := svc.Probe(ctx, urls)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "example.ru", results[0].Domain)
	assert.Equal(t, 1, countFlagged(results))
	prober.AssertExpectations(t)
}

func TestCheckService_CanceledContext(t *testing.T) {
	prober := new(MockProber)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober.On("AnalyzeAll", ctx, []string{"example.ru"}).Return([]*domain.DomainProbeResult{probed("example.ru", "example.ru")})

	svc := NewCheckService(prober, nil, nil, nil, testLogger())
	_, err := svc.Check(ctx, &CheckRequest{URLs: []string{"example.ru"}})
	assert.ErrorIs(t, err, context.Canceled)
}

type checkRecorder struct {
	statuses []string
	flagged  int
}

func (r *checkRecorder) RecordCheck(status string, flagged int) {
	r.statuses = append(r.statuses, status)
	r.flagged += flagged
}

func TestInstrument(t *testing.T) {
	prober := new(MockProber)
	ctx := context.Background()
	prober.On("AnalyzeAll", ctx, []string{"shop.ru"}).Return([]*domain.DomainProbeResult{
		probed("shop.ru", "shop.ru", evidence.RiskTLD),
	})

	rec := &checkRecorder{}
	svc := Instrument(NewCheckService(prober, nil, nil, nil, testLogger()), rec)

	_, err := svc.Check(ctx, &CheckRequest{URLs: []string{"shop.ru"}})
	require.NoError(t, err)
	_, err = svc.Check(ctx, &CheckRequest{})
	require.Error(t, err)

	assert.Equal(t, []string{CheckSuccess, CheckInvalid}, rec.statuses)
	assert.Equal(t, 1, rec.flagged)

	plain := NewCheckService(prober, nil, nil, nil, testLogger())
	assert.Same(t, plain, Instrument(plain, nil))
}
