package domainanalysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rf-checker/rf-checker-go/internal/cache"
	"github.com/rf-checker/rf-checker-go/internal/retry"
)

// GeoClient IP geolocation client: ipapi.co first, ip-api.com as fallback.
// Answers are memoised in the result cache, the limiter is shared by all
// probe runs of the process.
type GeoClient struct {
	httpClient  *http.Client
	logger      *logrus.Logger
	primaryURL  string
	fallbackURL string
	userAgent   string
	limiter     *rate.Limiter
	policy      *retry.Policy
	store       cache.Store
}

// GeoOptions GeoClient settings
type GeoOptions struct {
	PrimaryURL  string
	FallbackURL string
	Timeout     time.Duration
	RateLimit   float64 // requests per second, <= 0 disables limiting
	Burst       int
	UserAgent   string
}

// NewGeoClient store may be nil to disable memoisation.
func NewGeoClient(opts GeoOptions, policy *retry.Policy, store cache.Store, logger *logrus.Logger) *GeoClient {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	return &GeoClient{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		logger:      logger,
		primaryURL:  strings.TrimSuffix(opts.PrimaryURL, "/"),
		fallbackURL: strings.TrimSuffix(opts.FallbackURL, "/"),
		userAgent:   opts.UserAgent,
		limiter:     rate.NewLimiter(limit, burst),
		policy:      policy,
		store:       store,
	}
}

func geoCacheKey(ip string) string {
	return "geo|ip=" + ip
}

// Locate returns the geo answer for ip, using the cache when possible.
func (c *GeoClient) Locate(ctx context.Context, ip string) (*GeoInfo, error) {
	if cached, ok := c.cached(ctx, ip); ok {
		c.logger.WithField("ip", ip).Debug("Using cached IP location")
		return cached, nil
	}

	result, err := c.query(ctx, "ipapi", ip, c.queryIPAPI)
	if err != nil && c.fallbackURL != "" {
		c.logger.WithError(err).WithField("ip", ip).Warn("ipapi.co query failed, falling back to ip-api.com")

		result, err = c.query(ctx, "ip-api", ip, c.queryIPAPICom)
	}
	if err != nil {
		return nil, fmt.Errorf("all IP location APIs failed: %w", err)
	}

	c.remember(ctx, ip, result)
	return result, nil
}

func (c *GeoClient) query(ctx context.Context, source, ip string, fn func(ctx context.Context, ip string) (*GeoInfo, error)) (*GeoInfo, error) {
	return retry.Call(ctx, c.policy, "geo."+source, func(ctx context.Context) (*GeoInfo, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return fn(ctx, ip)
	}, func(g *GeoInfo) bool {
		return g == nil || (g.Country == "" && g.ASN == "" && g.Org == "")
	})
}

func (c *GeoClient) cached(ctx context.Context, ip string) (*GeoInfo, bool) {
	if c.store == nil {
		return nil, false
	}
	raw, ok, err := c.store.Get(ctx, geoCacheKey(ip))
	if err != nil || !ok {
		return nil, false
	}
	var info GeoInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, false
	}
	return &info, true
}

func (c *GeoClient) remember(ctx context.Context, ip string, info *GeoInfo) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := c.store.Put(ctx, geoCacheKey(ip), string(raw)); err != nil {
		c.logger.WithError(err).WithField("ip", ip).Warn("Failed to cache IP location")
	}
}

// ipapiResponse https://ipapi.co/<ip>/json/
type ipapiResponse struct {
	IP          string `json:"ip"`
	CountryName string `json:"country_name"`
	ASN         string `json:"asn"`
	Org         string `json:"org"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

func (c *GeoClient) queryIPAPI(ctx context.Context, ip string) (*GeoInfo, error) {
	reqURL := fmt.Sprintf("%s/%s/json/", c.primaryURL, url.PathEscape(ip))

	var apiResp ipapiResponse
	if err := c.getJSON(ctx, reqURL, &apiResp); err != nil {
		return nil, err
	}
	if apiResp.Error {
		if strings.Contains(strings.ToLower(apiResp.Reason), "ratelimit") {
			return nil, retry.NewRetryableError(fmt.Errorf("ipapi rate limited: %s", apiResp.Reason))
		}
		return nil, fmt.Errorf("ipapi error: %s", apiResp.Reason)
	}

	return &GeoInfo{
		IP:      ip,
		Country: apiResp.CountryName,
		ASN:     apiResp.ASN,
		Org:     apiResp.Org,
		Source:  "ipapi",
	}, nil
}

// ipapiComResponse http://ip-api.com/json/<ip>
type ipapiComResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
	AS      string `json:"as"` // "AS13238 YANDEX LLC"
	Org     string `json:"org"`
	ISP     string `json:"isp"`
}

func (c *GeoClient) queryIPAPICom(ctx context.Context, ip string) (*GeoInfo, error) {
	reqURL := fmt.Sprintf("%s/json/%s?fields=status,message,country,as,org,isp", c.fallbackURL, url.PathEscape(ip))

	var apiResp ipapiComResponse
	if err := c.getJSON(ctx, reqURL, &apiResp); err != nil {
		return nil, err
	}
	if apiResp.Status != "success" {
		return nil, fmt.Errorf("ip-api error: %s", apiResp.Message)
	}

	asn, _, _ := strings.Cut(apiResp.AS, " ")
	return &GeoInfo{
		IP:      ip,
		Country: apiResp.Country,
		ASN:     asn,
		Org:     firstNonEmpty(apiResp.Org, apiResp.ISP),
		Source:  "ip-api",
	}, nil
}

func (c *GeoClient) getJSON(ctx context.Context, reqURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return httpStatusError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// httpStatusError non-200 answer; 429 and 5xx are worth retrying
func httpStatusError(code int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	err := fmt.Errorf("API returned status %d: %s", code, snippet)
	if code == http.StatusTooManyRequests || code >= 500 {
		return retry.NewRetryableError(err)
	}
	return err
}
