package domainanalysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rf-checker/rf-checker-go/internal/domain"
)

// HTTPHeaderFetcher GETs https://<host>/ and keeps the server headers.
type HTTPHeaderFetcher struct {
	client    *http.Client
	userAgent string
	scheme    string
}

func NewHTTPHeaderFetcher(timeout time.Duration, userAgent string) *HTTPHeaderFetcher {
	return &HTTPHeaderFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		scheme:    "https",
	}
}

func (f *HTTPHeaderFetcher) Fetch(ctx context.Context, host string) (*domain.HTTPHeaders, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s://%s", f.scheme, host), nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return &domain.HTTPHeaders{
		Server:     resp.Header.Get("Server"),
		XPoweredBy: resp.Header.Get("X-Powered-By"),
		CFRay:      resp.Header.Get("CF-RAY"),
	}, nil
}
