package domainanalysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/domain"
	"github.com/rf-checker/rf-checker-go/internal/retry"
)

const (
	cymruOriginZone  = "origin.asn.cymru.com"
	cymruOrigin6Zone = "origin6.asn.cymru.com"
	cymruASNZone     = "asn.cymru.com"
)

// RDAPLookup network ownership of an IP: the RDAP network object gives
// name and country, Team Cymru's DNS service gives the origin ASN's
// registration country and description.
type RDAPLookup struct {
	httpClient *http.Client
	baseURL    string
	resolver   DNSResolver
	policy     *retry.Policy
	logger     *logrus.Logger
}

func NewRDAPLookup(baseURL string, timeout time.Duration, resolver DNSResolver, policy *retry.Policy, logger *logrus.Logger) *RDAPLookup {
	return &RDAPLookup{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		resolver:   resolver,
		policy:     policy,
		logger:     logger,
	}
}

// rdapNetwork fields of an RDAP "ip network" object we use
type rdapNetwork struct {
	Handle  string `json:"handle"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

// Lookup fails only when neither source answered.
func (l *RDAPLookup) Lookup(ctx context.Context, ip string) (*domain.RDAPInfo, error) {
	info := &domain.RDAPInfo{}

	network, netErr := l.network(ctx, ip)
	if netErr == nil {
		info.NetworkName = network.Name
		info.NetworkCountry = network.Country
	}

	asnErr := l.originASN(ctx, ip, info)

	if netErr != nil && asnErr != nil {
		return nil, errors.Join(netErr, asnErr)
	}
	if info.Empty() {
		return nil, errors.New("RDAP returned no network data")
	}

	l.logger.WithFields(logrus.Fields{
		"ip":          ip,
		"asn_country": info.ASNCountryCode,
		"network":     info.NetworkName,
	}).Debug("RDAP lookup completed")
	return info, nil
}

func (l *RDAPLookup) network(ctx context.Context, ip string) (*rdapNetwork, error) {
	reqURL := fmt.Sprintf("%s/ip/%s", l.baseURL, url.PathEscape(ip))

	return retry.Call(ctx, l.policy, "rdap.ip", func(ctx context.Context) (*rdapNetwork, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/rdap+json")

		resp, err := l.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("rdap request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("rdap read failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, httpStatusError(resp.StatusCode, body)
		}

		var n rdapNetwork
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, fmt.Errorf("rdap decode failed: %w", err)
		}
		return &n, nil
	}, nil)
}

// originASN fills ASNCountryCode and ASNDescription from Team Cymru.
func (l *RDAPLookup) originASN(ctx context.Context, ip string, info *domain.RDAPInfo) error {
	query, err := cymruOriginQuery(ip)
	if err != nil {
		return err
	}

	records, err := l.resolver.LookupTXT(ctx, query)
	if err != nil {
		return fmt.Errorf("cymru origin lookup: %w", err)
	}
	if len(records) == 0 {
		return errors.New("cymru origin lookup: no answer")
	}

	// "13238 | 5.255.255.0/24 | RU | ripencc | 2011-05-25"
	origin := splitCymru(records[0])
	if len(origin) < 3 {
		return fmt.Errorf("cymru origin lookup: malformed answer %q", records[0])
	}
	asn, _, _ := strings.Cut(origin[0], " ")
	info.ASNCountryCode = origin[2]

	records, err = l.resolver.LookupTXT(ctx, fmt.Sprintf("AS%s.%s", asn, cymruASNZone))
	if err != nil || len(records) == 0 {
		// the origin answer alone is still useful
		return nil
	}
	// "13238 | RU | ripencc | 2007-01-30 | YANDEX, RU"
	if desc := splitCymru(records[0]); len(desc) >= 5 {
		info.ASNDescription = desc[4]
	}
	return nil
}

func splitCymru(record string) []string {
	parts := strings.Split(record, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// cymruOriginQuery reversed-address name, e.g. 5.255.255.77 ->
// 77.255.255.5.origin.asn.cymru.com
func cymruOriginQuery(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid IP %q", ip)
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.%d.%s", v4[3], v4[2], v4[1], v4[0], cymruOriginZone), nil
	}

	const hexDigits = "0123456789abcdef"
	v6 := parsed.To16()
	var b strings.Builder
	for i := len(v6) - 1; i >= 0; i-- {
		b.WriteByte(hexDigits[v6[i]&0x0f])
		b.WriteByte('.')
		b.WriteByte(hexDigits[v6[i]>>4])
		b.WriteByte('.')
	}
	b.WriteString(cymruOrigin6Zone)
	return b.String(), nil
}
