package domainanalysis

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// ErrResolution the input cannot be reduced to a registrable domain
var ErrResolution = errors.New("domain resolution error")

// NormalizeDomain reduces a URL or bare host to its registrable domain
// (eTLD+1) in ASCII form, e.g. "https://www.shop.example.co.uk/x" ->
// "example.co.uk" and "пример.рф" -> "xn--e1afmkfd.xn--p1ai".
func NormalizeDomain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty input", ErrResolution)
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", fmt.Errorf("%w: %q is not a URL", ErrResolution, raw)
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResolution, err)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrResolution, raw)
	}
	if net.ParseIP(host) != nil {
		return "", fmt.Errorf("%w: %q is an IP address, not a domain", ErrResolution, host)
	}
	if !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: %q has no top-level domain", ErrResolution, host)
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: invalid host %q: %v", ErrResolution, host, err)
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(ascii)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResolution, err)
	}
	return registrable, nil
}

// topLevel last label of a domain
func topLevel(domain string) string {
	if i := strings.LastIndexByte(domain, '.'); i >= 0 {
		return domain[i+1:]
	}
	return domain
}
