package domainanalysis

import (
	"context"
	"net"

	"github.com/rf-checker/rf-checker-go/internal/domain"
)

// WhoisInfo registration data parsed from a WHOIS answer
type WhoisInfo struct {
	Registrar         string
	WhoisServer       string
	RegistrantCountry string
	AdminCountry      string
	TechCountry       string
	CreationDate      string
	ExpirationDate    string
	NameServers       []string
	Status            []string
	DNSSEC            string
}

// GeoInfo geo-IP answer for one address
type GeoInfo struct {
	IP      string
	Country string // country name, e.g. "Russia"
	ASN     string // "AS13238"
	Org     string
	Source  string
}

// WhoisClient domain registration lookup
type WhoisClient interface {
	Lookup(ctx context.Context, domain string) (*WhoisInfo, error)
}

// DNSResolver the subset of *net.Resolver used by the probes
type DNSResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// GeoLocator reverse geo-IP lookup
type GeoLocator interface {
	Locate(ctx context.Context, ip string) (*GeoInfo, error)
}

// RDAPClient network ownership lookup by IP
type RDAPClient interface {
	Lookup(ctx context.Context, ip string) (*domain.RDAPInfo, error)
}

// CertInspector TLS certificate issuer of a host
type CertInspector interface {
	Issuer(ctx context.Context, host string) (string, error)
}

// HeaderFetcher server identification headers of a host
type HeaderFetcher interface {
	Fetch(ctx context.Context, host string) (*domain.HTTPHeaders, error)
}

// ProbeObserver receives one event per executed probe step.
type ProbeObserver interface {
	RecordProbe(step, status string, seconds float64)
}
