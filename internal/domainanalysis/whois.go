package domainanalysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/evidence"
)

// WhoisLookup queries WHOIS servers over port 43 and parses the answer.
type WhoisLookup struct {
	client *whois.Client
	logger *logrus.Logger
}

// NewWhoisLookup timeout bounds every WHOIS connection.
func NewWhoisLookup(timeout time.Duration, logger *logrus.Logger) *WhoisLookup {
	client := whois.NewClient()
	client.SetTimeout(timeout)
	return &WhoisLookup{client: client, logger: logger}
}

// Lookup asks the ccTLD server directly when one is known, otherwise
// follows the IANA referral chain.
func (w *WhoisLookup) Lookup(ctx context.Context, domainName string) (*WhoisInfo, error) {
	var servers []string
	if server, ok := evidence.WhoisServerForTLD(topLevel(domainName)); ok {
		servers = append(servers, server)
	}

	type answer struct {
		raw string
		err error
	}
	done := make(chan answer, 1)
	go func() {
		raw, err := w.client.Whois(domainName, servers...)
		done <- answer{raw: raw, err: err}
	}()

	var raw string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case a := <-done:
		if a.err != nil {
			return nil, a.err
		}
		raw = a.raw
	}

	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		// reserved or unregistered names still produce a raw answer
		if errors.Is(err, whoisparser.ErrNotFoundDomain) {
			return nil, fmt.Errorf("domain not registered: %w", err)
		}
		return nil, fmt.Errorf("parse whois answer: %w", err)
	}

	info := fromParsed(parsed)
	w.logger.WithFields(logrus.Fields{
		"domain":    domainName,
		"registrar": info.Registrar,
		"ns":        len(info.NameServers),
	}).Debug("WHOIS lookup completed")

	return info, nil
}

func fromParsed(p whoisparser.WhoisInfo) *WhoisInfo {
	info := &WhoisInfo{
		NameServers: []string{},
		Status:      []string{},
	}

	if d := p.Domain; d != nil {
		info.WhoisServer = d.WhoisServer
		info.CreationDate = d.CreatedDate
		info.ExpirationDate = d.ExpirationDate
		for _, ns := range d.NameServers {
			if ns = strings.ToLower(strings.TrimSpace(ns)); ns != "" {
				info.NameServers = append(info.NameServers, ns)
			}
		}
		info.Status = append(info.Status, d.Status...)
		if d.DNSSec {
			info.DNSSEC = "signed"
		} else {
			info.DNSSEC = "unsigned"
		}
	}
	if p.Registrar != nil {
		info.Registrar = firstNonEmpty(p.Registrar.Name, p.Registrar.Organization)
	}
	if p.Registrant != nil {
		info.RegistrantCountry = p.Registrant.Country
	}
	if p.Administrative != nil {
		info.AdminCountry = p.Administrative.Country
	}
	if p.Technical != nil {
		info.TechCountry = p.Technical.Country
	}
	return info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
