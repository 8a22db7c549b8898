package evidence

import (
	"fmt"
	"strings"

	"github.com/rf-checker/rf-checker-go/internal/domain"
)

// Evidence catalogue. The strings are part of the API contract.
const (
	RiskTLD            = "Russian TLD (.ru/.su/.рф)"
	RegistrarFormat    = "Russian registrar: %s"
	HostingCountry     = "Hosting located in Russia"
	NameserverZone     = "DNS server in a Russian zone"
	NameserverGeo      = "DNS server physically located in Russia"
	HostingProviderFmt = "Russian hosting provider: %s"
	MailServerZone     = "Mail server in a Russian zone"
	WhoisServerZone    = "Russian WHOIS server"
	ContactCountry     = "Contact person from Russia"
	ASNCountry         = "ASN registered in Russia"
	HTTPServerFormat   = "HTTP server in Russia: %s"
	KnownASNFormat     = "Russian ASN: %s"
	NoEvidenceFound    = "No Russian traces found"
)

// Rule one independent predicate over a probe result.
// Eval returns the evidence string and whether the rule fired.
type Rule struct {
	Name string
	Eval func(r *domain.DomainProbeResult) (string, bool)
}

// Rules evaluated in this order; every matching rule contributes.
var Rules = []Rule{
	{Name: "tld", Eval: ruleTLD},
	{Name: "registrar", Eval: ruleRegistrar},
	{Name: "hosting_country", Eval: ruleHostingCountry},
	{Name: "nameserver_zone", Eval: ruleNameserverZone},
	{Name: "nameserver_geo", Eval: ruleNameserverGeo},
	{Name: "hosting_provider", Eval: ruleHostingProvider},
	{Name: "mx_zone", Eval: ruleMailServerZone},
	{Name: "whois_server", Eval: ruleWhoisServer},
	{Name: "contact_country", Eval: ruleContactCountry},
	{Name: "rdap_asn_country", Eval: ruleRDAPCountry},
	{Name: "http_server", Eval: ruleHTTPServer},
	{Name: "known_asn", Eval: ruleKnownASN},
}

// Classify evaluates every rule against r. The result is never empty:
// when nothing fires it is the single NoEvidenceFound sentinel.
func Classify(r *domain.DomainProbeResult) []string {
	found := make([]string, 0, 4)
	if r == nil {
		return []string{NoEvidenceFound}
	}
	for _, rule := range Rules {
		if s, ok := rule.Eval(r); ok {
			found = append(found, s)
		}
	}
	if len(found) == 0 {
		return []string{NoEvidenceFound}
	}
	return found
}

// IsNoEvidence reports whether ev is the "nothing found" sentinel.
func IsNoEvidence(ev []string) bool {
	return len(ev) == 1 && ev[0] == NoEvidenceFound
}

func ruleTLD(r *domain.DomainProbeResult) (string, bool) {
	return RiskTLD, HasRiskTLD(r.Domain)
}

func ruleRegistrar(r *domain.DomainProbeResult) (string, bool) {
	reg := strings.ToLower(r.Registrar)
	if reg == "" {
		return "", false
	}
	for _, k := range RegistrarKeywords {
		if strings.Contains(reg, k) {
			return fmt.Sprintf(RegistrarFormat, r.Registrar), true
		}
	}
	return "", false
}

func ruleHostingCountry(r *domain.DomainProbeResult) (string, bool) {
	return HostingCountry, r.Country == TargetCountry
}

func ruleNameserverZone(r *domain.DomainProbeResult) (string, bool) {
	return NameserverZone, anyInZone(r.NameServers)
}

func ruleNameserverGeo(r *domain.DomainProbeResult) (string, bool) {
	for _, entry := range r.NameserverCountries {
		if strings.Contains(entry, TargetCountry) {
			return NameserverGeo, true
		}
	}
	return "", false
}

func ruleHostingProvider(r *domain.DomainProbeResult) (string, bool) {
	if r.HostingProvider == "" {
		return "", false
	}
	p, ok := ProviderByName(r.HostingProvider)
	if !ok || !p.Flagged {
		return "", false
	}
	return fmt.Sprintf(HostingProviderFmt, p.Name), true
}

func ruleMailServerZone(r *domain.DomainProbeResult) (string, bool) {
	return MailServerZone, anyInZone(r.DNSRecords.MX)
}

func ruleWhoisServer(r *domain.DomainProbeResult) (string, bool) {
	return WhoisServerZone, inZone(r.WhoisServer)
}

func ruleContactCountry(r *domain.DomainProbeResult) (string, bool) {
	for _, c := range []string{r.RegistrantCountry, r.AdminCountry, r.TechCountry} {
		if isTargetCountry(c) {
			return ContactCountry, true
		}
	}
	return "", false
}

func ruleRDAPCountry(r *domain.DomainProbeResult) (string, bool) {
	if r.RDAPInfo == nil {
		return "", false
	}
	return ASNCountry, strings.EqualFold(r.RDAPInfo.ASNCountryCode, TargetCountryCode)
}

func ruleHTTPServer(r *domain.DomainProbeResult) (string, bool) {
	if r.HTTPHeaders == nil || r.Country != TargetCountry {
		return "", false
	}
	server := strings.ToLower(r.HTTPHeaders.Server)
	for _, sig := range ServerSignatures {
		if strings.Contains(server, sig) {
			return fmt.Sprintf(HTTPServerFormat, r.HTTPHeaders.Server), true
		}
	}
	return "", false
}

func ruleKnownASN(r *domain.DomainProbeResult) (string, bool) {
	op := r.KnownASN
	if op == "" {
		var ok bool
		if op, ok = LookupKnownASN(r.ASN); !ok {
			return "", false
		}
	}
	return fmt.Sprintf(KnownASNFormat, op), true
}

// inZone reports whether host sits under a risk TLD; trailing root dots
// from DNS answers are ignored.
func inZone(host string) bool {
	return host != "" && HasRiskTLD(strings.TrimSpace(host))
}

func anyInZone(hosts []string) bool {
	for _, h := range hosts {
		if inZone(h) {
			return true
		}
	}
	return false
}

// isTargetCountry matches WHOIS contact country values such as "RU",
// "ru" or "Russian Federation".
func isTargetCountry(c string) bool {
	c = strings.ToUpper(strings.TrimSpace(c))
	return c == TargetCountryCode || strings.Contains(c, "RUSSIA")
}
