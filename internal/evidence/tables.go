package evidence

import "strings"

// TargetCountry country name reported by the geo probes for the target nation
const TargetCountry = "Russia"

// TargetCountryCode ISO 3166 code of the target nation
const TargetCountryCode = "RU"

// RiskTLDs top-level domains of the target nation, ASCII and IDN forms
var RiskTLDs = []string{"ru", "su", "рф", "xn--p1ai"}

// CCTLDWhoisServers ccTLD -> authoritative WHOIS server
var CCTLDWhoisServers = map[string]string{
	"ru":       "whois.tcinet.ru",
	"su":       "whois.tcinet.ru",
	"рф":       "whois.tcinet.ru",
	"xn--p1ai": "whois.tcinet.ru",
	"by":       "whois.cctld.by",
	"ua":       "whois.ua",
	"kz":       "whois.nic.kz",
}

// RIR Regional Internet Registry and the regions it serves
type RIR struct {
	Name    string
	Regions []string
}

// RIRs matched against the IP owner's org, in this order
var RIRs = []RIR{
	{Name: "RIPE NCC", Regions: []string{"Europe", "Middle East", "Russia"}},
	{Name: "ARIN", Regions: []string{"North America"}},
	{Name: "APNIC", Regions: []string{"Asia Pacific"}},
	{Name: "LACNIC", Regions: []string{"Latin America"}},
	{Name: "AFRINIC", Regions: []string{"Africa"}},
}

// HostingProvider hosting company recognized by a keyword in the IP org
type HostingProvider struct {
	Keyword string
	Name    string
	Flagged bool // operated from the target nation
}

// HostingProviders checked in order, first match wins
var HostingProviders = []HostingProvider{
	{Keyword: "cloudflare", Name: "Cloudflare"},
	{Keyword: "amazon", Name: "AWS"},
	{Keyword: "google", Name: "Google Cloud"},
	{Keyword: "microsoft", Name: "Azure"},
	{Keyword: "digitalocean", Name: "DigitalOcean"},
	{Keyword: "ovh", Name: "OVH"},
	{Keyword: "hetzner", Name: "Hetzner"},
	{Keyword: "selectel", Name: "Selectel (RU)", Flagged: true},
	{Keyword: "beget", Name: "Beget (RU)", Flagged: true},
	{Keyword: "reg.ru", Name: "Reg.ru (RU)", Flagged: true},
	{Keyword: "timeweb", Name: "Timeweb (RU)", Flagged: true},
}

// RegistrarKeywords substrings of registrar names tied to the target nation
var RegistrarKeywords = []string{
	"ru-center", "reg.ru", "beget", "timeweb", "masterhost", "yandex",
	"rambler", "rostelecom", ".ru", ".su", ".rf", "hostland", "selectel",
}

// KnownASNs ASN -> network operator, exact match
var KnownASNs = map[string]string{
	"AS8359":  "MTS",
	"AS12389": "Rostelecom",
	"AS47764": "VKontakte",
	"AS13238": "Yandex",
	"AS31213": "Megafon",
}

// ServerSignatures Server header fragments checked against the hosting country
var ServerSignatures = []string{"nginx/", "apache/", "yandex"}

// LookupProvider returns the first provider whose keyword occurs in org.
func LookupProvider(org string) (HostingProvider, bool) {
	org = strings.ToLower(org)
	if org == "" {
		return HostingProvider{}, false
	}
	for _, p := range HostingProviders {
		if strings.Contains(org, p.Keyword) {
			return p, true
		}
	}
	return HostingProvider{}, false
}

// ProviderByName finds a provider by its display name.
func ProviderByName(name string) (HostingProvider, bool) {
	for _, p := range HostingProviders {
		if p.Name == name {
			return p, true
		}
	}
	return HostingProvider{}, false
}

// LookupRIR returns the registry named in org, or "".
func LookupRIR(org string) string {
	org = strings.ToLower(org)
	if org == "" {
		return ""
	}
	for _, r := range RIRs {
		if strings.Contains(org, strings.ToLower(r.Name)) {
			return r.Name
		}
	}
	return ""
}

// LookupKnownASN returns the operator for an exact ASN match.
func LookupKnownASN(asn string) (string, bool) {
	op, ok := KnownASNs[strings.ToUpper(strings.TrimSpace(asn))]
	return op, ok
}

// WhoisServerForTLD returns the ccTLD WHOIS server override.
func WhoisServerForTLD(tld string) (string, bool) {
	server, ok := CCTLDWhoisServers[strings.ToLower(tld)]
	return server, ok
}

// HasRiskTLD reports whether domain ends in one of the risk TLDs.
func HasRiskTLD(domain string) bool {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	for _, tld := range RiskTLDs {
		if strings.HasSuffix(domain, "."+tld) {
			return true
		}
	}
	return false
}
