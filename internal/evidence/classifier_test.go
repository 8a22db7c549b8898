package evidence

import (
	"fmt"
	"testing"

	"github.com/rf-checker/rf-checker-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResult(d string) *domain.DomainProbeResult {
	r := domain.NewDomainProbeResult("https://" + d)
	r.Domain = d
	return r
}

// TestClassify_NoEvidence a clean result yields exactly the sentinel
func TestClassify_NoEvidence(t *testing.T) {
	r := newResult("example.com")
	r.Country = "Germany"
	r.Registrar = "GoDaddy.com, LLC"
	r.NameServers = []string{"ns1.example.com"}

	ev := Classify(r)

	assert.Equal(t, []string{NoEvidenceFound}, ev)
	assert.True(t, IsNoEvidence(ev))
}

func TestClassify_Nil(t *testing.T) {
	assert.Equal(t, []string{NoEvidenceFound}, Classify(nil))
}

// TestClassify_SingleRules each rule fires on its own field
func TestClassify_SingleRules(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		mutate func(r *domain.DomainProbeResult)
		want   string
	}{
		{"ru tld", "example.ru", func(r *domain.DomainProbeResult) {}, RiskTLD},
		{"su tld", "example.su", func(r *domain.DomainProbeResult) {}, RiskTLD},
		{"idn tld", "xn--e1afmkfd.xn--p1ai", func(r *domain.DomainProbeResult) {}, RiskTLD},
		{"registrar", "example.com", func(r *domain.DomainProbeResult) {
			r.Registrar = "RU-CENTER-RU"
		}, fmt.Sprintf(RegistrarFormat, "RU-CENTER-RU")},
		{"hosting country", "example.com", func(r *domain.DomainProbeResult) {
			r.Country = "Russia"
		}, HostingCountry},
		{"nameserver zone", "example.com", func(r *domain.DomainProbeResult) {
			r.NameServers = []string{"ns1.reg.ru."}
		}, NameserverZone},
		{"nameserver geo", "example.com", func(r *domain.DomainProbeResult) {
			r.NameserverCountries = []string{"ns1.example.com: Russia"}
		}, NameserverGeo},
		{"hosting provider", "example.com", func(r *domain.DomainProbeResult) {
			r.HostingProvider = "Selectel (RU)"
		}, fmt.Sprintf(HostingProviderFmt, "Selectel (RU)")},
		{"mx zone", "example.com", func(r *domain.DomainProbeResult) {
			r.DNSRecords.MX = []string{"mx.yandex.ru."}
		}, MailServerZone},
		{"whois server", "example.com", func(r *domain.DomainProbeResult) {
			r.WhoisServer = "whois.tcinet.ru"
		}, WhoisServerZone},
		{"contact code", "example.com", func(r *domain.DomainProbeResult) {
			r.AdminCountry = "ru"
		}, ContactCountry},
		{"contact name", "example.com", func(r *domain.DomainProbeResult) {
			r.TechCountry = "Russian Federation"
		}, ContactCountry},
		{"rdap", "example.com", func(r *domain.DomainProbeResult) {
			r.RDAPInfo = &domain.RDAPInfo{ASNCountryCode: "RU"}
		}, ASNCountry},
		{"known asn from table", "example.com", func(r *domain.DomainProbeResult) {
			r.ASN = "AS13238"
		}, fmt.Sprintf(KnownASNFormat, "Yandex")},
		{"known asn recorded", "example.com", func(r *domain.DomainProbeResult) {
			r.KnownASN = "MTS"
		}, fmt.Sprintf(KnownASNFormat, "MTS")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResult(tt.domain)
			tt.mutate(r)

			assert.Equal(t, []string{tt.want}, Classify(r))
		})
	}
}

// TestClassify_NonMatches near misses must not fire
func TestClassify_NonMatches(t *testing.T) {
	r := newResult("rumble.com")
	r.NameServers = []string{"ns.rumble.com", "ns1.rusonyx.net"}
	r.DNSRecords.MX = []string{"mx.russ.example.com"}
	r.WhoisServer = "whois.rucenter.example.net"
	r.HostingProvider = "Hetzner"
	r.RegistrantCountry = "PE"
	r.TechCountry = "Peru"
	r.RDAPInfo = &domain.RDAPInfo{ASNCountryCode: "DE"}
	r.ASN = "AS15169"
	r.HTTPHeaders = &domain.HTTPHeaders{Server: "nginx/1.25"}

	assert.Equal(t, []string{NoEvidenceFound}, Classify(r))
}

// TestClassify_HTTPServerNeedsCountry server signature only counts with a Russian IP
func TestClassify_HTTPServerNeedsCountry(t *testing.T) {
	r := newResult("example.com")
	r.HTTPHeaders = &domain.HTTPHeaders{Server: "nginx/1.25"}
	assert.True(t, IsNoEvidence(Classify(r)))

	r.Country = "Russia"
	assert.Equal(t, []string{
		HostingCountry,
		fmt.Sprintf(HTTPServerFormat, "nginx/1.25"),
	}, Classify(r))
}

// TestClassify_OrderAndNoDedup all matching rules fire in table order
func TestClassify_OrderAndNoDedup(t *testing.T) {
	r := newResult("example.ru")
	r.Registrar = "REG.RU, LLC"
	r.Country = "Russia"
	r.NameServers = []string{"ns1.reg.ru", "ns2.reg.ru"}
	r.NameserverCountries = []string{"ns1.reg.ru: Russia", "ns2.reg.ru: Russia"}
	r.HostingProvider = "Reg.ru (RU)"
	r.DNSRecords.MX = []string{"mx1.reg.ru"}
	r.WhoisServer = "whois.tcinet.ru"
	r.RegistrantCountry = "RU"
	r.RDAPInfo = &domain.RDAPInfo{ASNCountryCode: "RU"}
	r.HTTPHeaders = &domain.HTTPHeaders{Server: "Apache/2.4"}
	r.ASN = "AS12389"

	ev := Classify(r)

	require.Len(t, ev, len(Rules))
	assert.Equal(t, []string{
		RiskTLD,
		fmt.Sprintf(RegistrarFormat, "REG.RU, LLC"),
		HostingCountry,
		NameserverZone,
		NameserverGeo,
		fmt.Sprintf(HostingProviderFmt, "Reg.ru (RU)"),
		MailServerZone,
		WhoisServerZone,
		ContactCountry,
		ASNCountry,
		fmt.Sprintf(HTTPServerFormat, "Apache/2.4"),
		fmt.Sprintf(KnownASNFormat, "Rostelecom"),
	}, ev)
}

func TestLookups(t *testing.T) {
	p, ok := LookupProvider("AS49505 Selectel Ltd.")
	require.True(t, ok)
	assert.Equal(t, "Selectel (RU)", p.Name)
	assert.True(t, p.Flagged)

	p, ok = LookupProvider("AS13335 Cloudflare, Inc.")
	require.True(t, ok)
	assert.False(t, p.Flagged)

	_, ok = LookupProvider("")
	assert.False(t, ok)

	assert.Equal(t, "RIPE NCC", LookupRIR("RIPE NCC managed block"))
	assert.Equal(t, "", LookupRIR("Example Corp"))

	server, ok := WhoisServerForTLD("RU")
	assert.True(t, ok)
	assert.Equal(t, "whois.tcinet.ru", server)

	op, ok := LookupKnownASN(" as8359 ")
	assert.True(t, ok)
	assert.Equal(t, "MTS", op)
}
