package domain

// DomainProbeResult evidence report for one input URL
//
// A result is created by NewDomainProbeResult at the start of a probe run,
// filled in by the orchestrator's probe steps in a fixed order and then
// treated as read-only once Evidence has been classified.
type DomainProbeResult struct {
	InputURL string `json:"input_url"`
	Domain   string `json:"domain,omitempty"`

	// IP / geo
	IP      string `json:"ip,omitempty"`
	Country string `json:"country,omitempty"`
	ASN     string `json:"asn,omitempty"`
	Org     string `json:"org,omitempty"`
	RIR     string `json:"rir,omitempty"`

	// WHOIS
	Registrar         string   `json:"registrar,omitempty"`
	WhoisServer       string   `json:"whois_server,omitempty"`
	RegistrantCountry string   `json:"registrant_country,omitempty"`
	AdminCountry      string   `json:"admin_country,omitempty"`
	TechCountry       string   `json:"tech_country,omitempty"`
	CreationDate      string   `json:"creation_date,omitempty"`
	ExpirationDate    string   `json:"expiration_date,omitempty"`
	NameServers       []string `json:"name_servers"`
	DNSSEC            string   `json:"dnssec,omitempty"`
	Status            []string `json:"status"`

	NameserverCountries []string     `json:"nameserver_countries"`
	HostingProvider     string       `json:"hosting_provider,omitempty"`
	DNSRecords          DNSRecords   `json:"dns_records"`
	SSLIssuer           string       `json:"ssl_issuer,omitempty"`
	HTTPHeaders         *HTTPHeaders `json:"http_headers,omitempty"`
	KnownASN            string       `json:"known_asn,omitempty"`
	RDAPInfo            *RDAPInfo    `json:"rdap_info,omitempty"`

	Evidence []string `json:"evidence"`
	Errors   []string `json:"errors"`
}

// DNSRecords record type -> values
type DNSRecords struct {
	MX  []string `json:"mx,omitempty"`
	TXT []string `json:"txt,omitempty"`
}

// RDAPInfo network ownership data for the resolved IP
type RDAPInfo struct {
	ASNCountryCode string `json:"asn_country_code,omitempty"`
	ASNDescription string `json:"asn_description,omitempty"`
	NetworkName    string `json:"network_name,omitempty"`
	NetworkCountry string `json:"network_country,omitempty"`
}

// Empty reports whether no RDAP field was learned.
func (r *RDAPInfo) Empty() bool {
	return r == nil || *r == RDAPInfo{}
}

// HTTPHeaders server identification headers of the site's HTTPS root
type HTTPHeaders struct {
	Server     string `json:"server,omitempty"`
	XPoweredBy string `json:"x_powered_by,omitempty"`
	CFRay      string `json:"cf_ray,omitempty"`
}

// NewDomainProbeResult allocates a fresh result owned by a single run.
func NewDomainProbeResult(inputURL string) *DomainProbeResult {
	return &DomainProbeResult{
		InputURL:            inputURL,
		NameServers:         []string{},
		NameserverCountries: []string{},
		Status:              []string{},
		Evidence:            []string{},
		Errors:              []string{},
	}
}

// AddError records a failed probe step.
func (r *DomainProbeResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Resolved reports whether the input URL was normalized into a domain.
func (r *DomainProbeResult) Resolved() bool {
	return r.Domain != ""
}
