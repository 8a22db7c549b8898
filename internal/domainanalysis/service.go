package domainanalysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rf-checker/rf-checker-go/internal/cache"
	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/domain"
	"github.com/rf-checker/rf-checker-go/internal/evidence"
	"github.com/rf-checker/rf-checker-go/internal/retry"
)

const tracerName = "github.com/rf-checker/rf-checker-go/internal/domainanalysis"

// step outcomes reported to the observer
const (
	statusOK      = "ok"
	statusError   = "error"
	statusSkipped = "skipped"
)

// Probes data sources used by the orchestrator
type Probes struct {
	Whois    WhoisClient
	Resolver DNSResolver
	Geo      GeoLocator
	RDAP     RDAPClient
	Certs    CertInspector
	Headers  HeaderFetcher
}

// Service runs the probe steps for a URL and classifies the result.
type Service struct {
	probes      Probes
	stepTimeout time.Duration
	concurrency int
	observer    ProbeObserver
	tracer      trace.Tracer
	logger      *logrus.Logger
}

// NewService stepTimeout bounds each step, concurrency bounds AnalyzeAll.
func NewService(probes Probes, stepTimeout time.Duration, concurrency int, logger *logrus.Logger) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		probes:      probes,
		stepTimeout: stepTimeout,
		concurrency: concurrency,
		tracer:      otel.Tracer(tracerName),
		logger:      logger,
	}
}

// NewServiceFromConfig wires the network probes.
func NewServiceFromConfig(cfg *config.ProbeConfig, policy *retry.Policy, store cache.Store, logger *logrus.Logger) *Service {
	resolver := NewResolver(cfg.DNSServer, cfg.StepTimeout)

	probes := Probes{
		Whois:    NewWhoisLookup(cfg.StepTimeout, logger),
		Resolver: resolver,
		Geo: NewGeoClient(GeoOptions{
			PrimaryURL:  cfg.GeoPrimaryURL,
			FallbackURL: cfg.GeoFallbackURL,
			Timeout:     cfg.GeoTimeout,
			RateLimit:   cfg.GeoRateLimit,
			Burst:       cfg.GeoBurst,
			UserAgent:   cfg.UserAgent,
		}, policy, store, logger),
		RDAP:    NewRDAPLookup(cfg.RDAPBaseURL, cfg.HTTPTimeout, resolver, policy, logger),
		Certs:   NewTLSInspector(cfg.HTTPTimeout),
		Headers: NewHTTPHeaderFetcher(cfg.HTTPTimeout, cfg.UserAgent),
	}
	return NewService(probes, cfg.StepTimeout, cfg.Concurrency, logger)
}

// SetObserver reports every step to o.
func (s *Service) SetObserver(o ProbeObserver) {
	s.observer = o
}

// Analyze runs every probe step for rawURL in a fixed order.
// Step failures end up in the result's Errors; the call itself never fails.
func (s *Service) Analyze(ctx context.Context, rawURL string) *domain.DomainProbeResult {
	ctx, span := s.tracer.Start(ctx, "domainanalysis.Analyze", trace.WithAttributes(attribute.String("url", rawURL)))
	defer span.End()

	start := time.Now()
	result := domain.NewDomainProbeResult(rawURL)

	// 1. normalize; nothing else can run without a domain
	registrable, err := NormalizeDomain(rawURL)
	if err != nil {
		s.record("normalize", statusError, start)
		span.SetStatus(codes.Error, err.Error())
		result.AddError(fmt.Sprintf("Domain parse error: %v", err))
		s.logger.WithFields(logrus.Fields{
			"url":   rawURL,
			"error": err.Error(),
		}).Warn("URL could not be resolved to a domain")
		return result
	}
	s.record("normalize", statusOK, start)
	result.Domain = registrable
	span.SetAttributes(attribute.String("domain", registrable))

	s.step(ctx, result, "whois", "WHOIS", s.lookupWhois)
	s.step(ctx, result, "ip", "IP resolution", s.resolveAddress)
	s.step(ctx, result, "geo", "Geo lookup", s.locateAddress)
	s.step(ctx, result, "rdap", "RDAP", s.lookupRDAP)
	s.step(ctx, result, "cctld", "ccTLD", s.applyCCTLDServer)
	s.step(ctx, result, "rir", "RIR", s.detectRIR)
	s.step(ctx, result, "hosting", "Hosting", s.detectHostingProvider)
	s.step(ctx, result, "ns_geo", "NS location", s.locateNameservers)
	s.step(ctx, result, "dns_records", "DNS records", s.lookupRecords)
	s.step(ctx, result, "tls", "SSL check", s.inspectCertificate)
	s.step(ctx, result, "http_headers", "HTTP headers", s.fetchHeaders)
	s.step(ctx, result, "asn", "ASN", s.matchKnownASN)

	// 13. evidence, exactly once, after every probe
	result.Evidence = evidence.Classify(result)

	s.logger.WithFields(logrus.Fields{
		"url":      rawURL,
		"domain":   result.Domain,
		"country":  result.Country,
		"evidence": len(result.Evidence),
		"errors":   len(result.Errors),
		"duration": time.Since(start),
	}).Info("Domain probe completed")

	return result
}

// AnalyzeAll probes urls with bounded parallelism, keeping input order.
func (s *Service) AnalyzeAll(ctx context.Context, urls []string) []*domain.DomainProbeResult {
	results := make([]*domain.DomainProbeResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = s.Analyze(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// errSkipped marks a step whose prerequisites are missing
var errSkipped = errors.New("skipped")

func (s *Service) step(ctx context.Context, r *domain.DomainProbeResult, name, label string, fn func(ctx context.Context, r *domain.DomainProbeResult) error) {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "probe."+name)
	defer span.End()

	if s.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.stepTimeout)
		defer cancel()
	}

	err := fn(ctx, r)
	switch {
	case err == nil:
		s.record(name, statusOK, start)
	case errors.Is(err, errSkipped):
		s.record(name, statusSkipped, start)
		span.SetAttributes(attribute.Bool("skipped", true))
	default:
		s.record(name, statusError, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.AddError(fmt.Sprintf("%s error: %v", label, err))
		s.logger.WithFields(logrus.Fields{
			"domain": r.Domain,
			"step":   name,
			"error":  err.Error(),
		}).Debug("Probe step failed")
	}
}

func (s *Service) record(step, status string, start time.Time) {
	if s.observer != nil {
		s.observer.RecordProbe(step, status, time.Since(start).Seconds())
	}
}

// 2. WHOIS
func (s *Service) lookupWhois(ctx context.Context, r *domain.DomainProbeResult) error {
	if s.probes.Whois == nil {
		return errSkipped
	}
	info, err := s.probes.Whois.Lookup(ctx, r.Domain)
	if err != nil {
		return err
	}

	r.Registrar = info.Registrar
	r.WhoisServer = info.WhoisServer
	r.RegistrantCountry = info.RegistrantCountry
	r.AdminCountry = info.AdminCountry
	r.TechCountry = info.TechCountry
	r.CreationDate = info.CreationDate
	r.ExpirationDate = info.ExpirationDate
	r.DNSSEC = info.DNSSEC
	if info.NameServers != nil {
		r.NameServers = info.NameServers
	}
	if info.Status != nil {
		r.Status = info.Status
	}
	return nil
}

// 3a. IP resolution
func (s *Service) resolveAddress(ctx context.Context, r *domain.DomainProbeResult) error {
	if s.probes.Resolver == nil {
		return errSkipped
	}
	ip, err := resolveIP(ctx, s.probes.Resolver, r.Domain)
	if err != nil {
		return err
	}
	r.IP = ip
	return nil
}

// 3b. geo-IP, only with an address
func (s *Service) locateAddress(ctx context.Context, r *domain.DomainProbeResult) error {
	if r.IP == "" || s.probes.Geo == nil {
		return errSkipped
	}
	geo, err := s.probes.Geo.Locate(ctx, r.IP)
	if err != nil {
		return err
	}
	r.Country = geo.Country
	r.ASN = geo.ASN
	r.Org = geo.Org
	return nil
}

// 4. RDAP
func (s *Service) lookupRDAP(ctx context.Context, r *domain.DomainProbeResult) error {
	if r.IP == "" || s.probes.RDAP == nil {
		return errSkipped
	}
	info, err := s.probes.RDAP.Lookup(ctx, r.IP)
	if err != nil {
		return err
	}
	if !info.Empty() {
		r.RDAPInfo = info
	}
	return nil
}

// 5. ccTLD registry server overrides the WHOIS referral
func (s *Service) applyCCTLDServer(_ context.Context, r *domain.DomainProbeResult) error {
	if server, ok := evidence.WhoisServerForTLD(topLevel(r.Domain)); ok {
		r.WhoisServer = server
	}
	return nil
}

// 6. RIR
func (s *Service) detectRIR(_ context.Context, r *domain.DomainProbeResult) error {
	if r.Org == "" {
		return errSkipped
	}
	r.RIR = evidence.LookupRIR(r.Org)
	return nil
}

// 7. hosting provider
func (s *Service) detectHostingProvider(_ context.Context, r *domain.DomainProbeResult) error {
	if r.Org == "" {
		return errSkipped
	}
	if p, ok := evidence.LookupProvider(r.Org); ok {
		r.HostingProvider = p.Name
	}
	return nil
}

// 8. name server geography; failing servers are skipped silently
func (s *Service) locateNameservers(ctx context.Context, r *domain.DomainProbeResult) error {
	if len(r.NameServers) == 0 || s.probes.Resolver == nil || s.probes.Geo == nil {
		return errSkipped
	}
	countries := make([]string, 0, len(r.NameServers))
	for _, ns := range r.NameServers {
		ip, err := resolveIP(ctx, s.probes.Resolver, ns)
		if err != nil {
			continue
		}
		geo, err := s.probes.Geo.Locate(ctx, ip)
		if err != nil {
			continue
		}
		country := geo.Country
		if country == "" {
			country = "Unknown"
		}
		countries = append(countries, fmt.Sprintf("%s: %s", ns, country))
	}
	r.NameserverCountries = countries
	return nil
}

// 9. MX and TXT, each best-effort
func (s *Service) lookupRecords(ctx context.Context, r *domain.DomainProbeResult) error {
	if s.probes.Resolver == nil {
		return errSkipped
	}
	if mx, err := s.probes.Resolver.LookupMX(ctx, r.Domain); err == nil {
		r.DNSRecords.MX = mxHosts(mx)
	}
	if txt, err := s.probes.Resolver.LookupTXT(ctx, r.Domain); err == nil {
		r.DNSRecords.TXT = txt
	}
	return nil
}

// 10. TLS issuer
func (s *Service) inspectCertificate(ctx context.Context, r *domain.DomainProbeResult) error {
	if s.probes.Certs == nil {
		return errSkipped
	}
	issuer, err := s.probes.Certs.Issuer(ctx, r.Domain)
	if err != nil {
		return err
	}
	r.SSLIssuer = issuer
	return nil
}

// 11. HTTP headers; the server/country rule is part of the classifier
func (s *Service) fetchHeaders(ctx context.Context, r *domain.DomainProbeResult) error {
	if s.probes.Headers == nil {
		return errSkipped
	}
	headers, err := s.probes.Headers.Fetch(ctx, r.Domain)
	if err != nil {
		return err
	}
	r.HTTPHeaders = headers
	return nil
}

// 12. known ASN table
func (s *Service) matchKnownASN(_ context.Context, r *domain.DomainProbeResult) error {
	if r.ASN == "" {
		return errSkipped
	}
	if op, ok := evidence.LookupKnownASN(r.ASN); ok {
		r.KnownASN = op
	}
	return nil
}
