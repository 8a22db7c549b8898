package domainanalysis

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"time"
)

// TLSInspector reads the issuer of the certificate served on :443.
type TLSInspector struct {
	timeout time.Duration
	port    string
}

func NewTLSInspector(timeout time.Duration) *TLSInspector {
	return &TLSInspector{timeout: timeout, port: "443"}
}

// Issuer returns the issuer organisation, falling back to its common name.
// The chain is not verified: the issuer of an invalid certificate is
// still provenance data.
func (i *TLSInspector) Issuer(ctx context.Context, host string) (string, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: i.timeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, i.port))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return "", errors.New("no peer certificate")
	}

	issuer := certs[0].Issuer
	if len(issuer.Organization) > 0 && strings.TrimSpace(issuer.Organization[0]) != "" {
		return issuer.Organization[0], nil
	}
	return issuer.CommonName, nil
}
