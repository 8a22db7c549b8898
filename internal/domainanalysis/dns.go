package domainanalysis

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// NewResolver system resolver, or one pinned to server ("8.8.8.8:53").
func NewResolver(server string, timeout time.Duration) *net.Resolver {
	if server == "" {
		return net.DefaultResolver
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, network, server)
		},
	}
}

// resolveIP returns the first IPv4 address of host, else the first address.
func resolveIP(ctx context.Context, r DNSResolver, host string) (string, error) {
	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("DNS lookup failed: %w", err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no IP found for %s", host)
	}

	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return addrs[0].IP.String(), nil
}

// mxHosts MX exchanges without the trailing root dot, in preference order
func mxHosts(records []*net.MX) []string {
	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		if h := strings.TrimSuffix(mx.Host, "."); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
