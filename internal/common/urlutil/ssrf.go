package urlutil

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// privatePrefixes are loopback, private, link-local, CGNAT, "this
// network" and multicast ranges
var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("ff00::/8"),
}

// IsPrivateAddr reports whether addr is in a private or reserved range.
// IPv4-mapped IPv6 addresses are checked as IPv4.
func IsPrivateAddr(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver looks up the addresses of a hostname
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// CaptureGuard refuses capture targets on private networks. With a nil
// Resolver only IP literals and localhost names are checked.
type CaptureGuard struct {
	Resolver Resolver
}

// NewCaptureGuard checks literals and resolved names with the system resolver
func NewCaptureGuard() *CaptureGuard {
	return &CaptureGuard{Resolver: net.DefaultResolver}
}

// Check validates that rawURL is http(s) and does not point at a private address
func (g *CaptureGuard) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("url has no host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("host %s is not allowed", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsPrivateAddr(addr) {
			return fmt.Errorf("host is a private/reserved address: %s", host)
		}
		return nil
	}

	if g == nil || g.Resolver == nil {
		return nil
	}
	addrs, err := g.Resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if IsPrivateAddr(addr) {
			return fmt.Errorf("host %s resolves to private/reserved address %s", host, addr)
		}
	}
	return nil
}
