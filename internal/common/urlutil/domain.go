// Package urlutil holds URL helpers shared by the capture pipeline, the
// HTTP service and the CLI
package urlutil

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ExtractHost returns the lowercased host[:port] of rawURL, or "" when
// rawURL has no host
func ExtractHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// ExtractHostname strips the port from a host[:port] string. IPv6
// literals lose their brackets; a bare IPv6 address is returned as is.
func ExtractHostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}

// IsSameOrigin reports whether two hosts belong to the same site: equal
// after dropping ports, one a subdomain of the other, or sharing a
// registrable domain (www.example.co.uk and cdn.example.co.uk)
func IsSameOrigin(baseHost, requestHost string) bool {
	base := ExtractHostname(baseHost)
	req := ExtractHostname(requestHost)
	if base == "" || req == "" {
		return false
	}
	if base == req ||
		strings.HasSuffix(req, "."+base) ||
		strings.HasSuffix(base, "."+req) {
		return true
	}
	baseSite := RegistrableDomain(base)
	return baseSite != "" && baseSite == RegistrableDomain(req)
}

// RegistrableDomain returns the public suffix plus one label of hostname,
// or "" for IP literals and bare public suffixes
func RegistrableDomain(hostname string) string {
	if net.ParseIP(hostname) != nil {
		return ""
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(hostname))
	if err != nil {
		return ""
	}
	return site
}
