package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHost(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/path", "example.com"},
		{"https://Example.COM:8080/a?b=c", "example.com:8080"},
		{"http://[::1]:9222/json", "[::1]:9222"},
		{"/relative/path", ""},
		{"", ""},
		{"://bad", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractHost(tt.url))
		})
	}
}

func TestExtractHostname(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"example.com", "example.com"},
		{"example.com:8080", "example.com"},
		{"192.168.1.1:80", "192.168.1.1"},
		{"[::1]:8080", "::1"},
		{"[::1]", "::1"},
		{"::1", "::1"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractHostname(tt.host))
		})
	}
}

func TestIsSameOrigin(t *testing.T) {
	tests := []struct {
		name      string
		base, req string
		want      bool
	}{
		{"identical", "example.com", "example.com", true},
		{"subdomain", "example.com", "cdn.static.example.com", true},
		{"parent", "www.example.com", "example.com", true},
		{"ports ignored", "example.com:8080", "www.example.com:9090", true},
		{"other site", "example.com", "other.com", false},
		{"suffix is not subdomain", "example.com", "notexample.com", false},
		{"sibling subdomains", "www.example.com", "cdn.example.com", true},
		{"sibling under multi-label suffix", "www.example.co.uk", "img.example.co.uk", true},
		{"different sites under one suffix", "alice.github.io", "bob.github.io", false},
		{"ip literals", "10.0.0.1", "10.0.0.2", false},
		{"empty base", "", "example.com", false},
		{"empty request", "example.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSameOrigin(tt.base, tt.req))
		})
	}
}

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"www.example.com", "example.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"Example.COM", "example.com"},
		{"co.uk", ""},
		{"127.0.0.1", ""},
		{"::1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, RegistrableDomain(tt.host))
		})
	}
}
