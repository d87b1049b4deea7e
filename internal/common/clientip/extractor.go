// Package clientip identifies API callers for rate limiting and the
// capture event log
package clientip

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"
)

// Extract returns the client IP from the first non-empty configured
// header, falling back to the peer address.
func Extract(ctx *fasthttp.RequestCtx, headers []string) string {
	for _, header := range headers {
		value := strings.TrimSpace(string(ctx.Request.Header.Peek(header)))
		if ip := firstHop(value); ip != "" {
			return ip
		}
	}
	return fromRemoteAddr(ctx.RemoteAddr().String())
}

// firstHop takes the originating client of a forwarded chain
func firstHop(value string) string {
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[:idx]
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return normalize(value)
}

func fromRemoteAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return normalize(addr)
	}
	return normalize(host)
}

func normalize(raw string) string {
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	if idx := strings.IndexByte(raw, '%'); idx >= 0 {
		raw = raw[:idx]
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return raw
	}
	return ip.String()
}
