package configtypes

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ListenAddr is a parsed server or metrics address. An empty Host binds
// every interface.
type ListenAddr struct {
	Host string
	Port int
}

// String returns the address in the host:port form fasthttp listens on
func (a ListenAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseListen reads ":9222", "127.0.0.1:9222", "[::1]:9222" or a bare
// "9222" and checks the port range.
func ParseListen(s string) (ListenAddr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ListenAddr{}, fmt.Errorf("listen address is empty")
	}

	host, portStr := "", s
	if strings.Contains(s, ":") {
		var err error
		host, portStr, err = net.SplitHostPort(s)
		if err != nil {
			return ListenAddr{}, fmt.Errorf("invalid listen address %q: %w", s, err)
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ListenAddr{}, fmt.Errorf("invalid port %q in listen address %q", portStr, s)
	}
	if port < 1 || port > 65535 {
		return ListenAddr{}, fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return ListenAddr{Host: host, Port: port}, nil
}

// Conflicts reports whether both addresses would try to bind the same
// port on an overlapping interface
func (a ListenAddr) Conflicts(b ListenAddr) bool {
	if a.Port != b.Port {
		return false
	}
	return a.Host == "" || b.Host == "" || a.Host == b.Host
}
