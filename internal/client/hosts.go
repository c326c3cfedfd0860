package client

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ErrHostNotAllowed is returned when the page host is outside the
// development allow-list.
var ErrHostNotAllowed = errors.New("host is not a local development host")

// DefaultAllowedHosts are the hostnames and networks the router activates
// on. Entries with a "/" are CIDR prefixes, all others match exactly.
var DefaultAllowedHosts = []string{
	"localhost",
	"127.0.0.1",
	"192.168.2.0/24",
	"172.0.0.0/8",
}

// HostPolicy decides whether the router may connect from a given host.
type HostPolicy struct {
	names    map[string]struct{}
	prefixes []netip.Prefix
}

// NewHostPolicy parses allow-list entries. Nil means DefaultAllowedHosts.
func NewHostPolicy(entries []string) (*HostPolicy, error) {
	if entries == nil {
		entries = DefaultAllowedHosts
	}

	p := &HostPolicy{names: make(map[string]struct{}, len(entries))}

	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}

		if strings.Contains(e, "/") {
			prefix, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid allowed host %q: %w", e, err)
			}

			p.prefixes = append(p.prefixes, prefix.Masked())

			continue
		}

		p.names[strings.ToLower(e)] = struct{}{}
	}

	return p, nil
}

// Allowed reports whether host (without port) is on the allow-list.
func (p *HostPolicy) Allowed(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}

	if _, ok := p.names[host]; ok {
		return true
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}

	return false
}

var defaultPolicy, _ = NewHostPolicy(nil)

// HostAllowed checks host against DefaultAllowedHosts.
func HostAllowed(host string) bool {
	return defaultPolicy.Allowed(host)
}
