package urlutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidTarget is returned for URLs that cannot be captured
var ErrInvalidTarget = errors.New("invalid target URL")

// Private and reserved ranges refused as capture targets
var privateRanges = mustParseCIDRs(
	"127.0.0.0/8",    // loopback
	"10.0.0.0/8",     // RFC 1918
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"169.254.0.0/16", // link-local
	"100.64.0.0/10",  // CGNAT
	"0.0.0.0/8",
	"224.0.0.0/4", // multicast
	"::1/128",
	"fe80::/10",
	"fc00::/7",
	"ff00::/8",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in private ranges: %s", cidr))
		}
		nets = append(nets, ipNet)
	}
	return nets
}

// IsPrivateIP reports whether ip belongs to a private or reserved range
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, ipNet := range privateRanges {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ValidateTarget checks that rawURL is an absolute http(s) URL and returns it trimmed.
// Unless allowPrivate is set, IP literals in private ranges and "localhost" are refused.
// Domain names are not resolved.
func ValidateTarget(rawURL string, allowPrivate bool) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTarget)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidTarget, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}

	if !allowPrivate {
		if strings.EqualFold(host, "localhost") {
			return "", fmt.Errorf("%w: localhost is not allowed", ErrInvalidTarget)
		}
		if IsPrivateIP(net.ParseIP(host)) {
			return "", fmt.Errorf("%w: private or reserved address %s", ErrInvalidTarget, host)
		}
	}
	return trimmed, nil
}
