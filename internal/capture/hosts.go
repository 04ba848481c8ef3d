package capture

import (
	"net/url"
	"strings"
)

// hostnameOf returns the lowercased hostname of rawURL without port.
// data:, blob: and unparsable URLs yield "".
func hostnameOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// sameSite reports whether two hostnames are equal or one is a subdomain of the other.
func sameSite(base, host string) bool {
	if base == "" || host == "" {
		return false
	}
	return base == host ||
		strings.HasSuffix(host, "."+base) ||
		strings.HasSuffix(base, "."+host)
}

func classifyStatusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return StatusClass2xx
	case code >= 300 && code < 400:
		return StatusClass3xx
	case code >= 400 && code < 500:
		return StatusClass4xx
	case code >= 500 && code < 600:
		return StatusClass5xx
	default:
		return ""
	}
}
