// Package security validates URLs before the process reaches out to them:
// URLs the model asks to verify and the configured provider endpoints.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// URLPolicy configures outbound URL validation.
type URLPolicy struct {
	// AllowHTTP permits plain HTTP URLs. HTTPS is always allowed.
	AllowHTTP bool
	// AllowLocalNetworks permits loopback/private/link-local IP targets and localhost hostnames.
	AllowLocalNetworks bool
}

// PublicWeb accepts http and https URLs pointing outside the local network.
var PublicWeb = URLPolicy{AllowHTTP: true}

// URLError is a rejected URL. Message is suitable for tool results.
type URLError struct {
	URL     string
	Message string
}

func (e *URLError) Error() string {
	return e.Message
}

func reject(rawURL, format string, args ...interface{}) error {
	return &URLError{URL: rawURL, Message: errors.Errorf(format, args...).Error()}
}

// Check parses rawURL and validates it against the policy. Hosts given as
// names are not resolved.
func (p URLPolicy) Check(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, reject(rawURL, "Invalid URL provided - must be a non-empty string")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, reject(rawURL, "URL parsing failed: %v", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, reject(rawURL, "Invalid URL format - must include scheme (http/https) and domain")
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return nil, reject(rawURL, "http scheme is not allowed")
		}
	default:
		return nil, reject(rawURL, "Unsupported URL scheme '%s' - only http and https are supported", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, reject(rawURL, "Invalid URL format - must include scheme (http/https) and domain")
	}

	if !p.AllowLocalNetworks {
		if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
			return nil, reject(rawURL, "local hostname %q is not allowed", host)
		}
	}

	// IP literals are checked without DNS lookups.
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Zone() != "" && !p.AllowLocalNetworks {
			return nil, reject(rawURL, "zoned IP address %q is not allowed", host)
		}
		addr = addr.Unmap()

		if addr.IsUnspecified() || addr.IsMulticast() {
			return nil, reject(rawURL, "disallowed IP address %q", host)
		}

		if !p.AllowLocalNetworks {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
				return nil, reject(rawURL, "local network IP %q is not allowed", host)
			}
		}
	}

	return parsed, nil
}

// ValidateBaseURL checks a configured API base URL. Plain HTTP and local
// targets are accepted only when allowLocal is set.
func ValidateBaseURL(rawURL string, allowLocal bool) error {
	_, err := URLPolicy{AllowHTTP: allowLocal, AllowLocalNetworks: allowLocal}.Check(rawURL)
	if err != nil {
		return errors.Wrapf(err, "invalid base URL %s", rawURL)
	}
	return nil
}
