// Package urlutil validates and inspects the absolute http(s) URLs that
// appear as llms.txt entry targets.
package urlutil

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ParseAndValidate parses a URL string and validates that it is absolute
// with an http or https scheme. This is the admission check applied to
// every entry URL during parsing (spec: "URLs that do not parse as
// absolute HTTP/HTTPS URIs are dropped from entries").
func ParseAndValidate(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}

	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("url must be absolute with scheme (http/https) and host")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("url scheme must be http or https")
	}

	return parsedURL, nil
}

// IsRelative reports whether rawURL parses but lacks a scheme or host,
// i.e. it looks like a relative reference rather than an absolute URI.
func IsRelative(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == "" || parsed.Host == ""
}

// ValidateExternal validates that a URL is absolute http(s) and does not
// resolve to a loopback or private IP address. The fetcher's optional
// SSRF-hardening mode does not call it; that mode applies its own
// equivalent check in the fetcher's transport.
func ValidateExternal(rawURL string) error {
	parsedURL, err := ParseAndValidate(rawURL)
	if err != nil {
		return err
	}
	return validateHostExternal(parsedURL.Host)
}

// validateHostExternal checks a host[:port] string against loopback/private
// ranges, resolving it if it isn't already a literal IP.
func validateHostExternal(hostport string) error {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}

	host = strings.Trim(host, "[]")

	ip := net.ParseIP(host)
	if ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() {
			return fmt.Errorf("requests to private IP addresses are not allowed")
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}

	for _, resolvedIP := range ips {
		if resolvedIP.IsLoopback() || resolvedIP.IsPrivate() {
			return fmt.Errorf("url resolves to private IP address: %s", host)
		}
	}

	return nil
}

// Host returns the lowercased hostname (no port) of rawURL, used as the
// rate limiter's per-domain key. Returns "" if rawURL does not parse.
func Host(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
