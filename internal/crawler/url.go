package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// CleanURL prefixes bare hosts with https://. Anything already starting with
// "http" is returned untouched.
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	return "https://" + raw
}

// ParseStartURL cleans and validates the seed URL of a traversal.
func ParseStartURL(raw string) (*url.URL, error) {
	cleaned := CleanURL(raw)
	u, err := url.Parse(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}
	if !isHTTP(u) || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, and sorts query parameters.
// It also removes fragments and a bare root path, so "https://a.test/" and
// "https://a.test" share one key.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return normalize(u), nil
}

// ResolveLink resolves href against base and returns the normalized absolute
// URL. Only http and https targets are accepted.
func ResolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if !isHTTP(abs) || abs.Hostname() == "" {
		return "", false
	}
	return normalize(abs), true
}

func normalize(u *url.URL) string {
	out := *u
	out.Scheme = strings.ToLower(out.Scheme)
	out.Host = strings.ToLower(out.Host)

	if out.Scheme == "http" && strings.HasSuffix(out.Host, ":80") {
		out.Host = strings.TrimSuffix(out.Host, ":80")
	}
	if out.Scheme == "https" && strings.HasSuffix(out.Host, ":443") {
		out.Host = strings.TrimSuffix(out.Host, ":443")
	}

	if out.Path == "/" {
		out.Path = ""
		out.RawPath = ""
	}

	out.Fragment = ""
	out.RawFragment = ""

	if out.RawQuery != "" {
		out.RawQuery = out.Query().Encode()
	}
	return out.String()
}

func isHTTP(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// HostOf returns the lowercased hostname of rawURL, or "" when unparsable.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
