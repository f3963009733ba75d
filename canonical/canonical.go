// ABOUTME: This file derives a stable canonical identity from a source locator
// ABOUTME: The canonical form is the deduplication key for the ingest store
package canonical

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Query parameters with these prefixes are tracking noise and never part of
// the identity.
var removedQueryPrefixes = []string{
	"utm_",
	"ref",
	"fbclid",
	"gclid",
	"yclid",
}

var multiSlash = regexp.MustCompile(`/+`)

// ErrEmptyLocator is returned for blank input.
var ErrEmptyLocator = errors.New("canonical: empty locator")

// Canonicalize returns the canonical form of a source locator. It is pure and
// deterministic: the same input always yields the same key across runs.
//
// Rules, in order: force https for http/bare inputs, lowercase host, drop
// default ports, drop the fragment, strip tracking query parameters, sort the
// remaining parameters, collapse duplicate slashes and the trailing slash.
func Canonicalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyLocator
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("canonical: parse locator: %w", err)
	}

	// Scheme-less inputs like "example.org/a" parse with an empty host;
	// reparse with the forced scheme so the host lands where it belongs.
	if parsed.Host == "" && !parsed.IsAbs() {
		parsed, err = url.Parse("https://" + trimmed)
		if err != nil {
			return "", fmt.Errorf("canonical: parse locator: %w", err)
		}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" || scheme == "http" {
		scheme = "https"
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("canonical: locator %q has no host", raw)
	}

	netloc := host
	if port := parsed.Port(); port != "" && port != "80" && port != "443" {
		netloc = host + ":" + port
	}

	return scheme + "://" + netloc + normalizePath(parsed.EscapedPath()) + normalizeQuery(parsed.Query()), nil
}

func normalizePath(path string) string {
	collapsed := multiSlash.ReplaceAllString(path, "/")
	if collapsed == "" {
		return "/"
	}
	if collapsed != "/" {
		collapsed = strings.TrimSuffix(collapsed, "/")
	}
	if collapsed == "" {
		return "/"
	}
	return collapsed
}

func normalizeQuery(values url.Values) string {
	kept := url.Values{}
	for key, vals := range values {
		if isTrackingParam(key) {
			continue
		}
		sorted := append([]string(nil), vals...)
		sort.Strings(sorted)
		kept[key] = sorted
	}
	if len(kept) == 0 {
		return ""
	}
	// Encode sorts by key; values were sorted above.
	return "?" + kept.Encode()
}

func isTrackingParam(key string) bool {
	lowered := strings.ToLower(key)
	for _, prefix := range removedQueryPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}
