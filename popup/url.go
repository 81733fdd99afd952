// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

package popup

import (
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a URL or path for comparison: a trailing
// "/index.html" segment is stripped, then one trailing slash unless the
// result would be empty. The same normalization is applied to queued
// source URLs, current locations, and segment patterns so that
// "/shop/", "/shop/index.html" and "/shop" all compare equal.
func NormalizeURL(raw string) string {
	s := strings.TrimSuffix(raw, "/index.html")
	if len(s) > 1 && strings.HasSuffix(s, "/") {
		s = s[:len(s)-1]
	}
	return s
}

// MatchesPath reports whether currentURL is allowed by the segment
// path patterns. An empty pattern list matches everywhere. Each
// pattern is tried in order:
//
//   - http:// or https:// prefix: exact equality with the full
//     normalized URL
//   - leading "/": substring containment within the full normalized URL
//   - anything else: exact equality with the normalized path-only
//     component of the URL
func MatchesPath(patterns []string, currentURL string) bool {
	if len(patterns) == 0 {
		return true
	}

	full := NormalizeURL(currentURL)
	pathOnly := NormalizeURL(pathComponent(currentURL))

	for _, p := range patterns {
		pattern := NormalizeURL(p)
		switch {
		case strings.HasPrefix(pattern, "http://"), strings.HasPrefix(pattern, "https://"):
			if pattern == full {
				return true
			}
		case strings.HasPrefix(pattern, "/"):
			if strings.Contains(full, pattern) {
				return true
			}
		default:
			if pattern == pathOnly {
				return true
			}
		}
	}
	return false
}

// pathComponent extracts the path part of a URL, falling back to the
// raw string when it does not parse as an absolute URL.
func pathComponent(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}

// SameOrigin reports whether two absolute URLs share scheme and host.
// Non-absolute or unparseable URLs are treated as same-origin, since a
// relative href always resolves within the current origin.
func SameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return true
	}
	ub, err := url.Parse(b)
	if err != nil {
		return true
	}
	if !ua.IsAbs() || !ub.IsAbs() {
		return true
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host
}
