// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

package popup

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain path", "/shop", "/shop"},
		{"trailing slash", "/shop/", "/shop"},
		{"index html", "/shop/index.html", "/shop"},
		{"root slash kept", "/", "/"},
		{"root index html", "/index.html", ""},
		{"full url trailing slash", "https://example.com/shop/", "https://example.com/shop"},
		{"full url index html", "https://example.com/shop/index.html", "https://example.com/shop"},
		{"hash route", "https://example.com/#/login/", "https://example.com/#/login"},
		{"only one slash stripped", "/shop//", "/shop/"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMatchesPath(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		current  string
		want     bool
	}{
		{"no patterns matches everywhere", nil, "https://example.com/anything", true},
		{"empty pattern list", []string{}, "https://example.com/shop", true},

		// Absolute patterns require full URL equality.
		{"absolute exact", []string{"https://example.com/shop"}, "https://example.com/shop", true},
		{"absolute normalized", []string{"https://example.com/shop/"}, "https://example.com/shop/index.html", true},
		{"absolute wrong path", []string{"https://example.com/shop"}, "https://example.com/cart", false},
		{"absolute wrong host", []string{"https://other.com/shop"}, "https://example.com/shop", false},

		// Slash-prefixed patterns are substring matches.
		{"slash substring", []string{"/shop"}, "https://example.com/shop/item/3", true},
		{"slash hash route", []string{"/#/login"}, "https://example.com/#/login", true},
		{"slash no match", []string{"/cart"}, "https://example.com/shop", false},

		// Bare patterns compare against the path component only.
		{"bare path match", []string{"checkout"}, "https://example.com/checkout", false},
		{"bare vs relative", []string{"checkout"}, "checkout", true},

		{"second pattern wins", []string{"/cart", "/shop"}, "https://example.com/shop", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesPath(tt.patterns, tt.current); got != tt.want {
				t.Errorf("MatchesPath(%v, %q) = %v, want %v", tt.patterns, tt.current, got, tt.want)
			}
		})
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"same host", "https://example.com/a", "https://example.com/b", true},
		{"different host", "https://example.com/a", "https://other.com/a", false},
		{"different scheme", "http://example.com/a", "https://example.com/a", false},
		{"relative target", "https://example.com/a", "/b", true},
		{"both relative", "/a", "/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameOrigin(tt.a, tt.b); got != tt.want {
				t.Errorf("SameOrigin(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
