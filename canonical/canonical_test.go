// ABOUTME: This file tests canonical identity derivation for source locators
// ABOUTME: Covers scheme forcing, tracking-param removal, and path collapsing
package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := map[string]struct {
		input string
		want  string
	}{
		"forces https": {
			input: "http://example.org/news/1",
			want:  "https://example.org/news/1",
		},
		"keeps https": {
			input: "https://example.org/news/1",
			want:  "https://example.org/news/1",
		},
		"scheme-less input": {
			input: "example.org/news/1",
			want:  "https://example.org/news/1",
		},
		"lowercases host only": {
			input: "https://Example.ORG/News/Item",
			want:  "https://example.org/News/Item",
		},
		"strips default https port": {
			input: "https://example.org:443/a",
			want:  "https://example.org/a",
		},
		"strips default http port": {
			input: "http://example.org:80/a",
			want:  "https://example.org/a",
		},
		"keeps custom port": {
			input: "https://example.org:8443/a",
			want:  "https://example.org:8443/a",
		},
		"drops fragment": {
			input: "https://example.org/a#section-2",
			want:  "https://example.org/a",
		},
		"strips tracking params": {
			input: "https://example.org/a?utm_source=x&utm_medium=y&fbclid=abc&gclid=1&yclid=2&ref=home",
			want:  "https://example.org/a",
		},
		"keeps meaningful params sorted": {
			input: "https://example.org/a?page=2&id=10",
			want:  "https://example.org/a?id=10&page=2",
		},
		"sorts values within a key": {
			input: "https://example.org/a?tag=z&tag=a",
			want:  "https://example.org/a?tag=a&tag=z",
		},
		"mixed tracking and real params": {
			input: "https://example.org/a?utm_campaign=spring&id=7",
			want:  "https://example.org/a?id=7",
		},
		"collapses duplicate slashes": {
			input: "https://example.org//news///1",
			want:  "https://example.org/news/1",
		},
		"strips trailing slash": {
			input: "https://example.org/news/",
			want:  "https://example.org/news",
		},
		"keeps root path": {
			input: "https://example.org/",
			want:  "https://example.org/",
		},
		"bare host gets root path": {
			input: "https://example.org",
			want:  "https://example.org/",
		},
		"whitespace trimmed": {
			input: "  https://example.org/a  ",
			want:  "https://example.org/a",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalizeDeterministic(t *testing.T) {
	variants := []string{
		"http://Example.org//a/?utm_source=x&id=1",
		"https://example.org/a?id=1&utm_medium=mail",
		"example.org/a/?id=1#top",
	}
	want := "https://example.org/a?id=1"
	for _, v := range variants {
		got, err := Canonicalize(v)
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %q", v)
	}
}

func TestCanonicalizeErrors(t *testing.T) {
	tests := map[string]string{
		"empty input":      "",
		"whitespace only":  "   ",
		"no host":          "https:///path/only",
		"control char url": "https://exa mple.org/\x7f",
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Canonicalize(input)
			assert.Error(t, err)
		})
	}
}
