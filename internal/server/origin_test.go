package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		// Non-browser clients send no Origin header
		{"empty origin", []string{"https://polls.example.com"}, "", true},
		{"empty origin with wildcard", []string{"*"}, "", true},

		// Wildcard
		{"wildcard allows anything", []string{"*"}, "https://evil.example.com", true},
		{"wildcard among entries", []string{"https://a.example.com", "*"}, "https://b.example.com", true},

		// Exact matching
		{"exact match", []string{"https://polls.example.com"}, "https://polls.example.com", true},
		{"one of several", []string{"https://a.example.com", "https://b.example.com"}, "https://b.example.com", true},
		{"different host", []string{"https://polls.example.com"}, "https://evil.example.com", false},
		{"different port", []string{"https://polls.example.com"}, "https://polls.example.com:9090", false},
		{"http instead of https", []string{"https://polls.example.com"}, "http://polls.example.com", false},
		{"subdomain", []string{"https://polls.example.com"}, "https://sub.polls.example.com", false},
		{"no entries", []string{}, "https://polls.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newCheckOrigin(tt.allowed)
			r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checker(r))
		})
	}
}
