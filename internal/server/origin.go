package server

import (
	"log/slog"
	"net/http"
	"slices"
)

// newCheckOrigin returns a CheckOrigin function for the websocket upgrader.
// Empty origins (non-browser clients) are always allowed. A single "*" entry
// allows every origin, otherwise the request origin must match one of the
// configured entries exactly.
func newCheckOrigin(allowed []string) func(r *http.Request) bool {
	allowAll := slices.Contains(allowed, "*")

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if origin == "" {
			return true
		}

		if allowAll {
			return true
		}

		if slices.Contains(allowed, origin) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}
