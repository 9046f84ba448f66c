package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
)

// NewCheckOrigin returns the upgrader's CheckOrigin function. Empty origins
// (the bot and other non-browser clients) and the app's own origin are
// allowed; localhost is additionally allowed in development.
func NewCheckOrigin(appURL string, isDevelopment bool) func(r *http.Request) bool {
	appOrigin := extractOrigin(appURL)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		switch {
		case origin == "":
			return true
		case appOrigin != "" && origin == appOrigin:
			return true
		case isDevelopment && isLocalhostOrigin(origin):
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
