package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

const maxAgent = 50

// ClientIdentifier combines a best-effort client address with a truncated user
// agent. It raises the cost of trivial evasion and is not an identity.
func ClientIdentifier(r *http.Request) string {
	ip := ""
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		ip = strings.TrimSpace(first)
	}
	if ip == "" {
		ip = strings.TrimSpace(r.Header.Get("X-Real-IP"))
	}
	if ip == "" && r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	if ip == "" {
		ip = "unknown"
	}
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		ua = "unknown"
	}
	if r := []rune(ua); len(r) > maxAgent {
		ua = string(r[:maxAgent])
	}
	return ip + ":" + ua
}
