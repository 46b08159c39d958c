// Package httputil holds small helpers for the status server.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the address of the caller. X-Forwarded-For (first hop) and X-Real-IP
// are honoured only when the direct peer is a loopback address, i.e. a local reverse proxy.
// IPv6 peers may be bracketed.
func GetClientIP(r *http.Request) string {
	peer := peerIP(r.RemoteAddr)
	if !isLoopback(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return peer
}

func peerIP(remoteAddr string) string {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.Trim(remoteAddr, "[]")
	}
	return ip
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
