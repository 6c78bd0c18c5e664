package server

import (
	"net"
	"net/http"
	"strings"
)

// clientIP extracts the caller's address for rate-limiting/analytics
// purposes, preferring a proxy-supplied X-Forwarded-For (first hop) over
// the raw connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// anonymizeIP implements spec §6's analytics privacy rule: IPv4 has its
// last octet zeroed, IPv6 keeps only its first 48 bits.
func anonymizeIP(raw string) string {
	ip := net.ParseIP(raw)
	if ip == nil {
		return "unknown"
	}
	if v4 := ip.To4(); v4 != nil {
		v4[3] = 0
		return v4.String()
	}
	v6 := ip.To16()
	if v6 == nil {
		return "unknown"
	}
	masked := make(net.IP, net.IPv6len)
	copy(masked, v6[:6])
	return masked.String()
}

// skipAnalytics reports whether r opted out of analytics recording (spec
// §6: "DNT: 1" or "X-Skip-Analytics: true").
func skipAnalytics(r *http.Request) bool {
	return r.Header.Get("DNT") == "1" || strings.EqualFold(r.Header.Get("X-Skip-Analytics"), "true")
}
