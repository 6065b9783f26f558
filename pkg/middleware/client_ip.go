package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
)

// ClientIP stores the caller's address in the request context for audit
// logging. X-Forwarded-For is only believed when the direct peer is inside
// one of the trusted CIDRs; invalid CIDRs are ignored.
func ClientIP(trustedProxies []string) func(http.Handler) http.Handler {
	var trusted []*net.IPNet
	for _, cidr := range trustedProxies {
		if _, network, err := net.ParseCIDR(strings.TrimSpace(cidr)); err == nil {
			trusted = append(trusted, network)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := audit.WithClientIP(r.Context(), clientIP(r, trusted))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trusted []*net.IPNet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	remote := net.ParseIP(host)
	if remote == nil {
		return ""
	}

	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff == "" || !isTrusted(remote, trusted) {
		return remote.String()
	}

	first, _, _ := strings.Cut(xff, ",")
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return remote.String()
}

func isTrusted(ip net.IP, trusted []*net.IPNet) bool {
	for _, network := range trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
