package cmd

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// ipAllowlist restricts access to the given comma-separated CIDR list. Bare
// IPs are accepted. An empty list disables the restriction.
// X-Forwarded-For is checked first for requests behind a load balancer, then
// the direct remote address.
func ipAllowlist(allowedCIDRs string, logger *slog.Logger) func(http.Handler) http.Handler {
	cidrs := parseCIDRs(allowedCIDRs, logger)
	return func(next http.Handler) http.Handler {
		if len(cidrs) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := net.ParseIP(clientIP(r))
			if ip != nil {
				for _, cidr := range cidrs {
					if cidr.Contains(ip) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			logger.Warn("api access denied", "ip", clientIP(r), "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

func parseCIDRs(raw string, logger *slog.Logger) []*net.IPNet {
	if raw == "" {
		return nil
	}
	var nets []*net.IPNet
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			if strings.Contains(s, ":") {
				s += "/128"
			} else {
				s += "/32"
			}
		}
		_, cidr, err := net.ParseCIDR(s)
		if err != nil {
			logger.Warn("ignoring invalid CIDR", "cidr", s, "error", err)
			continue
		}
		nets = append(nets, cidr)
	}
	return nets
}

func clientIP(r *http.Request) string {
	// The first X-Forwarded-For entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
