package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the host part of the socket address. Forwarding headers
// are ignored; use ProxyResolver when the service sits behind a proxy.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ProxyResolver honours X-Forwarded-For and X-Real-IP only on requests whose
// socket peer is one of the trusted proxies.
type ProxyResolver struct {
	trusted []*net.IPNet
}

// NewProxyResolver accepts CIDRs or bare IPs. An empty list trusts nobody.
func NewProxyResolver(proxies []string) (*ProxyResolver, error) {
	pr := &ProxyResolver{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", p)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			p = fmt.Sprintf("%s/%d", ip.String(), bits)
		}
		_, network, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		pr.trusted = append(pr.trusted, network)
	}
	return pr, nil
}

func (pr *ProxyResolver) isTrusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range pr.trusted {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP walks X-Forwarded-For from the right and returns the first hop
// that is not a trusted proxy.
func (pr *ProxyResolver) ClientIP(r *http.Request) string {
	peer := ClientIP(r)
	if !pr.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !pr.isTrusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}
