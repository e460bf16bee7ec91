package interceptors

import (
	"context"
	"net"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

const bearerPrefix = "bearer "

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ip := firstForwarded(md.Get("x-forwarded-for")); ip != "" {
			return ip
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return hostOnly(p.Addr.String())
	}
	return ""
}

// RequestClientIP returns the client IP of an HTTP request: the first
// X-Forwarded-For entry, then X-Real-IP, then the connection's remote address.
func RequestClientIP(r *http.Request) string {
	if ip := firstForwarded(r.Header.Values("X-Forwarded-For")); ip != "" {
		return ip
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	return hostOnly(r.RemoteAddr)
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header
// value, or "" if missing or malformed. The scheme is case-insensitive.
func BearerToken(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func firstForwarded(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	s := strings.TrimSpace(vals[0])
	if i := strings.Index(s, ","); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
