// Package clientip resolves the originating client address of a request
// that may have passed through a CDN or reverse proxies.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Header names checked by Resolve, highest priority first.
const (
	HeaderCDN          = "CF-Connecting-IP"
	HeaderClientIP     = "Client-IP"
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
)

const loopbackV4 = "127.0.0.1"

// Resolve returns the best-effort client IP for a request described by its
// headers and raw connection address. It returns "" when nothing parses as
// an IP address.
func Resolve(h http.Header, remoteAddr string) string {
	for _, name := range []string{HeaderCDN, HeaderClientIP} {
		if ip, ok := valid(h.Get(name)); ok {
			return ip
		}
	}
	if xff := h.Get(HeaderForwardedFor); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip, ok := valid(part); ok {
				return ip
			}
		}
	}
	if ip, ok := valid(h.Get(HeaderRealIP)); ok {
		return ip
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		remoteAddr = host
	}
	if ip, ok := valid(remoteAddr); ok {
		return ip
	}
	return ""
}

// FromRequest is Resolve applied to an *http.Request.
func FromRequest(r *http.Request) string {
	return Resolve(r.Header, r.RemoteAddr)
}

func valid(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return "", false
	}
	if ip.Equal(net.IPv6loopback) {
		return loopbackV4, true
	}
	return s, true
}
