package httpmiddleware

import (
	"net"
	"net/http"
	"strings"
)

// RequestHost returns the hostname the client addressed, without port,
// lowercased. X-Forwarded-Host is honoured only from trusted proxies.
func RequestHost(req *http.Request) string {
	host := req.Host
	if fwd := strings.TrimSpace(req.Header.Get("X-Forwarded-Host")); fwd != "" && fromTrustedProxy(req) {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = strings.TrimSpace(fwd[:i])
		}
		host = fwd
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")
	return strings.ToLower(host)
}

func fromTrustedProxy(req *http.Request) bool {
	remoteHost, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		remoteHost = req.RemoteAddr
	}
	ip := net.ParseIP(remoteHost)
	return ip != nil && isTrustedProxy(ip)
}

// RequestScheme returns "https" or "http". X-Forwarded-Proto is honoured
// only from trusted proxies.
func RequestScheme(req *http.Request) string {
	if fromTrustedProxy(req) {
		p := strings.TrimSpace(req.Header.Get("X-Forwarded-Proto"))
		if i := strings.IndexByte(p, ','); i >= 0 {
			p = strings.TrimSpace(p[:i])
		}
		if p = strings.ToLower(p); p == "https" || p == "http" {
			return p
		}
	}
	if req.TLS != nil {
		return "https"
	}
	return "http"
}
