package handlers

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// realIP sets RemoteAddr to the client address reported by a trusted proxy.
// Requests from any other peer keep their TCP address.
func (h *Handlers) realIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip, ok := h.forwardedIP(r); ok {
			r.RemoteAddr = ip
		}
		next.ServeHTTP(w, r)
	})
}

// forwardedIP walks X-Forwarded-For from the right and returns the first hop
// that is not a trusted proxy, then falls back to X-Real-IP and True-Client-IP
func (h *Handlers) forwardedIP(r *http.Request) (string, bool) {
	peer, ok := parseRemoteAddr(r.RemoteAddr)
	if !ok || !h.trusted(peer) {
		return "", false
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		var leftmost netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			addr = addr.Unmap()
			if !h.trusted(addr) {
				return addr.String(), true
			}
			leftmost = addr
		}
		// Only proxies in the chain
		if leftmost.IsValid() {
			return leftmost.String(), true
		}
	}

	for _, header := range []string{"X-Real-IP", "True-Client-IP"} {
		if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get(header))); err == nil {
			return addr.Unmap().String(), true
		}
	}
	return "", false
}

func (h *Handlers) trusted(addr netip.Addr) bool {
	for _, p := range h.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(host))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
