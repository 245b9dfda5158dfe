package httpmw

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// unknownClient keys requests whose peer address cannot be parsed. They share
// one rate-limit bucket rather than bypassing it.
const unknownClient = "0.0.0.0"

// ClientIPOptions configures client IP extraction behavior.
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the server.
	// 0 ignores X-Forwarded-For entirely, 1 takes the rightmost entry,
	// 2 the second from the right, and so on.
	TrustedHops int
}

// ClientIP resolves the client address with no trusted proxies.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions stores the resolved client address in the request
// context. Forwarding headers are deleted whenever they are not trusted so
// nothing further down can read them by accident.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientIP(r *http.Request, trustedHops int) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		dropForwarded(r)
		return unknownClient
	}

	// only a proxy on our own network may vouch for someone else
	if trustedHops <= 0 || !(peer.IsPrivate() || peer.IsLoopback()) {
		dropForwarded(r)
		return peer.String()
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer.String()
	}
	hops := strings.Split(xff, ",")
	idx := len(hops) - trustedHops
	if idx < 0 {
		// fewer entries than proxies: misconfigured or forged, fail closed
		dropForwarded(r)
		return peer.String()
	}
	cand, err := netip.ParseAddr(strings.TrimSpace(hops[idx]))
	if err != nil {
		return peer.String()
	}
	return cand.Unmap().String()
}

func peerAddr(remote string) (netip.Addr, bool) {
	if remote == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	// some test servers and unix listeners omit the port
	if a, err := netip.ParseAddr(remote); err == nil {
		return a.Unmap(), true
	}
	return netip.Addr{}, false
}

func dropForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

// ClientIPFromContext returns the address resolved by ClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
