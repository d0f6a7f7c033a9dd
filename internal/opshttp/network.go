package opshttp

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/keithlinneman/collage/internal/log"
)

// requireNonPublicNetwork rejects peers outside loopback, private and
// link-local ranges with 403. Only the socket peer is considered.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			deny(L, w, r, "unparseable remote addr")
			return
		}
		addr, err := netip.ParseAddr(host)
		if err != nil {
			deny(L, w, r, "invalid remote ip")
			return
		}
		addr = addr.Unmap()
		if !addr.IsLoopback() && !addr.IsPrivate() && !addr.IsLinkLocalUnicast() {
			deny(L, w, r, "public remote ip")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(L log.Logger, w http.ResponseWriter, r *http.Request, reason string) {
	L.Warn(r.Context(), "ops request rejected",
		"reason", reason,
		"client.address", r.RemoteAddr,
		"url.path", r.URL.Path,
	)
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}
