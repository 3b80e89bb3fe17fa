package observability

import (
	"net"
	"net/http"
	"strings"
)

// RequestMeta is the connection metadata harvested from a handshake or API
// request, carried through lifecycle events and publish headers.
type RequestMeta struct {
	DeviceID  string
	RequestID string
	ClientIP  string
}

// ExtractRequestMeta pulls device id, propagated request id and client
// address from the request. The first X-Forwarded-For hop wins over the
// socket peer address.
func ExtractRequestMeta(r *http.Request) RequestMeta {
	return RequestMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		RequestID: r.Header.Get("X-Request-Id"),
		ClientIP:  clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
