package internal

import (
	"net"
	"net/http"

	"github.com/oklog/ulid/v2"
	"github.com/sebest/xff"
)

// RemoteXRealIP sets the X-Real-Ip header to the request's real IP if
// the setting is enabled by the user.
func RemoteXRealIP(useRemoteAddress bool, next http.Handler) http.Handler {
	if !useRemoteAddress {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		r.Header.Set("X-Real-Ip", host)
		next.ServeHTTP(w, r)
	})
}

// XForwardedForToXRealIP sets X-Real-Ip to the first public address in
// X-Forwarded-For when no earlier middleware has set it.
func XForwardedForToXRealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Real-Ip") == "" {
			if ip := xff.Parse(r.Header.Get("X-Forwarded-For")); ip != "" {
				r.Header.Set("X-Real-Ip", ip)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequestIDHeader carries the request id in and out of scribble.
const RequestIDHeader = "X-Request-Id"

// WithRequestID makes sure every request has an id, reusing the one an
// upstream proxy supplied.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = ulid.Make().String()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// RequestID returns the id assigned by WithRequestID, if any.
func RequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}

// NoStoreCache sets the Cache-Control header to no-store for the response.
func NoStoreCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
