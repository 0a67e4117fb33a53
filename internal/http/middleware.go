package http

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestMetaContextKey contextKey = "request_meta"

// RequestMeta describes the caller of a request for logging and auditing.
type RequestMeta struct {
	ClientIP  string
	RequestID string
}

// ExtractClientIP extracts the client IP address from the request.
// Checks X-Forwarded-For first, then X-Real-IP, finally RemoteAddr without its port.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestMetaFromContext returns the metadata stored by RequestMetaMiddleware.
// The zero value is returned for requests that did not pass through it.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaContextKey).(RequestMeta)
	return meta
}

// RequestMetaMiddleware stores the client IP and a request id in the request context.
// An incoming X-Request-ID is reused when it parses as a UUID, otherwise a new one is
// generated. The id is echoed back in the response header.
func RequestMetaMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			meta := RequestMeta{
				ClientIP:  ExtractClientIP(r),
				RequestID: requestID,
			}
			ctx := context.WithValue(r.Context(), requestMetaContextKey, meta)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MaxBodyMiddleware limits request bodies to limit bytes.
func MaxBodyMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
