package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bookclub/bookclub/internal/ratelimit"
	"github.com/bookclub/bookclub/pkg/response"
)

// RequestLogger logs one line per request through zap.
func RequestLogger(lg *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.Int("status", ww.Status()),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("remote", r.RemoteAddr),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("cost", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			}
			if email, ok := GetUserEmail(r.Context()); ok {
				fields = append(fields, zap.String("user", email))
			}
			if ww.Status() >= http.StatusInternalServerError {
				lg.Warn("http request", fields...)
				return
			}
			lg.Info("http request", fields...)
		})
	}
}

// RateLimit throttles mutating requests per caller. Reads are not limited.
// Anonymous callers are keyed by remote address.
func RateLimit(krl *ratelimit.KeyedRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			key, ok := GetUserEmail(r.Context())
			if !ok {
				key = r.RemoteAddr
			}
			if !krl.Allow(key) {
				response.TooManyRequests(w, "Too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
