package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/webseek/webseek/pkg/config"
	"github.com/webseek/webseek/pkg/logger"
	"github.com/webseek/webseek/pkg/metrics"
)

// WindowCounter is the slice of the Redis client the limiter depends on.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit returns middleware that enforces a fixed-window request limit per
// client address, counted in Redis so the limit holds across replicas. When
// the counter is unreachable the request is let through: the limiter protects
// the backend and must not become an outage of its own. Health endpoints are
// exempt.
func RateLimit(counter WindowCounter, cfg config.RateLimitConfig, m *metrics.Metrics) func(http.Handler) http.Handler {
	log := logger.WithComponent("ratelimit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			key := "ratelimit:" + clientIP(r)
			count, err := counter.IncrWindow(r.Context(), key, cfg.Window)
			if err != nil {
				log.Warn("rate limit counter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > int64(cfg.Requests) {
				m.RateLimitedTotal.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the originating client address, preferring the first entry
// of X-Forwarded-For when a proxy set it.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeError writes a JSON error response to the client.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
