package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/visionfy/visionfy/internal/metrics"
	"github.com/visionfy/visionfy/internal/ratelimit"
)

// IPRateLimiter throttles unauthenticated routes per client IP using the
// shared fixed-window limiter.
type IPRateLimiter struct {
	limiter *ratelimit.FixedWindow
	limit   int
}

func NewIPRateLimiter(limiter *ratelimit.FixedWindow, limit int) *IPRateLimiter {
	return &IPRateLimiter{limiter: limiter, limit: limit}
}

// Middleware enforces the limit. On Redis errors it fails open.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		res, err := rl.limiter.Check(r.Context(), ip, rl.limit)
		if err != nil {
			slog.Warn("rate limiter: redis error, failing open", "error", err, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Success {
			metrics.LimitRejectionsTotal.WithLabelValues("rate_auth").Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.limiter.Interval().Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For is trusted: the API runs behind a reverse proxy.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
