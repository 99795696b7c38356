package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/TheInfexted/livechat-cs-sub000/internal/metrics"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter implements fixed-window rate limiting backed by Redis. It
// guards the public chat-start endpoint against session-spawning abuse.
type RateLimiter struct {
	client       *redis.Client
	logger       zerolog.Logger
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
	limits       map[string]RateLimit
}

// NewRateLimiter creates a new rate limiter. Whitelist entries may be plain
// IPs or CIDRs.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, whitelist []string) *RateLimiter {
	rl := &RateLimiter{
		client:       client,
		logger:       logger,
		whitelistIPs: make(map[string]bool),
		limits: map[string]RateLimit{
			"POST /api/sessions": {Requests: 30, Window: time.Minute},
		},
	}

	for _, entry := range whitelist {
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			rl.whitelist = append(rl.whitelist, ipNet)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			rl.whitelistIPs[entry] = true
			continue
		}
		logger.Warn().Str("entry", entry).Msg("invalid rate limit whitelist entry")
	}

	return rl
}

// Middleware enforces the configured limits. Redis failures fail open: a
// broken limiter must not take chat-start down with it.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := endpointKey(r.Method, r.URL.Path)
		limit, ok := rl.limits[endpoint]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", endpoint, ip)
		count, err := rl.client.Incr(r.Context(), key).Result()
		if err != nil {
			rl.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			rl.client.Expire(r.Context(), key, limit.Window)
		}

		remaining := limit.Requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if int(count) > limit.Requests {
			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// endpointKey normalizes a request to a limits-map key. Trailing slashes are
// stripped so "/api/sessions/" and "/api/sessions" share one bucket; the
// mux routes them to the same handler.
func endpointKey(method, path string) string {
	path = strings.TrimRight(path, "/")
	if path == "" {
		path = "/"
	}
	return method + " " + path
}

func (rl *RateLimiter) isWhitelisted(ip string) bool {
	if rl.whitelistIPs[ip] {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
