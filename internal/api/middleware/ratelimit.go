package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/api/response"
)

const rateLimitMessage = "Too many requests, please try again in %d seconds"

// RateLimiter counts requests per key over a sliding window. Keys are client
// IPs or user ids depending on the middleware using it.
type RateLimiter struct {
	requests int
	window   time.Duration

	mu      sync.Mutex
	clients map[string]*clientWindow

	stop     chan struct{}
	stopOnce sync.Once
}

type clientWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// RetryAfter is the whole number of seconds until the next request fits,
// never less than one.
func (d Decision) RetryAfter(now time.Time) int {
	return max(1, int(math.Ceil(d.Reset.Sub(now).Seconds())))
}

// NewRateLimiter starts a limiter and its janitor goroutine; call Stop to
// release it.
func NewRateLimiter(requests int, windowSeconds int) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}

	rl := &RateLimiter{
		requests: requests,
		window:   time.Duration(windowSeconds) * time.Second,
		clients:  make(map[string]*clientWindow),
		stop:     make(chan struct{}),
	}
	go rl.janitor(time.Minute)
	return rl
}

// Stop ends the janitor goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

// evictIdle forgets keys with no request in the last two windows.
func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, client := range rl.clients {
		client.mu.Lock()
		idle := len(client.timestamps) == 0 ||
			now.Sub(client.timestamps[len(client.timestamps)-1]) > 2*rl.window
		client.mu.Unlock()
		if idle {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimiter) client(key string) *clientWindow {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.clients[key]
	if !ok {
		c = &clientWindow{timestamps: make([]time.Time, 0, rl.requests)}
		rl.clients[key] = c
	}
	return c
}

// Allow records a request for key if it fits in the window.
func (rl *RateLimiter) Allow(key string) Decision {
	return rl.allowAt(key, time.Now())
}

func (rl *RateLimiter) allowAt(key string, now time.Time) Decision {
	c := rl.client(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	windowStart := now.Add(-rl.window)
	keep := 0
	for keep < len(c.timestamps) && !c.timestamps[keep].After(windowStart) {
		keep++
	}
	c.timestamps = c.timestamps[keep:]

	if len(c.timestamps) >= rl.requests {
		return Decision{Remaining: 0, Reset: c.timestamps[0].Add(rl.window)}
	}
	c.timestamps = append(c.timestamps, now)
	return Decision{
		Allowed:   true,
		Remaining: rl.requests - len(c.timestamps),
		Reset:     c.timestamps[0].Add(rl.window),
	}
}

// RateLimit limits requests per client IP.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return limit(limiter, clientIP)
}

// RateLimitByUser limits requests per authenticated user, falling back to
// the client IP. It must run after Auth.
func RateLimitByUser(limiter *RateLimiter) func(http.Handler) http.Handler {
	return limit(limiter, func(r *http.Request) string {
		if userID := GetUserID(r.Context()); userID != uuid.Nil {
			return "user:" + userID.String()
		}
		return clientIP(r)
	})
}

func limit(limiter *RateLimiter, keyOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d := limiter.allowAt(keyOf(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limiter.requests))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

			if !d.Allowed {
				retry := d.RetryAfter(now)
				h.Set("Retry-After", strconv.Itoa(retry))
				response.Status(w, http.StatusTooManyRequests, fmt.Sprintf(rateLimitMessage, retry))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
