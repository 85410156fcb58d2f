package httpx

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimiter counts hits per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// limitClass is a budget shared by a group of routes. Anonymous classes
// are keyed by client address, the rest by authenticated user.
type limitClass struct {
	name      string
	limit     int
	window    time.Duration
	anonymous bool
}

var (
	classRegister = limitClass{name: "register", limit: 5, window: time.Minute, anonymous: true}
	classLogin    = limitClass{name: "login", limit: 12, window: time.Minute, anonymous: true}
	classRead     = limitClass{name: "read", limit: 120, window: time.Minute}
	classWrite    = limitClass{name: "write", limit: 60, window: time.Minute}
	classAI       = limitClass{name: "ai", limit: 30, window: time.Minute}
	classStream   = limitClass{name: "stream", limit: 30, window: 30 * time.Second}
)

// limited charges one hit against class before calling next.
func (r *Router) limited(route string, class limitClass, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.limiter == nil || class.limit <= 0 {
			next(w, req)
			return
		}
		decision := r.limiter.Allow(r.limitKey(req, class), class.limit, class.window)
		setRateHeaders(w.Header(), class.limit, decision)
		if decision.allowed {
			next(w, req)
			return
		}
		r.recordRateLimitHit(route, class.name)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	}
}

// authed authenticates, enforces level and then applies class.
func (r *Router) authed(route string, level access, class limitClass, next http.HandlerFunc) http.HandlerFunc {
	return r.requireUser(level, false, r.limited(route, class, next))
}

// stream is authed for event streams, which may carry the token in the query.
func (r *Router) stream(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.requireUser(accessVerified, true, r.limited(route, classStream, next))
}

func (r *Router) limitKey(req *http.Request, class limitClass) string {
	if !class.anonymous {
		if user, ok := userFromContext(req.Context()); ok && user.ID != "" {
			return "user:" + user.ID
		}
	}
	if ip := r.clientIP(req); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

func setRateHeaders(h http.Header, limit int, d rateDecision) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(limit-d.count, 0)))
	if !d.windowEnd.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.windowEnd.Unix(), 10))
	}
}
