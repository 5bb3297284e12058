package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/instabids/smartscope/pkg/logger"
)

// Limiter enforces a per-caller sliding window over the last minute. Callers
// are keyed by X-User-ID when present, falling back to the remote IP.
type Limiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	windows           map[string][]time.Time
	stop              chan struct{}
}

func NewLimiter(requestsPerMinute int) *Limiter {
	l := &Limiter{
		requestsPerMinute: requestsPerMinute,
		windows:           map[string][]time.Time{},
		stop:              make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *Limiter) Close() {
	close(l.stop)
}

// Middleware returns the fiber handler enforcing the limit.
func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-User-ID")
		if key == "" {
			key = c.IP()
		}

		if !l.allow(key) {
			logger.Warn("Rate limit exceeded", zap.String("caller", key))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded, try again shortly",
			})
		}

		return c.Next()
	}
}

func (l *Limiter) allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.windows[key]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.requestsPerMinute {
		l.windows[key] = kept
		return false
	}

	l.windows[key] = append(kept, now)
	return true
}

// cleanupLoop drops idle callers so the window map does not grow unbounded.
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Minute)
			l.mu.Lock()
			for key, window := range l.windows {
				if len(window) == 0 || !window[len(window)-1].After(cutoff) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
