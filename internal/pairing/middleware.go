package pairing

import (
	"sync"
	"time"

	"github.com/eleven-am/spark-backend/internal/auth"
	"github.com/eleven-am/spark-backend/internal/shared"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	IdleTTL           time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 2,
		Burst:             5,
		IdleTTL:           5 * time.Minute,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiterStore struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	config   RateLimiterConfig
}

func newRateLimiterStore(cfg RateLimiterConfig) *rateLimiterStore {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	return &rateLimiterStore{
		limiters: make(map[string]*limiterEntry),
		config:   cfg,
	}
}

func (s *rateLimiterStore) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), s.config.Burst)}
		s.limiters[key] = e
		s.evictIdleLocked(now)
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (s *rateLimiterStore) evictIdleLocked(now time.Time) {
	for key, e := range s.limiters {
		if now.Sub(e.lastSeen) > s.config.IdleTTL && !e.lastSeen.IsZero() {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter throttles pairing attempts per authenticated user, falling
// back to the client IP.
func RateLimiter(cfg RateLimiterConfig) echo.MiddlewareFunc {
	store := newRateLimiterStore(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if claims := auth.GetClaims(c); claims != nil {
				key = claims.UserID
			}

			if !store.allow(key, time.Now()) {
				return shared.TooManyRequests("rate_limit_exceeded", "too many requests")
			}
			return next(c)
		}
	}
}
