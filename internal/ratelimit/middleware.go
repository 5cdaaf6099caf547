package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/config"
	"github.com/xiaot623/supportdesk/internal/metrics"
)

// Limiter applies one fixed-window budget per client IP.
type Limiter struct {
	scope  string
	rule   config.RateLimit
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewLimiter creates a limiter. Scope namespaces the counters so several
// limiters can share a store.
func NewLimiter(scope string, rule config.RateLimit, store Store, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{scope: scope, rule: rule, store: store, logger: logger, now: time.Now}
}

// Middleware returns the echo middleware enforcing the limit. Store
// failures let the request through.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := clientIP(c)
			count, resetAt, err := l.store.Hit(c.Request().Context(), l.scope+":"+ip, l.rule.Window)
			if err != nil {
				l.logger.Warn("rate limit store unavailable", zap.String("scope", l.scope), zap.Error(err))
				return next(c)
			}

			limit := int64(l.rule.Requests)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(0, limit-count), 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(int64(math.Ceil(float64(resetAt.UnixMilli())/1000)), 10))

			if count > limit {
				retryAfter := int64(math.Ceil(resetAt.Sub(l.now()).Seconds()))
				if retryAfter < 0 {
					retryAfter = 0
				}
				h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				metrics.RateLimited.WithLabelValues(l.scope).Inc()
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"message":    l.rule.Message,
					"retryAfter": retryAfter,
				})
			}
			return next(c)
		}
	}
}

func clientIP(c echo.Context) string {
	req := c.Request()
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}
