// Package http provides the HTTP server for supportdesk.
package http

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/metrics"
	"github.com/xiaot623/supportdesk/internal/ratelimit"
	"github.com/xiaot623/supportdesk/internal/service"
	v1 "github.com/xiaot623/supportdesk/internal/transport/http/v1"
)

// Options configures the HTTP server.
type Options struct {
	DefaultUserID string
	// APILimiter applies to every /v1 route, ChatLimiter additionally to
	// the message endpoints. Either may be nil.
	APILimiter  *ratelimit.Limiter
	ChatLimiter *ratelimit.Limiter
	Logger      *zap.Logger
}

// NewServer creates and configures the public HTTP server.
func NewServer(svc *service.Service, opts Options) *echo.Echo {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger(opts.Logger))
	e.Use(requestMetrics())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var apiMW, chatMW []echo.MiddlewareFunc
	if opts.APILimiter != nil {
		apiMW = append(apiMW, opts.APILimiter.Middleware())
	}
	if opts.ChatLimiter != nil {
		chatMW = append(chatMW, opts.ChatLimiter.Middleware())
	}

	v1Handler := v1.NewHandler(svc, opts.DefaultUserID, opts.Logger)
	v1Handler.RegisterRoutes(e, apiMW, chatMW)

	return e
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Error("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

func requestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			metrics.RequestCount.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
			return err
		}
	}
}
