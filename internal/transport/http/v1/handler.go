// Package v1 provides the public /v1 HTTP handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/service"
)

// UserHeader names the caller. Authentication happens upstream.
const UserHeader = "X-User-ID"

// Handler handles HTTP requests.
type Handler struct {
	service       *service.Service
	defaultUserID string
	logger        *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, defaultUserID string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:       service,
		defaultUserID: defaultUserID,
		logger:        logger,
	}
}

// RegisterRoutes registers routes with the echo server. apiMW wraps every
// /v1 route and chatMW additionally wraps the message endpoints.
func (h *Handler) RegisterRoutes(e *echo.Echo, apiMW, chatMW []echo.MiddlewareFunc) {
	api := e.Group("/v1", apiMW...)

	// Chat API
	chat := api.Group("/chat")
	chat.POST("/messages", h.SendMessage, chatMW...)
	chat.POST("/messages/stream", h.StreamMessage, chatMW...)
	chat.GET("/conversations", h.ListConversations)
	chat.GET("/conversations/:id", h.GetConversation)
	chat.DELETE("/conversations/:id", h.DeleteConversation)

	// Agent catalogue
	api.GET("/agents", h.ListAgents)
	api.GET("/agents/:type", h.GetAgent)

	// Run trace
	api.GET("/runs/:run_id", h.GetRun)
	api.GET("/runs/:run_id/events", h.GetRunEvents)

	api.GET("/models", h.ListModels)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	if err := h.service.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func (h *Handler) userID(c echo.Context) string {
	if id := c.Request().Header.Get(UserHeader); id != "" {
		return id
	}
	return h.defaultUserID
}

// errorResponse maps service errors onto status codes.
func (h *Handler) errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrConversationNotFound),
		errors.Is(err, service.ErrAgentNotFound),
		errors.Is(err, service.ErrRunNotFound):
		status = http.StatusNotFound
	default:
		h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
