package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/domain"
)

// SendMessage runs one message through the pipeline.
// POST /v1/chat/messages
func (h *Handler) SendMessage(c echo.Context) error {
	var req domain.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.SendMessage(c.Request().Context(), h.userID(c), req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// StreamMessage runs one message and streams the reply as SSE.
// POST /v1/chat/messages/stream
func (h *Handler) StreamMessage(c echo.Context) error {
	var req domain.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
	}

	// Headers are written with the first frame so request errors can still
	// be answered with a status code.
	started := false
	sink := func(ev domain.StreamEvent) error {
		if !started {
			c.Response().Header().Set("Content-Type", "text/event-stream")
			c.Response().Header().Set("Cache-Control", "no-cache")
			c.Response().Header().Set("Connection", "keep-alive")
			c.Response().WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "event: %s\ndata: %s\n\n", ev.Event, ev.Data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := h.service.StreamMessage(c.Request().Context(), h.userID(c), req, sink)
	if err != nil {
		if !started {
			return h.errorResponse(c, err)
		}
		// Can't change status code after writing response
		h.logger.Warn("stream ended early", zap.Error(err))
	}
	return nil
}

// ListConversations lists the caller's conversations.
// GET /v1/chat/conversations
func (h *Handler) ListConversations(c echo.Context) error {
	convs, err := h.service.ListConversations(c.Request().Context(), h.userID(c))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, convs)
}

// GetConversation returns a conversation with its messages.
// GET /v1/chat/conversations/:id
func (h *Handler) GetConversation(c echo.Context) error {
	conv, err := h.service.GetConversation(c.Request().Context(), h.userID(c), c.Param("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// DeleteConversation deletes a conversation.
// DELETE /v1/chat/conversations/:id
func (h *Handler) DeleteConversation(c echo.Context) error {
	if err := h.service.DeleteConversation(c.Request().Context(), h.userID(c), c.Param("id")); err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
