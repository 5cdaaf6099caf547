package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/service"
)

// Options configures the WebSocket server.
type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	DefaultUserID  string
}

// Server handles WebSocket connections.
type Server struct {
	opts     Options
	hub      *Hub
	service  *service.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// streams tracks reply goroutines so Shutdown can drain them. Replies
	// run under baseCtx, which Shutdown cancels.
	streams sync.WaitGroup
	baseCtx context.Context
	stop    context.CancelFunc
}

// NewServer creates a new WebSocket server.
func NewServer(opts Options, h *Hub, svc *service.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &Server{
		baseCtx: baseCtx,
		stop:    stop,
		opts:    opts,
		hub:     h,
		service: svc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes mounts the WebSocket endpoint.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
}

// Shutdown cancels every in-flight reply and waits for them to finish or
// for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	// Create and register connection
	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	// Set up connection parameters
	ws.SetReadLimit(s.opts.MaxMessageSize)

	// Start reader and writer goroutines
	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

func (s *Server) pongWait() time.Duration {
	return s.opts.PingInterval * 10 / 9
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		conn.endStream()
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongWait()))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("failed to write message", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var baseMsg BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case TypeHello:
		s.handleHello(conn, data)
	case TypeChat:
		s.handleChat(conn, data)
	case TypeCancel:
		s.handleCancel(conn, baseMsg)
	default:
		s.sendError(conn, baseMsg.RequestID, ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello identifies the user and optionally binds a conversation.
func (s *Server) handleHello(conn *Connection, data []byte) {
	var msg HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	conn.UserID = msg.UserID
	if conn.UserID == "" {
		conn.UserID = s.opts.DefaultUserID
	}

	if msg.ConversationID != "" {
		ctx := context.Background()
		if _, err := s.service.GetConversation(ctx, conn.UserID, msg.ConversationID); err != nil {
			code := ErrorCodeInternalError
			if errors.Is(err, service.ErrConversationNotFound) {
				code = ErrorCodeNotFound
			}
			s.sendError(conn, msg.RequestID, code, err.Error())
			return
		}
	}
	s.hub.BindConversation(conn, msg.ConversationID)

	s.hub.SendJSONToConnection(conn, HelloAckMessage{
		BaseMessage: BaseMessage{
			Type:           TypeHelloAck,
			Ts:             time.Now().UnixMilli(),
			RequestID:      msg.RequestID,
			ConversationID: msg.ConversationID,
		},
		UserID: conn.UserID,
	})
}

// handleChat runs one message and fans the reply out to every connection
// bound to the conversation.
func (s *Server) handleChat(conn *Connection, data []byte) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid chat message")
		return
	}
	if conn.UserID == "" {
		s.sendError(conn, msg.RequestID, ErrorCodeHelloRequired, "must send hello first")
		return
	}

	conversationID := msg.ConversationID
	if conversationID == "" {
		conversationID = s.hub.conversationOf(conn)
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	streamID, ok := conn.startStream(cancel)
	if !ok {
		cancel()
		s.sendError(conn, msg.RequestID, ErrorCodeBusy, "a reply is already in progress")
		return
	}

	req := domain.SendMessageRequest{ConversationID: conversationID, Content: msg.Content}
	userID := conn.UserID

	s.streams.Add(1)
	go func() {
		defer s.streams.Done()
		defer cancel()
		defer conn.releaseStream(streamID)

		err := s.service.StreamMessage(ctx, userID, req, func(ev domain.StreamEvent) error {
			if ev.Event == domain.StreamEventRouting {
				var r domain.RoutingEventData
				if err := json.Unmarshal(ev.Data, &r); err == nil && r.ConversationID != s.hub.conversationOf(conn) {
					s.hub.BindConversation(conn, r.ConversationID)
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return s.hub.BroadcastJSON(s.hub.conversationOf(conn), StreamMessage{
				BaseMessage: BaseMessage{
					Type:           ev.Event,
					Ts:             time.Now().UnixMilli(),
					RequestID:      msg.RequestID,
					ConversationID: s.hub.conversationOf(conn),
				},
				Data: ev.Data,
			})
		})

		switch {
		case err == nil:
		case errors.Is(err, context.Canceled) || ctx.Err() != nil:
			s.hub.SendJSONToConnection(conn, BaseMessage{
				Type:           TypeCancelled,
				Ts:             time.Now().UnixMilli(),
				RequestID:      msg.RequestID,
				ConversationID: s.hub.conversationOf(conn),
			})
		case errors.Is(err, service.ErrInvalidRequest):
			s.sendError(conn, msg.RequestID, ErrorCodeInvalidMessage, err.Error())
		case errors.Is(err, service.ErrConversationNotFound):
			s.sendError(conn, msg.RequestID, ErrorCodeNotFound, err.Error())
		default:
			s.logger.Error("chat failed", zap.String("conn_id", conn.ID), zap.Error(err))
			s.sendError(conn, msg.RequestID, ErrorCodeInternalError, err.Error())
		}
	}()
}

// handleCancel stops the connection's in-flight reply.
func (s *Server) handleCancel(conn *Connection, msg BaseMessage) {
	if !conn.endStream() {
		s.sendError(conn, msg.RequestID, ErrorCodeInvalidMessage, "no reply in progress")
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *Connection, requestID, code, message string) {
	errMsg := ErrorMessage{
		BaseMessage: BaseMessage{
			Type:           TypeError,
			Ts:             time.Now().UnixMilli(),
			RequestID:      requestID,
			ConversationID: s.hub.conversationOf(conn),
		},
		Code:    code,
		Message: message,
	}
	s.hub.SendJSONToConnection(conn, errMsg)
}
