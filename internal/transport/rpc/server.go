// Package rpc exposes the support desk over JSON-RPC for internal callers.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/service"
)

// ServiceName is the JSON-RPC service the handler is registered under.
const ServiceName = "Supportdesk"

// Server exposes internal RPC endpoints.
type Server struct {
	rpcServer *rpc.Server
	logger    *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	done     chan struct{}
}

// NewServer creates a new RPC server bound to the service.
func NewServer(svc *service.Service, defaultUserID string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc, defaultUserID: defaultUserID}
	if err := rpcServer.RegisterName(ServiceName, handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts RPC connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ln.Close()
	}
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("rpc accept error", zap.Error(err))
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.closed = true
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	if err := ln.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the RPC methods.
type Handler struct {
	service       *service.Service
	defaultUserID string
}

// SendMessageArgs is the request for Supportdesk.SendMessage.
type SendMessageArgs struct {
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content"`
}

// ClassifyArgs is the request for Supportdesk.Classify.
type ClassifyArgs struct {
	Message string `json:"message"`
}

// ClassifyReply is the routing decision for a message.
type ClassifyReply struct {
	Responder string `json:"responder"`
	Source    string `json:"source"`
	Analysis  string `json:"analysis,omitempty"`
	Notice    string `json:"notice"`
}

// ListAgentsArgs is the (empty) request for Supportdesk.ListAgents.
type ListAgentsArgs struct{}

// ListAgentsReply carries the agent catalogue.
type ListAgentsReply struct {
	Agents []service.AgentInfo `json:"agents"`
}

// SendMessage runs one message through the pipeline.
func (h *Handler) SendMessage(req *SendMessageArgs, resp *domain.SendMessageResponse) error {
	if req == nil {
		return errors.New("send message request is required")
	}
	userID := req.UserID
	if userID == "" {
		userID = h.defaultUserID
	}

	result, err := h.service.SendMessage(context.Background(), userID, domain.SendMessageRequest{
		ConversationID: req.ConversationID,
		Content:        req.Content,
	})
	if err != nil {
		return err
	}
	if resp != nil && result != nil {
		*resp = *result
	}
	return nil
}

// Classify routes a message without running a responder.
func (h *Handler) Classify(req *ClassifyArgs, resp *ClassifyReply) error {
	if req == nil || req.Message == "" {
		return errors.New("message is required")
	}
	r := h.service.Classify(context.Background(), req.Message)
	if resp != nil {
		*resp = ClassifyReply{
			Responder: string(r.Responder),
			Source:    string(r.Source),
			Analysis:  r.Analysis,
			Notice:    r.Notice,
		}
	}
	return nil
}

// ListAgents returns the agent catalogue.
func (h *Handler) ListAgents(_ *ListAgentsArgs, resp *ListAgentsReply) error {
	if resp != nil {
		resp.Agents = h.service.ListAgents(context.Background())
	}
	return nil
}
