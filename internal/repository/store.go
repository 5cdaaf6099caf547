// Package repository persists conversations, commerce records and run traces.
package repository

import (
	"context"

	"github.com/xiaot623/supportdesk/internal/domain"
)

// Store defines the interface for data persistence. Single-row lookups
// return nil, nil when the row does not exist.
type Store interface {
	// User operations
	EnsureUser(ctx context.Context, user *domain.User) (bool, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// Conversation operations
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	TouchConversation(ctx context.Context, conversationID string) error
	DeleteConversation(ctx context.Context, conversationID string) error

	// Message operations
	CreateMessage(ctx context.Context, msg *domain.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	SearchMessages(ctx context.Context, userID, term string, limit int) ([]domain.Message, error)

	// Order and payment operations
	CreateOrder(ctx context.Context, order *domain.OrderRecord) error
	GetOrderByNumber(ctx context.Context, userID, orderNumber string) (*domain.OrderRecord, error)
	UpdateOrderStatus(ctx context.Context, orderNumber, status string) error
	CreatePayment(ctx context.Context, payment *domain.PaymentRecord) error
	GetPaymentByInvoice(ctx context.Context, userID, invoiceNumber string) (*domain.PaymentRecord, error)

	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	UpdateRunResponder(ctx context.Context, runID, responder string) error
	UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*SQLStore)(nil)
