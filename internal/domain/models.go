package domain

import (
	"errors"
	"time"
)

// ErrDuplicate is returned by stores when a unique key is already taken.
var ErrDuplicate = errors.New("record already exists")

// User is a customer of the support desk.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationDetail is a conversation with its messages in chronological order.
type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages"`
}

// Message is a stored conversation message. Role is "user", "router"
// or a responder id.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	AgentName      string    `json:"agent_name,omitempty"`
	Data           *RichData `json:"data,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HistoryMessage is a prior turn passed to the model.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToHistory collapses stored roles onto user/assistant.
func ToHistory(msgs []Message) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		role := "assistant"
		if m.Role == string(MessageRoleUser) {
			role = "user"
		}
		out = append(out, HistoryMessage{Role: role, Content: m.Content})
	}
	return out
}

// OrderRecord is a persisted order row.
type OrderRecord struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	OrderNumber    string      `json:"order_number"`
	Status         string      `json:"status"`
	Items          []OrderItem `json:"items"`
	Total          string      `json:"total"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	ETA            string      `json:"eta,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// PaymentRecord is a persisted payment row.
type PaymentRecord struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	InvoiceNumber string        `json:"invoice_number"`
	Amount        string        `json:"amount"`
	Status        string        `json:"status"`
	Items         []InvoiceItem `json:"items"`
	Date          string        `json:"date"`
	CreatedAt     time.Time     `json:"created_at"`
}
