package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaot623/supportdesk/internal/domain"
)

// DemoUserID owns the seeded orders, invoices and conversation.
const DemoUserID = "demo-user"

// Seed inserts the demo user with its orders, invoices and a sample
// conversation. It does nothing when the demo user already exists and
// reports whether data was written.
func Seed(ctx context.Context, s Store) (bool, error) {
	created, err := s.EnsureUser(ctx, &domain.User{ID: DemoUserID, Name: "Demo User", Email: "demo@supportdesk.local"})
	if err != nil {
		return false, fmt.Errorf("failed to seed user: %w", err)
	}
	if !created {
		return false, nil
	}

	for i := range seedOrders {
		o := seedOrders[i]
		o.UserID = DemoUserID
		if err := s.CreateOrder(ctx, &o); err != nil {
			return false, fmt.Errorf("failed to seed order %s: %w", o.OrderNumber, err)
		}
	}
	for i := range seedPayments {
		p := seedPayments[i]
		p.UserID = DemoUserID
		if err := s.CreatePayment(ctx, &p); err != nil {
			return false, fmt.Errorf("failed to seed invoice %s: %w", p.InvoiceNumber, err)
		}
	}

	start := time.Now().UTC()
	conv := &domain.Conversation{UserID: DemoUserID, Title: "Order tracking inquiry", CreatedAt: start}
	if err := s.CreateConversation(ctx, conv); err != nil {
		return false, fmt.Errorf("failed to seed conversation: %w", err)
	}
	msgs := []domain.Message{
		{Role: string(domain.MessageRoleUser), Content: "Where is my order ORD-9283?"},
		{
			Role:      string(domain.MessageRoleRouter),
			Content:   "I see you're asking about an order. Let me connect you with our Order Agent.",
			AgentName: "Router",
		},
		{
			Role:      string(domain.ResponderOrder),
			Content:   "I've found your order ORD-9283. It's currently in transit and expected to arrive tomorrow by 8 PM.",
			AgentName: "Order Agent",
			Data: &domain.RichData{Type: domain.RichDataOrder, Order: &domain.OrderCard{
				ID:     "ORD-9283",
				Status: "In Transit",
				Items:  []string{"Wireless Headphones", "Protective Case"},
				Total:  "$249.00",
				ETA:    "Tomorrow by 8 PM",
			}},
		},
	}
	for i := range msgs {
		msgs[i].ConversationID = conv.ID
		msgs[i].CreatedAt = start.Add(time.Duration(i) * time.Millisecond)
		if err := s.CreateMessage(ctx, &msgs[i]); err != nil {
			return false, fmt.Errorf("failed to seed message: %w", err)
		}
	}
	return true, nil
}

var seedOrders = []domain.OrderRecord{
	{
		OrderNumber: "ORD-9283",
		Status:      "in_transit",
		Items: []domain.OrderItem{
			{Name: "Wireless Headphones", Quantity: 1, Price: "$199.00"},
			{Name: "Protective Case", Quantity: 1, Price: "$50.00"},
		},
		Total:          "$249.00",
		TrackingNumber: "TRK-8827364",
		ETA:            "Tomorrow by 8 PM",
	},
	{
		OrderNumber: "ORD-7451",
		Status:      "delivered",
		Items: []domain.OrderItem{
			{Name: "USB-C Hub", Quantity: 1, Price: "$79.00"},
			{Name: "HDMI Cable", Quantity: 2, Price: "$30.00"},
		},
		Total:          "$109.00",
		TrackingNumber: "TRK-5529102",
		ETA:            "Delivered",
	},
	{
		OrderNumber: "ORD-3120",
		Status:      "processing",
		Items:       []domain.OrderItem{{Name: "Mechanical Keyboard", Quantity: 1, Price: "$149.00"}},
		Total:       "$149.00",
		ETA:         "3-5 business days",
	},
	{
		OrderNumber: "ORD-6699",
		Status:      "cancelled",
		Items:       []domain.OrderItem{{Name: "Monitor Stand", Quantity: 1, Price: "$89.00"}},
		Total:       "$89.00",
	},
}

var seedPayments = []domain.PaymentRecord{
	{
		InvoiceNumber: "INV-2024-001",
		Amount:        "$249.00",
		Status:        "paid",
		Items: []domain.InvoiceItem{
			{Desc: "Premium Plan (Monthly)", Amount: "$99.00"},
			{Desc: "AI Credits Pack", Amount: "$150.00"},
		},
		Date: "Feb 10, 2024",
	},
	{
		InvoiceNumber: "INV-2024-002",
		Amount:        "$99.00",
		Status:        "paid",
		Items:         []domain.InvoiceItem{{Desc: "Premium Plan (Monthly)", Amount: "$99.00"}},
		Date:          "Jan 10, 2024",
	},
	{
		InvoiceNumber: "INV-2024-003",
		Amount:        "$45.00",
		Status:        "refunded",
		Items:         []domain.InvoiceItem{{Desc: "AI Credits Pack (Small)", Amount: "$45.00"}},
		Date:          "Dec 15, 2023",
	},
	{
		InvoiceNumber: "INV-2024-004",
		Amount:        "$199.00",
		Status:        "pending",
		Items:         []domain.InvoiceItem{{Desc: "Enterprise Upgrade", Amount: "$199.00"}},
		Date:          "Feb 11, 2024",
	},
}
