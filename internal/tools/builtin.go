package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/xiaot623/supportdesk/internal/domain"
)

// Tool names.
const (
	QueryConversationHistory = "queryConversationHistory"
	FetchOrderDetails        = "fetchOrderDetails"
	CheckDeliveryStatus      = "checkDeliveryStatus"
	CancelOrder              = "cancelOrder"
	CreateOrder              = "createOrder"
	GetInvoiceDetails        = "getInvoiceDetails"
	CheckRefundStatus        = "checkRefundStatus"
)

const historySearchLimit = 20

// DataStore is the persistence the builtin tools read and write.
// Lookups return nil, nil when nothing matches.
type DataStore interface {
	GetOrderByNumber(ctx context.Context, userID, orderNumber string) (*domain.OrderRecord, error)
	UpdateOrderStatus(ctx context.Context, orderNumber, status string) error
	CreateOrder(ctx context.Context, order *domain.OrderRecord) error
	GetPaymentByInvoice(ctx context.Context, userID, invoiceNumber string) (*domain.PaymentRecord, error)
	SearchMessages(ctx context.Context, userID, term string, limit int) ([]domain.Message, error)
}

// NewBuiltinRegistry returns a registry holding every support desk tool.
func NewBuiltinRegistry(store DataStore) *Registry {
	r := NewRegistry()
	b := &builtins{store: store, newOrderNumber: randomOrderNumber}

	r.MustRegister(Tool{
		Name:        QueryConversationHistory,
		Description: "Search through past conversation messages for context about previous interactions with the user",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"searchTerm": {"type": "string", "minLength": 1, "description": "The keywords to search for in conversation history"}
			},
			"required": ["searchTerm"]
		}`),
		Execute: b.queryConversationHistory,
	})
	r.MustRegister(Tool{
		Name:        FetchOrderDetails,
		Description: "Fetch order details by order number. Use this when users ask about a specific order.",
		Schema:      orderNumberSchema("The order number to look up, e.g., ORD-9283"),
		Execute:     b.fetchOrderDetails,
	})
	r.MustRegister(Tool{
		Name:        CheckDeliveryStatus,
		Description: "Check the delivery status and estimated time of arrival for an order",
		Schema:      orderNumberSchema("The order number to check delivery for"),
		Execute:     b.checkDeliveryStatus,
	})
	r.MustRegister(Tool{
		Name:        CancelOrder,
		Description: "Cancel an order that has not shipped yet. Only pending or processing orders can be cancelled.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"orderNumber": {"type": "string", "pattern": "^ORD-[0-9]+$", "description": "The order number to cancel"},
				"reason": {"type": "string", "description": "Why the customer wants to cancel"}
			},
			"required": ["orderNumber"]
		}`),
		Mutating: true,
		Execute:  b.cancelOrder,
	})
	r.MustRegister(Tool{
		Name:        CreateOrder,
		Description: "Place a new order for the customer with the given items",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"items": {
					"type": "array",
					"minItems": 1,
					"items": {
						"type": "object",
						"properties": {
							"name": {"type": "string", "minLength": 1},
							"quantity": {"type": "integer", "minimum": 1},
							"price": {"type": "number", "minimum": 0}
						},
						"required": ["name", "quantity", "price"]
					}
				}
			},
			"required": ["items"]
		}`),
		Mutating: true,
		Execute:  b.createOrder,
	})
	r.MustRegister(Tool{
		Name:        GetInvoiceDetails,
		Description: "Get invoice details by invoice number. Use when users ask about a specific invoice or their billing.",
		Schema:      invoiceNumberSchema("The invoice number to look up, e.g., INV-2024-001"),
		Execute:     b.getInvoiceDetails,
	})
	r.MustRegister(Tool{
		Name:        CheckRefundStatus,
		Description: "Check the status of a refund request",
		Schema:      invoiceNumberSchema("The invoice number to check refund status for"),
		Execute:     b.checkRefundStatus,
	})
	return r
}

func orderNumberSchema(desc string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type": "object",
		"properties": {"orderNumber": {"type": "string", "minLength": 1, "description": %q}},
		"required": ["orderNumber"]
	}`, desc))
}

func invoiceNumberSchema(desc string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type": "object",
		"properties": {"invoiceNumber": {"type": "string", "minLength": 1, "description": %q}},
		"required": ["invoiceNumber"]
	}`, desc))
}

// orderNumberAttempts bounds retries when a generated order number is taken.
const orderNumberAttempts = 5

type builtins struct {
	store DataStore
	// newOrderNumber generates a candidate number for createOrder.
	newOrderNumber func() string
}

func randomOrderNumber() string {
	return fmt.Sprintf("ORD-%06d", 100000+rand.IntN(900000))
}

func (b *builtins) queryConversationHistory(ctx context.Context, tc ToolContext, raw json.RawMessage) (domain.ToolResult, error) {
	var args struct {
		SearchTerm string `json:"searchTerm"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	msgs, err := b.store.SearchMessages(ctx, tc.UserID, args.SearchTerm, historySearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(msgs) == 0 {
		return domain.HistorySearch{Found: false, Message: "No matching conversation history found."}, nil
	}
	results := make([]domain.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		results = append(results, domain.HistoryEntry{
			Role:    m.Role,
			Content: m.Content,
			Date:    m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return domain.HistorySearch{Found: true, Results: results}, nil
}

type orderArgs struct {
	OrderNumber string `json:"orderNumber"`
	Reason      string `json:"reason,omitempty"`
}

func (b *builtins) lookupOrder(ctx context.Context, tc ToolContext, raw json.RawMessage) (orderArgs, *domain.OrderRecord, error) {
	var args orderArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, nil, err
	}
	rec, err := b.store.GetOrderByNumber(ctx, tc.UserID, args.OrderNumber)
	if err != nil {
		return args, nil, fmt.Errorf("failed to get order: %w", err)
	}
	return args, rec, nil
}

func (b *builtins) fetchOrderDetails(ctx context.Context, tc ToolContext, raw json.RawMessage) (domain.ToolResult, error) {
	args, rec, err := b.lookupOrder(ctx, tc, raw)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return domain.OrderLookup{Found: false, Message: fmt.Sprintf("Order %s not found.", args.OrderNumber)}, nil
	}
	return domain.OrderLookup{Found: true, Order: orderEntity(rec)}, nil
}

func (b *builtins) checkDeliveryStatus(ctx context.Context, tc ToolContext, raw json.RawMessage) (domain.ToolResult, error) {
	args, rec, err := b.lookupOrder(ctx, tc, raw)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return domain.DeliveryLookup{Found: false, Message: fmt.Sprintf("Order %s not found.", args.OrderNumber)}, nil
	}
	d := &domain.Delivery{
		OrderNumber:    rec.OrderNumber,
		Status:         rec.Status,
		TrackingNumber: orDefault(rec.TrackingNumber, "Not yet assigned"),
		ETA:            orDefault(rec.ETA, "Not available"),
		Items:          rec.Items,
		Total:          rec.Total,
	}
	return domain.DeliveryLookup{Found: true, Delivery: d}, nil
}

func (b *builtins) cancelOrder(ctx context.Context, tc ToolContext, raw json.RawMessage) (domain.ToolResult, error) {
	args, rec, err := b.lookupOrder(ctx, tc, raw)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return domain.OrderCancellation{Success: false, Message: fmt.Sprintf("Order %s not found.", args.OrderNumber)}, nil
	}
	switch rec.Status {
	case "pending", "processing":
	default:
		return domain.OrderCancellation{
			Success: false,
			Order:   orderEntity(rec),
			Message: fmt.Sprintf("Order %s cannot be cancelled because it is %s.", rec.OrderNumber, rec.Status),
		}, nil
	}
	if err := b.store.UpdateOrderStatus(ctx, rec.OrderNumber, "cancelled"); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	rec.Status = "cancelled"
	rec.ETA = ""
	msg := fmt.Sprintf("Order %s has been cancelled.", rec.OrderNumber)
	if args.Reason != "" {
		msg = fmt.Sprintf("Order %s has been cancelled (reason: %s).", rec.OrderNumber, args.Reason)
	}
	return domain.OrderCancellation{Success: true, Order: orderEntity(rec), Message: msg}, nil
}

func (b *builtins) createOrder(ctx context.Context, tc ToolContext, raw json.RawMessage) (domain.ToolResult, error) {
	var args struct {
		Items []struct {
			Name     string  `json:"name"`
			Quantity int     `json:"quantity"`
			Price    float64 `json:"price"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if tc.UserID == "" {
		return domain.OrderCreation{Success: false, Message: "Orders can only be placed for a signed-in customer."}, nil
	}

	rec := &domain.OrderRecord{
		UserID: tc.UserID,
		Status: "pending",
		ETA:    "3-5 business days",
	}
	var total float64
	for _, it := range args.Items {
		total += it.Price * float64(it.Quantity)
		rec.Items = append(rec.Items, domain.OrderItem{
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    formatAmount(it.Price),
		})
	}
	rec.Total = formatAmount(total)

	var err error
	for range orderNumberAttempts {
		rec.OrderNumber = b.newOrderNumber()
		err = b.store.CreateOrder(ctx, rec)
		if !errors.Is(err, domain.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return domain.OrderCreation{
		Success: true,
		Order:   orderEntity(rec),
		Message: fmt.Sprintf("Order %s has been placed.", rec.OrderNumber),
	}, nil
}

func (b *builtins) lookupInvoice(ctx context.Context, tc ToolContext, raw json.RawMessage) (string, *domain.PaymentRecord, error) {
	var args struct {
		InvoiceNumber string `json:"invoiceNumber"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", nil, err
	}
	rec, err := b.store.GetPaymentByInvoice(ctx, tc.UserID, args.InvoiceNumber)
	if err != nil {
		return args.InvoiceNumber, nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return args.InvoiceNumber, rec, nil
}

func (b *builtins) getInvoiceDetails(ctx context.Context, tc ToolContext, raw json.RawMessage) (domain.ToolResult, error) {
	number, rec, err := b.lookupInvoice(ctx, tc, raw)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return domain.InvoiceLookup{Found: false, Message: fmt.Sprintf("Invoice %s not found.", number)}, nil
	}
	return domain.InvoiceLookup{Found: true, Invoice: &domain.Invoice{
		ID:     rec.InvoiceNumber,
		Amount: rec.Amount,
		Status: rec.Status,
		Items:  rec.Items,
		Date:   rec.Date,
	}}, nil
}

func (b *builtins) checkRefundStatus(ctx context.Context, tc ToolContext, raw json.RawMessage) (domain.ToolResult, error) {
	number, rec, err := b.lookupInvoice(ctx, tc, raw)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return domain.RefundLookup{Found: false, Message: fmt.Sprintf("Invoice %s not found.", number)}, nil
	}
	status := "Not refunded"
	if rec.Status == "refunded" {
		status = "Refunded"
	}
	return domain.RefundLookup{Found: true, Refund: &domain.Refund{
		InvoiceNumber: rec.InvoiceNumber,
		Amount:        rec.Amount,
		Status:        status,
		OriginalDate:  rec.Date,
		Items:         rec.Items,
		InvoiceStatus: rec.Status,
	}}, nil
}

func orderEntity(rec *domain.OrderRecord) *domain.Order {
	o := &domain.Order{
		ID:             rec.OrderNumber,
		Status:         rec.Status,
		Items:          rec.Items,
		Total:          rec.Total,
		TrackingNumber: rec.TrackingNumber,
		ETA:            rec.ETA,
	}
	if !rec.CreatedAt.IsZero() {
		o.CreatedAt = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	return o
}

func formatAmount(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
