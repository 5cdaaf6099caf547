package domain

import (
	"encoding/json"
	"fmt"
)

// ToolResultKind identifies a ToolResult variant.
type ToolResultKind string

const (
	ToolResultOrderLookup       ToolResultKind = "order_lookup"
	ToolResultDeliveryLookup    ToolResultKind = "delivery_lookup"
	ToolResultInvoiceLookup     ToolResultKind = "invoice_lookup"
	ToolResultRefundLookup      ToolResultKind = "refund_lookup"
	ToolResultHistorySearch     ToolResultKind = "history_search"
	ToolResultOrderCancellation ToolResultKind = "order_cancellation"
	ToolResultOrderCreation     ToolResultKind = "order_creation"
)

// ToolResult is the closed set of values a tool can return.
// Each variant carries at most one entity kind.
type ToolResult interface {
	Kind() ToolResultKind
	isToolResult()
}

// OrderItem is one line of an order. Items stored as a bare string
// decode with Quantity 0 and are displayed unchanged.
type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
	Price    string `json:"price,omitempty"`
}

// Label renders the item for display on an order card.
func (i OrderItem) Label() string {
	if i.Quantity <= 0 {
		return i.Name
	}
	return fmt.Sprintf("%dx %s", i.Quantity, i.Name)
}

// UnmarshalJSON accepts either a plain string or a {name, quantity, price} object.
func (i *OrderItem) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*i = OrderItem{Name: s}
		return nil
	}
	type plain OrderItem
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*i = OrderItem(p)
	return nil
}

// Order is the order entity exposed to the model.
type Order struct {
	ID             string      `json:"id"`
	Status         string      `json:"status"`
	Items          []OrderItem `json:"items"`
	Total          string      `json:"total"`
	TrackingNumber string      `json:"trackingNumber,omitempty"`
	ETA            string      `json:"eta,omitempty"`
	CreatedAt      string      `json:"createdAt,omitempty"`
}

// Delivery is the delivery view of an order.
type Delivery struct {
	OrderNumber    string `json:"orderNumber"`
	Status         string `json:"status"`
	TrackingNumber string `json:"trackingNumber"`
	ETA            string `json:"eta"`
	// Not part of the delivery payload sent to the model; used for the order card.
	Items []OrderItem `json:"-"`
	Total string      `json:"-"`
}

// InvoiceItem is one billed line.
type InvoiceItem struct {
	Desc   string `json:"desc"`
	Amount string `json:"amount"`
}

// Invoice is the invoice entity exposed to the model.
type Invoice struct {
	ID     string        `json:"id"`
	Amount string        `json:"amount"`
	Status string        `json:"status"`
	Items  []InvoiceItem `json:"items"`
	Date   string        `json:"date"`
}

// Refund is the refund view of an invoice.
type Refund struct {
	InvoiceNumber string `json:"invoiceNumber"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	OriginalDate  string `json:"originalDate"`
	// Underlying invoice, used for the invoice card.
	Items         []InvoiceItem `json:"-"`
	InvoiceStatus string        `json:"-"`
}

// HistoryEntry is one message matched by a history search.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Date    string `json:"date"`
}

type OrderLookup struct {
	Found   bool   `json:"found"`
	Order   *Order `json:"order,omitempty"`
	Message string `json:"message,omitempty"`
}

type DeliveryLookup struct {
	Found    bool      `json:"found"`
	Delivery *Delivery `json:"delivery,omitempty"`
	Message  string    `json:"message,omitempty"`
}

type InvoiceLookup struct {
	Found   bool     `json:"found"`
	Invoice *Invoice `json:"invoice,omitempty"`
	Message string   `json:"message,omitempty"`
}

type RefundLookup struct {
	Found   bool    `json:"found"`
	Refund  *Refund `json:"refund,omitempty"`
	Message string  `json:"message,omitempty"`
}

type HistorySearch struct {
	Found   bool           `json:"found"`
	Results []HistoryEntry `json:"results,omitempty"`
	Message string         `json:"message,omitempty"`
}

type OrderCancellation struct {
	Success bool   `json:"success"`
	Order   *Order `json:"order,omitempty"`
	Message string `json:"message,omitempty"`
}

type OrderCreation struct {
	Success bool   `json:"success"`
	Order   *Order `json:"order,omitempty"`
	Message string `json:"message,omitempty"`
}

func (OrderLookup) Kind() ToolResultKind       { return ToolResultOrderLookup }
func (DeliveryLookup) Kind() ToolResultKind    { return ToolResultDeliveryLookup }
func (InvoiceLookup) Kind() ToolResultKind     { return ToolResultInvoiceLookup }
func (RefundLookup) Kind() ToolResultKind      { return ToolResultRefundLookup }
func (HistorySearch) Kind() ToolResultKind     { return ToolResultHistorySearch }
func (OrderCancellation) Kind() ToolResultKind { return ToolResultOrderCancellation }
func (OrderCreation) Kind() ToolResultKind     { return ToolResultOrderCreation }

func (OrderLookup) isToolResult()       {}
func (DeliveryLookup) isToolResult()    {}
func (InvoiceLookup) isToolResult()     {}
func (RefundLookup) isToolResult()      {}
func (HistorySearch) isToolResult()     {}
func (OrderCancellation) isToolResult() {}
func (OrderCreation) isToolResult()     {}
