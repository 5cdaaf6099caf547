package domain

import (
	"encoding/json"
	"fmt"
)

// RichDataType names the kind of card attached to an agent message.
type RichDataType string

const (
	RichDataOrder   RichDataType = "order"
	RichDataInvoice RichDataType = "invoice"
)

// OrderCard is the display payload for an order.
type OrderCard struct {
	ID             string   `json:"id"`
	Status         string   `json:"status"`
	Items          []string `json:"items"`
	Total          string   `json:"total"`
	ETA            string   `json:"eta"`
	TrackingNumber string   `json:"trackingNumber,omitempty"`
}

// InvoiceCard is the display payload for an invoice.
type InvoiceCard struct {
	ID     string        `json:"id"`
	Date   string        `json:"date"`
	Amount string        `json:"amount"`
	Status string        `json:"status"`
	Items  []InvoiceItem `json:"items"`
}

// RichData is a structured card rendered next to an agent message.
// Exactly one of Order and Invoice is set, matching Type.
type RichData struct {
	Type    RichDataType
	Order   *OrderCard
	Invoice *InvoiceCard
}

type richDataJSON struct {
	Type    RichDataType    `json:"type"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON encodes the card as {type, content}.
func (d RichData) MarshalJSON() ([]byte, error) {
	var content any
	switch d.Type {
	case RichDataOrder:
		content = d.Order
	case RichDataInvoice:
		content = d.Invoice
	default:
		return nil, fmt.Errorf("unknown rich data type %q", d.Type)
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(richDataJSON{Type: d.Type, Content: raw})
}

// UnmarshalJSON decodes a {type, content} card.
func (d *RichData) UnmarshalJSON(b []byte) error {
	var w richDataJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*d = RichData{Type: w.Type}
	switch w.Type {
	case RichDataOrder:
		d.Order = &OrderCard{}
		return json.Unmarshal(w.Content, d.Order)
	case RichDataInvoice:
		d.Invoice = &InvoiceCard{}
		return json.Unmarshal(w.Content, d.Invoice)
	default:
		return fmt.Errorf("unknown rich data type %q", w.Type)
	}
}
