package agent

import "github.com/xiaot623/supportdesk/internal/domain"

// ExtractRichData scans tool results in step order and returns the card for
// the last one that carries a displayable entity, or nil.
func ExtractRichData(steps []Step) *domain.RichData {
	var data *domain.RichData
	for _, step := range steps {
		for _, call := range step.ToolCalls {
			if card := cardFor(call.Result); card != nil {
				data = card
			}
		}
	}
	return data
}

func cardFor(res domain.ToolResult) *domain.RichData {
	switch r := res.(type) {
	case domain.OrderLookup:
		if r.Found && r.Order != nil {
			return orderCard(r.Order)
		}
	case domain.OrderCancellation:
		if r.Success && r.Order != nil {
			return orderCard(r.Order)
		}
	case domain.OrderCreation:
		if r.Success && r.Order != nil {
			return orderCard(r.Order)
		}
	case domain.DeliveryLookup:
		if r.Found && r.Delivery != nil {
			return &domain.RichData{Type: domain.RichDataOrder, Order: &domain.OrderCard{
				ID:             r.Delivery.OrderNumber,
				Status:         r.Delivery.Status,
				Items:          itemLabels(r.Delivery.Items),
				Total:          r.Delivery.Total,
				ETA:            r.Delivery.ETA,
				TrackingNumber: r.Delivery.TrackingNumber,
			}}
		}
	case domain.InvoiceLookup:
		if r.Found && r.Invoice != nil {
			return &domain.RichData{Type: domain.RichDataInvoice, Invoice: &domain.InvoiceCard{
				ID:     r.Invoice.ID,
				Date:   r.Invoice.Date,
				Amount: r.Invoice.Amount,
				Status: r.Invoice.Status,
				Items:  r.Invoice.Items,
			}}
		}
	case domain.RefundLookup:
		if r.Found && r.Refund != nil {
			return &domain.RichData{Type: domain.RichDataInvoice, Invoice: &domain.InvoiceCard{
				ID:     r.Refund.InvoiceNumber,
				Date:   r.Refund.OriginalDate,
				Amount: r.Refund.Amount,
				Status: r.Refund.Status,
				Items:  r.Refund.Items,
			}}
		}
	}
	return nil
}

func orderCard(o *domain.Order) *domain.RichData {
	return &domain.RichData{Type: domain.RichDataOrder, Order: &domain.OrderCard{
		ID:             o.ID,
		Status:         o.Status,
		Items:          itemLabels(o.Items),
		Total:          o.Total,
		ETA:            o.ETA,
		TrackingNumber: o.TrackingNumber,
	}}
}

func itemLabels(items []domain.OrderItem) []string {
	labels := make([]string, 0, len(items))
	for _, it := range items {
		labels = append(labels, it.Label())
	}
	return labels
}
