package domain

import "strings"

// ResponderID names one of the specialised responders a message can be routed to.
type ResponderID string

const (
	ResponderSupport ResponderID = "support"
	ResponderOrder   ResponderID = "order"
	ResponderBilling ResponderID = "billing"
)

// Responders lists every responder in catalogue order.
var Responders = []ResponderID{ResponderSupport, ResponderOrder, ResponderBilling}

// ParseResponderID maps a string onto the closed responder set.
// Anything unrecognised becomes support.
func ParseResponderID(s string) ResponderID {
	switch ResponderID(strings.ToLower(strings.TrimSpace(s))) {
	case ResponderOrder:
		return ResponderOrder
	case ResponderBilling:
		return ResponderBilling
	default:
		return ResponderSupport
	}
}

// Valid reports whether id is one of the three known responders.
func (id ResponderID) Valid() bool {
	switch id {
	case ResponderSupport, ResponderOrder, ResponderBilling:
		return true
	}
	return false
}

// Display returns the capitalised short name used in routing notices.
func (id ResponderID) Display() string {
	switch id {
	case ResponderOrder:
		return "Order"
	case ResponderBilling:
		return "Billing"
	default:
		return "Support"
	}
}
