// Package agent implements intent routing and delegated execution of
// support responders against an LLM with a constrained tool set.
package agent

import (
	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/tools"
)

// RouterName is the agent name stored on routing notices.
const RouterName = "Router"

// RouterPrompt is the system prompt used for intent classification.
const RouterPrompt = `You are the Router Agent for Swades AI Customer Support.
Your job is to analyze incoming customer queries and determine which specialized agent should handle them.

The available agents are:
1. **Support Agent** - Handles general support inquiries, FAQs, and troubleshooting
2. **Order Agent** - Handles order status, tracking, modifications, and cancellations
3. **Billing Agent** - Handles payment issues, refunds, invoices, and subscription queries

Respond with a brief analysis of the query and which agent to delegate to.
Format your response as:
DELEGATE_TO: [support|order|billing]
ANALYSIS: [Your brief analysis]

If the query is unclear, default to the Support Agent.`

// Profile describes one responder.
type Profile struct {
	ID           domain.ResponderID
	Name         string
	Display      string
	Description  string
	Prompt       string
	Capabilities []string
	// Tools is the ordered subset of registry tools the responder may call.
	Tools []string
}

// Allows reports whether the profile may call the named tool.
func (p Profile) Allows(tool string) bool {
	for _, t := range p.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

var defaultProfiles = map[domain.ResponderID]Profile{
	domain.ResponderSupport: {
		ID:          domain.ResponderSupport,
		Name:        "Support Agent",
		Display:     "Support",
		Description: "Handles general support inquiries, FAQs, and troubleshooting",
		Prompt: `You are the Support Agent for Swades AI Customer Support.
You handle general support inquiries, FAQs, and troubleshooting.
Be helpful, concise, and professional. Use the queryConversationHistory tool when you need context from previous interactions.
If the user's query requires order or billing assistance, suggest they ask about those specific topics.`,
		Capabilities: []string{"FAQ answers", "Troubleshooting guides", "General inquiries"},
		Tools:        []string{tools.QueryConversationHistory},
	},
	domain.ResponderOrder: {
		ID:          domain.ResponderOrder,
		Name:        "Order Agent",
		Display:     "Order",
		Description: "Handles order status, tracking, modifications, and cancellations",
		Prompt: `You are the Order Agent for Swades AI Customer Support.
You handle order status lookups, tracking, modifications, and cancellations.
Use the fetchOrderDetails tool to look up orders and checkDeliveryStatus to check delivery status.
Use cancelOrder only when the customer explicitly asks to cancel, and createOrder only when they ask to place a new order.
Always provide clear, structured information about orders. Be helpful and proactive.`,
		Capabilities: []string{"Order status lookup", "Delivery tracking", "Order modifications", "Order cancellation"},
		Tools:        []string{tools.FetchOrderDetails, tools.CheckDeliveryStatus, tools.CancelOrder, tools.CreateOrder},
	},
	domain.ResponderBilling: {
		ID:          domain.ResponderBilling,
		Name:        "Billing Agent",
		Display:     "Billing",
		Description: "Handles payment issues, refunds, invoices, and subscription queries",
		Prompt: `You are the Billing Agent for Swades AI Customer Support.
You handle payment issues, refunds, invoices, and subscription queries.
Use the getInvoiceDetails tool to look up invoices and checkRefundStatus to check refund status.
Always provide clear, structured information about billing. Be helpful and proactive.`,
		Capabilities: []string{"Invoice lookup", "Payment status", "Refund processing", "Subscription management"},
		Tools:        []string{tools.GetInvoiceDetails, tools.CheckRefundStatus},
	},
}

// GetProfile returns the built-in profile for id. Unknown ids get the
// support profile.
func GetProfile(id domain.ResponderID) Profile {
	if p, ok := defaultProfiles[id]; ok {
		return p
	}
	return defaultProfiles[domain.ResponderSupport]
}

// ProfileSet is the immutable set of profiles in use by a running process.
type ProfileSet struct {
	profiles map[domain.ResponderID]Profile
}

// NewProfileSet builds the built-in profiles with prompt overrides keyed by
// responder id. Overrides for unknown ids are ignored.
func NewProfileSet(promptOverrides map[string]string) *ProfileSet {
	ps := &ProfileSet{profiles: make(map[domain.ResponderID]Profile, len(defaultProfiles))}
	for id, p := range defaultProfiles {
		p.Tools = append([]string(nil), p.Tools...)
		if prompt, ok := promptOverrides[string(id)]; ok && prompt != "" {
			p.Prompt = prompt
		}
		ps.profiles[id] = p
	}
	return ps
}

// Get is total: unknown ids map to support.
func (ps *ProfileSet) Get(id domain.ResponderID) Profile {
	if ps == nil {
		return GetProfile(id)
	}
	if p, ok := ps.profiles[id]; ok {
		return p
	}
	return ps.profiles[domain.ResponderSupport]
}

// All returns the profiles in catalogue order.
func (ps *ProfileSet) All() []Profile {
	out := make([]Profile, 0, len(domain.Responders))
	for _, id := range domain.Responders {
		out = append(out, ps.Get(id))
	}
	return out
}
