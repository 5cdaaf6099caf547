package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/tools"
)

func TestGetProfileIsTotal(t *testing.T) {
	for _, id := range []domain.ResponderID{"support", "order", "billing", "router", "", "ORDER", "sales"} {
		p := GetProfile(id)
		assert.NotEmpty(t, p.Name, id)
		assert.NotEmpty(t, p.Prompt, id)
		assert.NotEmpty(t, p.Tools, id)
		if !id.Valid() {
			assert.Equal(t, domain.ResponderSupport, p.ID, id)
		}
	}
	assert.Equal(t, "Order Agent", GetProfile(domain.ResponderOrder).Name)
	assert.Equal(t, "Billing Agent", GetProfile(domain.ResponderBilling).Name)
}

func TestProfileToolSubsetsAreRegistered(t *testing.T) {
	registry := tools.NewBuiltinRegistry(newMemStore())
	for _, p := range NewProfileSet(nil).All() {
		for _, name := range p.Tools {
			_, ok := registry.Get(name)
			assert.True(t, ok, "%s advertises unregistered tool %s", p.Name, name)
		}
	}
}

func TestProfileSetOverridesPromptOnly(t *testing.T) {
	ps := NewProfileSet(map[string]string{"billing": "custom prompt", "router": "ignored"})
	assert.Equal(t, "custom prompt", ps.Get(domain.ResponderBilling).Prompt)
	assert.Equal(t, GetProfile(domain.ResponderBilling).Tools, ps.Get(domain.ResponderBilling).Tools)
	assert.Equal(t, GetProfile(domain.ResponderOrder).Prompt, ps.Get(domain.ResponderOrder).Prompt)
	assert.Equal(t, domain.ResponderSupport, ps.Get("nope").ID)
	assert.Len(t, ps.All(), 3)
}
