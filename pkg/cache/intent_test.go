package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crumbworks/querycache/pkg/cache"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		question string
		expected string
	}{
		{"How much does a dozen cupcakes cost?", "pricing"},
		{"what are your rates for catering", "pricing"},
		{"What are your hours?", "hours"},
		{"when do you close on sundays", "hours"},
		{"What is your refund policy?", "policies"},
		{"can i exchange this", "policies"},
		{"What options do you have?", "menu"},
		{"do you sell sourdough", "menu"},
		{"Do you deliver?", "delivery"},
		{"can i order takeout", "delivery"},
		{"where are you located", "location"},
		{"how do i reach you by phone", "contact"},
		{"is this gluten free", "allergies"},
		{"tell me about your bakery", "general"},
		{"", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.expected, cache.ClassifyIntent(tt.question))
		})
	}
}

func TestClassifyIntentRuleOrder(t *testing.T) {
	// "How much do custom cakes cost?" matches both pricing and custom;
	// the earlier rule wins.
	assert.Equal(t, "pricing", cache.ClassifyIntent("How much do custom cakes cost?"))

	// Without the pricing keywords the custom rule takes it.
	assert.Equal(t, "custom", cache.ClassifyIntent("can you make a custom wedding cake"))
}

func TestIntentLabels(t *testing.T) {
	labels := cache.IntentLabels()
	assert.Contains(t, labels, "pricing")
	assert.Contains(t, labels, "allergies")
	assert.Equal(t, "general", labels[len(labels)-1])
}
