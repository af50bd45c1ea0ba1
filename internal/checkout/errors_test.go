package checkout

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bookbharat/checkout-api/internal/upstream"
)

func TestClassifyStatusOverridesBeatKeywords(t *testing.T) {
	// Message text says "card" but the 409 status pins the inventory family.
	err := fmt.Errorf("create order: %w", &upstream.StatusError{
		StatusCode: 409,
		Endpoint:   "/orders",
		Message:    "card conflict",
	})
	if got := Classify(err); got != ErrorInventory {
		t.Fatalf("expected inventory from status override, got %q", got)
	}
}

func TestClassifyKeywordFamilies(t *testing.T) {
	cases := []struct {
		message string
		want    ErrorType
	}{
		{"payment gateway rejected the charge", ErrorPayment},
		{"card declined", ErrorPayment},
		{"shipping zone not serviceable", ErrorShipping},
		{"address could not be verified", ErrorShipping},
		{"item out of stock", ErrorInventory},
		{"inventory hold expired", ErrorInventory},
		{"network unreachable", ErrorNetwork},
		{"connection reset by peer", ErrorNetwork},
		{"request timeout", ErrorNetwork},
		{"validation failed for pincode", ErrorValidation},
		{"invalid phone number", ErrorValidation},
		{"field email is required", ErrorValidation},
		{"something else entirely", ErrorGeneral},
	}
	for _, tc := range cases {
		if got := Classify(errors.New(tc.message)); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.message, got, tc.want)
		}
	}
}

func TestClassifyUnmappedStatusFallsThroughToKeywords(t *testing.T) {
	err := &upstream.StatusError{StatusCode: 500, Endpoint: "/orders", Message: "payment processor crashed"}
	if got := Classify(err); got != ErrorPayment {
		t.Fatalf("expected keyword fallback for unmapped status, got %q", got)
	}
}

func TestSuggestedActionCoversAllTypes(t *testing.T) {
	types := []ErrorType{ErrorPayment, ErrorShipping, ErrorInventory, ErrorNetwork, ErrorValidation, ErrorGeneral}
	seen := make(map[string]ErrorType, len(types))
	for _, kind := range types {
		action := kind.SuggestedAction()
		if action == "" {
			t.Fatalf("expected non-empty action for %q", kind)
		}
		if prev, dup := seen[action]; dup {
			t.Fatalf("types %q and %q share action %q", prev, kind, action)
		}
		seen[action] = kind
	}
}

func TestComposeSupportEmail(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)

	email := ComposeSupportEmail("payment gateway rejected the charge", ErrorPayment, "BB-2024-42", at)
	if email.Subject != "Checkout issue (order BB-2024-42)" {
		t.Fatalf("unexpected subject %q", email.Subject)
	}
	for _, fragment := range []string{
		"payment gateway rejected the charge",
		"Category: payment",
		"Order reference: BB-2024-42",
		"2024-06-01T10:30:00Z",
	} {
		if !strings.Contains(email.Body, fragment) {
			t.Fatalf("expected body to contain %q, got %q", fragment, email.Body)
		}
	}

	plain := ComposeSupportEmail("boom", ErrorGeneral, "", at)
	if plain.Subject != "Checkout issue" {
		t.Fatalf("unexpected subject without order ref: %q", plain.Subject)
	}
	if strings.Contains(plain.Body, "Order reference") {
		t.Fatalf("expected no order reference line, got %q", plain.Body)
	}
}
