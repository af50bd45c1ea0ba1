package checkout

import (
	"testing"

	"github.com/bookbharat/checkout-api/internal/domain"
)

func TestReduceTaxCalculationAndTaxErrorNeverCoexist(t *testing.T) {
	state := NewState()

	state = Reduce(state, SetTaxError{Message: "remote unavailable"})
	if state.TaxError == "" || state.TaxCalculation != nil {
		t.Fatalf("expected tax error only, got error=%q calc=%#v", state.TaxError, state.TaxCalculation)
	}

	state = Reduce(state, SetTaxCalculation{Result: &domain.TaxResult{
		Summary: domain.TaxSummary{GrandTotal: 1050},
	}})
	if state.TaxError != "" {
		t.Fatalf("expected tax error cleared by calculation, got %q", state.TaxError)
	}
	if state.TaxCalculation == nil {
		t.Fatalf("expected tax calculation stored")
	}

	state = Reduce(state, SetTaxError{Message: "stale rates"})
	if state.TaxCalculation != nil {
		t.Fatalf("expected tax calculation cleared by error, got %#v", state.TaxCalculation)
	}

	// Exercise a longer action sequence; the exclusivity must hold throughout.
	actions := []Action{
		SetTaxCalculation{Result: &domain.TaxResult{}},
		SetCalculatingTax{Calculating: true},
		SetTaxError{Message: "boom"},
		SetCalculatingTax{},
		SetTaxCalculation{Result: &domain.TaxResult{}},
	}
	for i, action := range actions {
		state = Reduce(state, action)
		if state.TaxError != "" && state.TaxCalculation != nil {
			t.Fatalf("after action %d both tax error and calculation set", i)
		}
	}
}

func TestReduceRetryCountResetsOnlyWhenErrorCleared(t *testing.T) {
	state := NewState()
	state = Reduce(state, SetRetryCount{Count: 2})

	state = Reduce(state, SetError{Message: "payment failed", Type: ErrorPayment})
	if state.RetryCount != 2 {
		t.Fatalf("setting an error must not reset retry count, got %d", state.RetryCount)
	}

	state = Reduce(state, SetError{Message: "gateway timeout", Type: ErrorNetwork})
	if state.RetryCount != 2 {
		t.Fatalf("replacing the error must not reset retry count, got %d", state.RetryCount)
	}

	state = Reduce(state, SetError{})
	if state.RetryCount != 0 {
		t.Fatalf("clearing the error must reset retry count, got %d", state.RetryCount)
	}
	if state.Error != "" || state.ErrorType != "" {
		t.Fatalf("expected error cleared, got %q/%q", state.Error, state.ErrorType)
	}
}

func TestReduceErrorDefaultsToGeneralType(t *testing.T) {
	state := Reduce(NewState(), SetError{Message: "something odd"})
	if state.ErrorType != ErrorGeneral {
		t.Fatalf("expected general error type, got %q", state.ErrorType)
	}
}

func TestReduceRestorePartialPreservesAbsentFields(t *testing.T) {
	state := NewState()
	state = Reduce(state, SetShippingAddress{Address: domain.Address{
		FirstName:  "Asha",
		State:      "Maharashtra",
		PostalCode: "400001",
	}})

	step := domain.StepPayment
	state = Reduce(state, RestorePartial{Snapshot: Snapshot{CurrentStep: &step}})

	if state.CurrentStep != domain.StepPayment {
		t.Fatalf("expected restored step 2, got %d", state.CurrentStep)
	}
	if state.Fragment != "#payment" {
		t.Fatalf("expected fragment mirror updated, got %q", state.Fragment)
	}
	if state.ShippingAddress == nil || state.ShippingAddress.State != "Maharashtra" {
		t.Fatalf("restore-partial erased the shipping address: %#v", state.ShippingAddress)
	}
}

func TestReduceRestorePartialIgnoresInvalidStep(t *testing.T) {
	state := NewState()
	step := domain.Step(7)
	state = Reduce(state, RestorePartial{Snapshot: Snapshot{CurrentStep: &step}})
	if state.CurrentStep != domain.StepShipping {
		t.Fatalf("expected invalid step ignored, got %d", state.CurrentStep)
	}
}

func TestReduceResetReturnsPristineState(t *testing.T) {
	state := NewState()
	state = Reduce(state, SetShippingAddress{Address: domain.Address{State: "Kerala"}})
	state = Reduce(state, SetPaymentMethod{Method: domain.PaymentMethod{ID: "cod-1", Type: domain.PaymentCOD}})
	state = Reduce(state, SetError{Message: "boom", Type: ErrorNetwork})
	state = Reduce(state, SetRetryCount{Count: 3})
	state = Reduce(state, SetShippingCost{Cost: 75})
	state = Reduce(state, SetStep{Step: domain.StepReview})

	state = Reduce(state, Reset{})

	pristine := NewState()
	if state.CurrentStep != pristine.CurrentStep ||
		state.Fragment != pristine.Fragment ||
		state.ShippingAddress != nil ||
		state.SelectedPaymentMethod != nil ||
		state.Error != "" ||
		state.RetryCount != 0 ||
		state.ShippingCost != 0 ||
		!state.SameAsBilling {
		t.Fatalf("reset did not restore pristine state: %#v", state)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	state := NewState()
	state = Reduce(state, SetStep{Step: domain.StepPayment})
	state = Reduce(state, SetShippingAddress{Address: domain.Address{
		FirstName:  "Ravi",
		LastName:   "Iyer",
		State:      "Maharashtra",
		PostalCode: "400001",
	}})
	state = Reduce(state, SetPaymentMethod{Method: domain.PaymentMethod{
		ID:   "razorpay",
		Name: "Razorpay",
		Type: domain.PaymentOnline,
	}})
	state = Reduce(state, SetShippingCost{Cost: 50})

	restored := Reduce(NewState(), RestorePartial{Snapshot: SnapshotOf(state)})

	if restored.CurrentStep != state.CurrentStep {
		t.Fatalf("expected step %d, got %d", state.CurrentStep, restored.CurrentStep)
	}
	if restored.ShippingAddress == nil || *restored.ShippingAddress != *state.ShippingAddress {
		t.Fatalf("shipping address did not survive the round trip: %#v", restored.ShippingAddress)
	}
	if restored.SelectedPaymentMethod == nil || restored.SelectedPaymentMethod.ID != "razorpay" {
		t.Fatalf("payment method did not survive the round trip: %#v", restored.SelectedPaymentMethod)
	}
	if restored.ShippingCost != 50 {
		t.Fatalf("expected shipping cost 50, got %v", restored.ShippingCost)
	}
}
