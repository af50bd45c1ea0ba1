package checkout

import (
	"github.com/bookbharat/checkout-api/internal/domain"
)

// State is the checkout aggregate. It is owned exclusively by the Machine and
// mutated only through Reduce; collaborators receive copies.
type State struct {
	CurrentStep           domain.Step
	Fragment              string
	ShippingAddress       *domain.Address
	BillingAddress        *domain.Address
	SameAsBilling         bool
	SelectedPaymentMethod *domain.PaymentMethod
	IsProcessing          bool
	Error                 string
	ErrorType             ErrorType
	OrderData             *domain.OrderData
	ShippingCost          float64
	EstimatedDelivery     string
	RetryCount            int
	TaxCalculation        *domain.TaxResult
	IsCalculatingTax      bool
	TaxError              string
}

// NewState returns the pristine initial aggregate.
func NewState() State {
	return State{
		CurrentStep:   domain.StepShipping,
		Fragment:      domain.StepShipping.Fragment(),
		SameAsBilling: true,
	}
}

// HasError reports whether an error episode is currently open.
func (s State) HasError() bool { return s.Error != "" }

// Action is one tagged state transition. The closed set of variants below is
// the only way checkout state changes.
type Action interface{ isAction() }

// SetStep moves the wizard to the given step and mirrors its fragment.
type SetStep struct{ Step domain.Step }

// SetShippingAddress records a successfully submitted shipping address.
type SetShippingAddress struct{ Address domain.Address }

// SetBillingAddress records a distinct billing address, or clears it with nil.
type SetBillingAddress struct{ Address *domain.Address }

// SetSameAsBilling toggles whether billing reuses the shipping address.
type SetSameAsBilling struct{ Same bool }

// SetPaymentMethod records the buyer's payment method selection.
type SetPaymentMethod struct{ Method domain.PaymentMethod }

// SetProcessing flags an in-flight order submission or shipping calculation.
type SetProcessing struct{ Processing bool }

// SetError opens an error episode, or closes it when Message is empty.
type SetError struct {
	Message string
	Type    ErrorType
}

// SetOrderData stores the backend's created-order response.
type SetOrderData struct{ Data *domain.OrderData }

// SetShippingCost records the quoted shipping cost.
type SetShippingCost struct{ Cost float64 }

// SetEstimatedDelivery records the quoted delivery estimate.
type SetEstimatedDelivery struct{ Estimate string }

// SetRetryCount overwrites the retry counter.
type SetRetryCount struct{ Count int }

// SetTaxCalculation stores a tax result (remote or fallback), or clears it with nil.
type SetTaxCalculation struct{ Result *domain.TaxResult }

// SetCalculatingTax flags an in-flight tax calculation.
type SetCalculatingTax struct{ Calculating bool }

// SetTaxError records a tax failure message, or clears it when empty.
type SetTaxError struct{ Message string }

// Reset returns the aggregate to its pristine initial state.
type Reset struct{}

// RestorePartial merges a persisted snapshot onto current state. Fields absent
// from the snapshot are left untouched.
type RestorePartial struct{ Snapshot Snapshot }

func (SetStep) isAction()              {}
func (SetShippingAddress) isAction()   {}
func (SetBillingAddress) isAction()    {}
func (SetSameAsBilling) isAction()     {}
func (SetPaymentMethod) isAction()     {}
func (SetProcessing) isAction()        {}
func (SetError) isAction()             {}
func (SetOrderData) isAction()         {}
func (SetShippingCost) isAction()      {}
func (SetEstimatedDelivery) isAction() {}
func (SetRetryCount) isAction()        {}
func (SetTaxCalculation) isAction()    {}
func (SetCalculatingTax) isAction()    {}
func (SetTaxError) isAction()          {}
func (Reset) isAction()                {}
func (RestorePartial) isAction()       {}

// Snapshot is the persisted subset of checkout state. Every field is optional
// so that a partial restore never erases data the snapshot does not carry.
type Snapshot struct {
	CurrentStep           *domain.Step          `json:"currentStep,omitempty"`
	ShippingAddress       *domain.Address       `json:"shippingAddress,omitempty"`
	BillingAddress        *domain.Address       `json:"billingAddress,omitempty"`
	SameAsBilling         *bool                 `json:"sameAsBilling,omitempty"`
	SelectedPaymentMethod *domain.PaymentMethod `json:"selectedPaymentMethod,omitempty"`
	ShippingCost          *float64              `json:"shippingCost,omitempty"`
	EstimatedDelivery     *string               `json:"estimatedDelivery,omitempty"`
}

// Reduce is the pure transition function for checkout state. Invariants live
// here rather than in callers:
//   - clearing the error resets the retry counter; a new error never does;
//   - a tax calculation and a tax error are never both present;
//   - Reset restores every field to its default;
//   - RestorePartial only overwrites fields present in the snapshot.
func Reduce(state State, action Action) State {
	switch a := action.(type) {
	case SetStep:
		state.CurrentStep = a.Step
		state.Fragment = a.Step.Fragment()
	case SetShippingAddress:
		addr := a.Address
		state.ShippingAddress = &addr
	case SetBillingAddress:
		state.BillingAddress = a.Address
	case SetSameAsBilling:
		state.SameAsBilling = a.Same
	case SetPaymentMethod:
		method := a.Method
		state.SelectedPaymentMethod = &method
	case SetProcessing:
		state.IsProcessing = a.Processing
	case SetError:
		if a.Message == "" {
			state.Error = ""
			state.ErrorType = ""
			state.RetryCount = 0
		} else {
			state.Error = a.Message
			state.ErrorType = a.Type
			if state.ErrorType == "" {
				state.ErrorType = ErrorGeneral
			}
		}
	case SetOrderData:
		state.OrderData = a.Data
	case SetShippingCost:
		state.ShippingCost = a.Cost
	case SetEstimatedDelivery:
		state.EstimatedDelivery = a.Estimate
	case SetRetryCount:
		state.RetryCount = a.Count
	case SetTaxCalculation:
		state.TaxCalculation = a.Result
		if a.Result != nil {
			state.TaxError = ""
		}
	case SetCalculatingTax:
		state.IsCalculatingTax = a.Calculating
	case SetTaxError:
		state.TaxError = a.Message
		if a.Message != "" {
			state.TaxCalculation = nil
		}
	case Reset:
		state = NewState()
	case RestorePartial:
		state = mergeSnapshot(state, a.Snapshot)
	}
	return state
}

func mergeSnapshot(state State, snap Snapshot) State {
	if snap.CurrentStep != nil && snap.CurrentStep.Valid() {
		state.CurrentStep = *snap.CurrentStep
		state.Fragment = snap.CurrentStep.Fragment()
	}
	if snap.ShippingAddress != nil {
		addr := *snap.ShippingAddress
		state.ShippingAddress = &addr
	}
	if snap.BillingAddress != nil {
		addr := *snap.BillingAddress
		state.BillingAddress = &addr
	}
	if snap.SameAsBilling != nil {
		state.SameAsBilling = *snap.SameAsBilling
	}
	if snap.SelectedPaymentMethod != nil {
		method := *snap.SelectedPaymentMethod
		state.SelectedPaymentMethod = &method
	}
	if snap.ShippingCost != nil {
		state.ShippingCost = *snap.ShippingCost
	}
	if snap.EstimatedDelivery != nil {
		state.EstimatedDelivery = *snap.EstimatedDelivery
	}
	return state
}

// SnapshotOf extracts the persisted subset from the given state.
func SnapshotOf(state State) Snapshot {
	step := state.CurrentStep
	same := state.SameAsBilling
	cost := state.ShippingCost
	estimate := state.EstimatedDelivery
	return Snapshot{
		CurrentStep:           &step,
		ShippingAddress:       state.ShippingAddress,
		BillingAddress:        state.BillingAddress,
		SameAsBilling:         &same,
		SelectedPaymentMethod: state.SelectedPaymentMethod,
		ShippingCost:          &cost,
		EstimatedDelivery:     &estimate,
	}
}
