// Package checkout implements the checkout orchestration core: the state
// reducer, step sequencing, tax coordination, order submission, and the
// persistence bridge that carries wizard progress across reloads.
package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bookbharat/checkout-api/internal/domain"
	"github.com/bookbharat/checkout-api/internal/statestore"
	"github.com/bookbharat/checkout-api/internal/upstream"
)

const (
	defaultTaxDebounce    = 500 * time.Millisecond
	defaultRemoteTimeout  = 15 * time.Second
	maxSubmissionAttempts = 3
)

// Backend covers the commerce API operations the machine calls directly.
type Backend interface {
	CalculateShipping(ctx context.Context, postalCode string) (domain.ShippingQuote, error)
	CreateOrder(ctx context.Context, payload upstream.OrderPayload) (domain.OrderData, error)
	ClearCart(ctx context.Context, sessionRef string) error
}

// CartProvider reads the cart owned by the external cart store. The machine
// never writes cart contents except through Backend.ClearCart.
type CartProvider interface {
	GetCart(ctx context.Context, sessionRef string) ([]domain.CartItem, error)
}

// TaxCalculator computes cart tax. The remote service and the offline fallback
// estimator share this shape.
type TaxCalculator interface {
	CalculateCartTax(ctx context.Context, req upstream.TaxRequest) (upstream.TaxResponse, error)
}

// MachineDeps wires the collaborators required by a checkout machine.
type MachineDeps struct {
	SessionID   string
	Backend     Backend
	Cart        CartProvider
	RemoteTax   TaxCalculator
	FallbackTax TaxCalculator
	Store       statestore.Store
	Logger      *zap.Logger
	Clock       func() time.Time
	TaxDebounce time.Duration
}

// Machine owns one checkout session's state aggregate. All mutation flows
// through dispatch and the Reduce transition function; views receive copies.
type Machine struct {
	mu         sync.Mutex
	state      State
	cartItems  []domain.CartItem
	persistSeq uint64

	sessionID   string
	backend     Backend
	cart        CartProvider
	bridge      *Bridge
	logger      *zap.Logger
	now         func() time.Time
	coordinator *taxCoordinator
}

// NewMachine constructs a machine for one checkout session, restoring any
// persisted wizard state for the session before returning.
func NewMachine(ctx context.Context, deps MachineDeps) (*Machine, error) {
	if strings.TrimSpace(deps.SessionID) == "" {
		return nil, errors.New("checkout machine: session id is required")
	}
	if deps.Backend == nil {
		return nil, errors.New("checkout machine: backend is required")
	}
	if deps.Cart == nil {
		return nil, errors.New("checkout machine: cart provider is required")
	}
	if deps.RemoteTax == nil {
		return nil, errors.New("checkout machine: remote tax calculator is required")
	}
	if deps.FallbackTax == nil {
		return nil, errors.New("checkout machine: fallback tax calculator is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	debounce := deps.TaxDebounce
	if debounce <= 0 {
		debounce = defaultTaxDebounce
	}

	m := &Machine{
		state:     NewState(),
		sessionID: deps.SessionID,
		backend:   deps.Backend,
		cart:      deps.Cart,
		logger:    logger.With(zap.String("checkout_session", deps.SessionID)),
		now:       clock,
	}
	if deps.Store != nil {
		m.bridge = NewBridge(deps.Store, deps.SessionID, m.logger)
	}
	m.coordinator = newTaxCoordinator(m, deps.RemoteTax, deps.FallbackTax, debounce)

	if m.bridge != nil {
		if snap, ok := m.bridge.Load(ctx); ok {
			m.mu.Lock()
			m.state = Reduce(m.state, RestorePartial{Snapshot: snap})
			m.mu.Unlock()
		}
	}
	if err := m.RefreshCart(ctx); err != nil {
		// A missing cart is not fatal at session start; tax and submission
		// both re-check cart contents when they run.
		m.logger.Warn("cart read failed at session start", zap.Error(err))
	}
	return m, nil
}

// SessionID returns the identifier this machine is scoped to.
func (m *Machine) SessionID() string { return m.sessionID }

// State returns a copy of the current aggregate.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CartItems returns the last cart snapshot read from the cart store.
func (m *Machine) CartItems() []domain.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]domain.CartItem, len(m.cartItems))
	copy(items, m.cartItems)
	return items
}

// RefreshCart re-reads the cart from its store. Cart content changes are one
// of the tax recomputation triggers.
func (m *Machine) RefreshCart(ctx context.Context) error {
	items, err := m.cart.GetCart(ctx, m.sessionID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cartItems = items
	st := m.state
	count := len(items)
	m.mu.Unlock()
	m.coordinator.Observe(taxInputsFor(st, count))
	return nil
}

// MoveToStep jumps the wizard to the given step. Entry gating is the caller's
// responsibility; the sequencer only tracks position and its fragment mirror.
func (m *Machine) MoveToStep(step domain.Step) State {
	if !step.Valid() {
		return m.State()
	}
	return m.dispatch(SetStep{Step: step})
}

// NextStep advances by one step; no-op at the review step.
func (m *Machine) NextStep() State {
	m.mu.Lock()
	current := m.state.CurrentStep
	m.mu.Unlock()
	if current >= domain.StepReview {
		return m.State()
	}
	return m.dispatch(SetStep{Step: current + 1})
}

// PreviousStep retreats by one step; no-op at the shipping step.
func (m *Machine) PreviousStep() State {
	m.mu.Lock()
	current := m.state.CurrentStep
	m.mu.Unlock()
	if current <= domain.StepShipping {
		return m.State()
	}
	return m.dispatch(SetStep{Step: current - 1})
}

// SubmitShipping validates and records the shipping (and optional billing)
// address, quotes shipping for the destination, and advances to the payment
// step on success.
func (m *Machine) SubmitShipping(ctx context.Context, address domain.Address, billing *domain.Address, sameAsBilling bool) (State, error) {
	if err := validateAddress(address); err != nil {
		st := m.dispatch(SetError{Message: err.Error(), Type: ErrorValidation})
		return st, err
	}
	if !sameAsBilling && billing == nil {
		err := errors.New("billing address is required when it differs from shipping")
		st := m.dispatch(SetError{Message: err.Error(), Type: ErrorValidation})
		return st, err
	}

	m.dispatch(SetError{}, SetProcessing{Processing: true})
	quote, err := m.backend.CalculateShipping(ctx, address.PostalCode)
	if err != nil {
		kind := Classify(err)
		m.logger.Warn("shipping calculation failed", zap.Error(err))
		st := m.dispatch(
			SetProcessing{},
			SetError{Message: "Unable to calculate shipping: " + err.Error(), Type: kind},
		)
		return st, err
	}

	if sameAsBilling {
		billing = nil
	}
	st := m.dispatch(
		SetShippingAddress{Address: address},
		SetBillingAddress{Address: billing},
		SetSameAsBilling{Same: sameAsBilling},
		SetShippingCost{Cost: quote.ShippingCost},
		SetEstimatedDelivery{Estimate: quote.EstimatedDelivery},
		SetProcessing{},
		SetStep{Step: domain.StepPayment},
	)
	return st, nil
}

// SelectPaymentMethod records the chosen payment method and advances to review.
func (m *Machine) SelectPaymentMethod(method domain.PaymentMethod) (State, error) {
	if strings.TrimSpace(method.ID) == "" {
		err := errors.New("payment method id is required")
		st := m.dispatch(SetError{Message: err.Error(), Type: ErrorValidation})
		return st, err
	}
	if method.Type != domain.PaymentOnline && method.Type != domain.PaymentCOD {
		err := errors.New("invalid payment method type")
		st := m.dispatch(SetError{Message: err.Error(), Type: ErrorValidation})
		return st, err
	}
	st := m.dispatch(
		SetError{},
		SetPaymentMethod{Method: method},
		SetStep{Step: domain.StepReview},
	)
	return st, nil
}

// DismissError closes the current error episode, resetting the retry budget.
func (m *Machine) DismissError() State {
	return m.dispatch(SetError{})
}

// SupportEmailForCurrentError composes the pre-filled support message for the
// open error episode, if any.
func (m *Machine) SupportEmailForCurrentError() (SupportEmail, bool) {
	st := m.State()
	if !st.HasError() {
		return SupportEmail{}, false
	}
	orderRef := ""
	if st.OrderData != nil {
		orderRef = st.OrderData.OrderNumber
	}
	return ComposeSupportEmail(st.Error, st.ErrorType, orderRef, m.now()), true
}

// Stop halts the tax coordinator without touching persisted state. Used for
// machines that must go quiet while their session survives elsewhere: the
// loser of a concurrent resume, or every live session at process shutdown.
func (m *Machine) Stop() {
	m.coordinator.Close()
}

// Teardown stops the tax coordinator and deletes the persisted wizard state.
// Called when the session leaves the checkout flow for good.
func (m *Machine) Teardown(ctx context.Context) {
	m.coordinator.Close()
	if m.bridge != nil {
		m.bridge.Clear(ctx)
	}
}

// dispatch applies actions through the reducer, persists the navigable subset,
// and feeds the tax coordinator the resulting trigger inputs. The persist
// sequence is taken under the state lock so snapshots land in reduce order.
func (m *Machine) dispatch(actions ...Action) State {
	m.mu.Lock()
	for _, action := range actions {
		m.state = Reduce(m.state, action)
	}
	st := m.state
	count := len(m.cartItems)
	m.persistSeq++
	seq := m.persistSeq
	m.mu.Unlock()

	if m.bridge != nil {
		m.bridge.Save(context.Background(), SnapshotOf(st), seq)
	}
	m.coordinator.Observe(taxInputsFor(st, count))
	return st
}

func validateAddress(address domain.Address) error {
	missing := make([]string, 0, 4)
	required := []struct {
		name  string
		value string
	}{
		{"firstName", address.FirstName},
		{"lastName", address.LastName},
		{"phone", address.Phone},
		{"address_line_1", address.AddressLine1},
		{"city", address.City},
		{"state", address.State},
		{"postal_code", address.PostalCode},
		{"email", address.Email},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return errors.New("required address fields missing: " + strings.Join(missing, ", "))
	}
	return nil
}
