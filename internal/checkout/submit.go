package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/bookbharat/checkout-api/internal/domain"
	"github.com/bookbharat/checkout-api/internal/upstream"
)

// SubmitResult is the navigation outcome of a successful order submission.
type SubmitResult struct {
	OrderNumber string `json:"order_number"`
	RedirectURL string `json:"redirect_url"`
	COD         bool   `json:"cod"`
}

// SubmitOrder runs the order submission pipeline: precondition checks, payload
// assembly, order creation, and the payment-method branch. Failures are
// classified into the error taxonomy and recorded in state; the processing
// flag is always cleared.
func (m *Machine) SubmitOrder(ctx context.Context) (SubmitResult, error) {
	return m.submit(ctx, 0)
}

// RetryOrder re-invokes the submission pipeline for the current error episode.
// It refuses with a terminal error once three attempts have been spent.
func (m *Machine) RetryOrder(ctx context.Context) (SubmitResult, error) {
	m.mu.Lock()
	retries := m.state.RetryCount
	m.mu.Unlock()
	if retries >= maxSubmissionAttempts {
		m.dispatch(SetError{
			Message: "Maximum retry attempts reached; please contact support",
			Type:    ErrorGeneral,
		})
		return SubmitResult{}, ErrMaxRetries
	}
	return m.submit(ctx, retries+1)
}

func (m *Machine) submit(ctx context.Context, attempt int) (SubmitResult, error) {
	m.mu.Lock()
	if m.state.IsProcessing {
		m.mu.Unlock()
		return SubmitResult{}, ErrSubmissionInFlight
	}
	if m.state.ShippingAddress == nil || m.state.SelectedPaymentMethod == nil {
		m.mu.Unlock()
		err := errors.New("shipping address and payment method are required before placing an order")
		m.dispatch(SetError{Message: err.Error(), Type: ErrorValidation})
		return SubmitResult{}, err
	}

	shipping := *m.state.ShippingAddress
	method := *m.state.SelectedPaymentMethod
	var billing *domain.Address
	if !m.state.SameAsBilling && m.state.BillingAddress != nil {
		addr := *m.state.BillingAddress
		billing = &addr
	}
	shippingCost := m.state.ShippingCost
	items := make([]domain.CartItem, len(m.cartItems))
	copy(items, m.cartItems)

	// Clear the previous error episode, pin the retry counter for this attempt,
	// and raise the processing gate in one atomic step.
	m.state = Reduce(m.state, SetError{})
	if attempt > 0 {
		m.state = Reduce(m.state, SetRetryCount{Count: attempt})
	}
	m.state = Reduce(m.state, SetProcessing{Processing: true})
	st := m.state
	count := len(m.cartItems)
	m.persistSeq++
	seq := m.persistSeq
	m.mu.Unlock()
	m.afterDispatch(st, count, seq)

	subtotal := domain.Subtotal(items)
	payload := upstream.OrderPayload{
		ShippingAddress: shipping,
		BillingAddress:  billing,
		PaymentMethod:   method.ID,
		Items:           items,
		Subtotal:        subtotal,
		ShippingCost:    shippingCost,
		TotalAmount:     subtotal + shippingCost,
	}

	order, err := m.backend.CreateOrder(ctx, payload)
	if err != nil {
		return SubmitResult{}, m.failSubmission(err)
	}
	m.dispatch(SetOrderData{Data: &order})

	switch method.Type {
	case domain.PaymentCOD:
		if err := m.backend.ClearCart(ctx, m.sessionID); err != nil {
			// The order exists; a stale cart is recoverable and must not fail
			// the completed purchase.
			m.logger.Warn("cart clear failed after cod order", zap.Error(err), zap.String("order", order.OrderNumber))
		}
		m.dispatch(SetProcessing{})
		// Clear after the final dispatch so its save does not resurrect the
		// snapshot of a completed purchase.
		if m.bridge != nil {
			m.bridge.Clear(ctx)
		}
		m.logger.Info("cod order placed", zap.String("order", order.OrderNumber))
		return SubmitResult{
			OrderNumber: order.OrderNumber,
			RedirectURL: "/payment/success?order_id=" + url.QueryEscape(order.OrderNumber),
			COD:         true,
		}, nil
	case domain.PaymentOnline:
		if order.PaymentURL == "" {
			return SubmitResult{}, m.failSubmission(errors.New("Payment URL not received"))
		}
		m.dispatch(SetProcessing{})
		m.logger.Info("online order handed off to gateway", zap.String("order", order.OrderNumber))
		return SubmitResult{
			OrderNumber: order.OrderNumber,
			RedirectURL: order.PaymentURL,
		}, nil
	default:
		return SubmitResult{}, m.failSubmission(fmt.Errorf("unsupported payment method type %q", method.Type))
	}
}

// failSubmission classifies the failure, records it with its suggested action,
// and clears the processing gate.
func (m *Machine) failSubmission(err error) error {
	kind := Classify(err)
	m.logger.Warn("order submission failed",
		zap.Error(err),
		zap.String("error_type", string(kind)),
	)
	m.dispatch(
		SetError{Message: err.Error(), Type: kind},
		SetProcessing{},
	)
	return err
}

// afterDispatch mirrors the persistence and tax-trigger side of dispatch for
// call sites that reduce under their own lock.
func (m *Machine) afterDispatch(st State, cartCount int, seq uint64) {
	if m.bridge != nil {
		m.bridge.Save(context.Background(), SnapshotOf(st), seq)
	}
	m.coordinator.Observe(taxInputsFor(st, cartCount))
}
