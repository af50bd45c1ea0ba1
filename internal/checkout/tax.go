package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bookbharat/checkout-api/internal/domain"
	"github.com/bookbharat/checkout-api/internal/upstream"
)

// taxInputs are the trigger fields the coordinator watches. Any change while
// ready schedules a debounced recomputation.
type taxInputs struct {
	ready        bool
	state        string
	pincode      string
	itemCount    int
	shippingCost float64
}

func taxInputsFor(st State, itemCount int) taxInputs {
	in := taxInputs{
		itemCount:    itemCount,
		shippingCost: st.ShippingCost,
	}
	if st.ShippingAddress != nil {
		in.state = st.ShippingAddress.State
		in.pincode = st.ShippingAddress.PostalCode
	}
	in.ready = st.ShippingAddress != nil && itemCount > 0 && st.CurrentStep >= domain.StepShipping
	return in
}

// taxCoordinator keeps the tax calculation consistent with the latest address,
// cart contents, and shipping cost. Bursts of edits coalesce into one remote
// call via the debounce timer; a generation counter discards results from
// calculations superseded while in flight.
type taxCoordinator struct {
	machine  *Machine
	remote   TaxCalculator
	fallback TaxCalculator
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	last   taxInputs
	seen   bool
	seq    uint64
	closed bool
	wg     sync.WaitGroup
}

func newTaxCoordinator(machine *Machine, remote, fallback TaxCalculator, debounce time.Duration) *taxCoordinator {
	return &taxCoordinator{
		machine:  machine,
		remote:   remote,
		fallback: fallback,
		debounce: debounce,
	}
}

// Observe feeds the coordinator the current trigger inputs. Unchanged inputs
// are ignored; a change while ready restarts the debounce window and marks any
// in-flight calculation stale.
func (c *taxCoordinator) Observe(in taxInputs) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.seen && in == c.last {
		return
	}
	c.last = in
	c.seen = true
	if !in.ready {
		c.cancelPendingLocked()
		return
	}
	c.seq++
	c.scheduleLocked()
}

// Close cancels any pending timer and waits for an in-flight run to finish.
func (c *taxCoordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelPendingLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *taxCoordinator) scheduleLocked() {
	c.cancelPendingLocked()
	c.wg.Add(1)
	c.timer = time.AfterFunc(c.debounce, func() {
		defer c.wg.Done()
		c.run()
	})
}

func (c *taxCoordinator) cancelPendingLocked() {
	if c.timer != nil && c.timer.Stop() {
		c.wg.Done()
	}
	c.timer = nil
}

func (c *taxCoordinator) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.seq != gen
}

func (c *taxCoordinator) run() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	gen := c.seq
	c.mu.Unlock()

	req, err := c.machine.buildTaxRequest()
	if err != nil {
		c.machine.dispatch(SetCalculatingTax{}, SetTaxError{Message: err.Error()})
		return
	}

	c.machine.dispatch(SetTaxError{}, SetCalculatingTax{Calculating: true})

	ctx, cancel := context.WithTimeout(context.Background(), defaultRemoteTimeout)
	defer cancel()

	resp, remoteErr := c.remote.CalculateCartTax(ctx, req)
	if remoteErr == nil {
		if c.stale(gen) {
			return
		}
		c.machine.dispatch(SetTaxCalculation{Result: resp.Data}, SetCalculatingTax{})
		return
	}

	c.machine.logger.Warn("remote tax calculation failed; falling back to local estimate", zap.Error(remoteErr))
	fallbackResp, fallbackErr := c.fallback.CalculateCartTax(ctx, req)
	if fallbackErr == nil && fallbackResp.Data != nil {
		if c.stale(gen) {
			return
		}
		estimate := *fallbackResp.Data
		estimate.Calculation.Estimated = true
		c.machine.dispatch(SetTaxCalculation{Result: &estimate}, SetCalculatingTax{})
		return
	}
	if fallbackErr != nil {
		c.machine.logger.Error("fallback tax estimate failed", zap.Error(fallbackErr))
	}
	if c.stale(gen) {
		return
	}
	c.machine.dispatch(
		SetTaxCalculation{},
		SetCalculatingTax{},
		SetTaxError{Message: "Tax calculation is currently unavailable; totals will be confirmed at order placement"},
	)
}

// buildTaxRequest snapshots state and cart into a tax request, validating it
// locally before any remote call is made.
func (m *Machine) buildTaxRequest() (upstream.TaxRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.ShippingAddress == nil {
		return upstream.TaxRequest{}, errors.New("shipping address is required for tax calculation")
	}
	if len(m.cartItems) == 0 {
		return upstream.TaxRequest{}, errors.New("cart is empty; nothing to calculate tax for")
	}
	addr := *m.state.ShippingAddress
	if addr.State == "" || addr.PostalCode == "" {
		return upstream.TaxRequest{}, errors.New("destination state and postal code are required for tax calculation")
	}
	items := make([]domain.CartItem, len(m.cartItems))
	copy(items, m.cartItems)
	return upstream.TaxRequest{
		Items:        items,
		ShippingCost: m.state.ShippingCost,
		State:        addr.State,
		// TODO: derive by comparing the destination state with the seller's
		// registered business state; inter-state shipments are currently
		// misclassified as intra-state.
		IsInterState: false,
		Pincode:      addr.PostalCode,
	}, nil
}
