package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bookbharat/checkout-api/internal/checkout"
	"github.com/bookbharat/checkout-api/internal/domain"
	"github.com/bookbharat/checkout-api/internal/platform/httpx"
	"github.com/bookbharat/checkout-api/internal/platform/observability"
	"github.com/bookbharat/checkout-api/internal/session"
)

const maxRequestBody = 16 * 1024

var errBodyTooLarge = errors.New("request body too large")

// CheckoutHandlers exposes the checkout orchestration operations over HTTP.
type CheckoutHandlers struct {
	sessions *session.Manager
}

// NewCheckoutHandlers constructs handlers backed by the given session registry.
func NewCheckoutHandlers(sessions *session.Manager) *CheckoutHandlers {
	return &CheckoutHandlers{sessions: sessions}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout/sessions", h.createSession)
	r.Route("/checkout/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.getState)
		r.Delete("/", h.destroySession)
		r.Post("/step", h.moveToStep)
		r.Post("/step/next", h.nextStep)
		r.Post("/step/previous", h.previousStep)
		r.Post("/shipping", h.submitShipping)
		r.Post("/payment-method", h.selectPaymentMethod)
		r.Post("/order", h.submitOrder)
		r.Post("/order/retry", h.retryOrder)
		r.Post("/error/dismiss", h.dismissError)
		r.Get("/support-email", h.supportEmail)
		r.Post("/cart/refresh", h.refreshCart)
		r.Post("/activity", h.recordActivity)
	})
}

type stateResponse struct {
	SessionID             string                `json:"sessionId"`
	CurrentStep           int                   `json:"currentStep"`
	Fragment              string                `json:"fragment"`
	ShippingAddress       *domain.Address       `json:"shippingAddress,omitempty"`
	BillingAddress        *domain.Address       `json:"billingAddress,omitempty"`
	SameAsBilling         bool                  `json:"sameAsBilling"`
	SelectedPaymentMethod *domain.PaymentMethod `json:"selectedPaymentMethod,omitempty"`
	IsProcessing          bool                  `json:"isProcessing"`
	Error                 string                `json:"error,omitempty"`
	ErrorType             string                `json:"errorType,omitempty"`
	SuggestedAction       string                `json:"suggestedAction,omitempty"`
	OrderData             *domain.OrderData     `json:"orderData,omitempty"`
	ShippingCost          float64               `json:"shippingCost"`
	EstimatedDelivery     string                `json:"estimatedDelivery,omitempty"`
	RetryCount            int                   `json:"retryCount"`
	TaxCalculation        *domain.TaxResult     `json:"taxCalculation,omitempty"`
	IsCalculatingTax      bool                  `json:"isCalculatingTax"`
	TaxError              string                `json:"taxError,omitempty"`
	CartItems             []domain.CartItem     `json:"cartItems"`
}

func stateResponseFor(sess *session.Session) stateResponse {
	st := sess.Machine.State()
	resp := stateResponse{
		SessionID:             sess.ID,
		CurrentStep:           int(st.CurrentStep),
		Fragment:              st.Fragment,
		ShippingAddress:       st.ShippingAddress,
		BillingAddress:        st.BillingAddress,
		SameAsBilling:         st.SameAsBilling,
		SelectedPaymentMethod: st.SelectedPaymentMethod,
		IsProcessing:          st.IsProcessing,
		Error:                 st.Error,
		ErrorType:             string(st.ErrorType),
		OrderData:             st.OrderData,
		ShippingCost:          st.ShippingCost,
		EstimatedDelivery:     st.EstimatedDelivery,
		RetryCount:            st.RetryCount,
		TaxCalculation:        st.TaxCalculation,
		IsCalculatingTax:      st.IsCalculatingTax,
		TaxError:              st.TaxError,
		CartItems:             sess.Machine.CartItems(),
	}
	if st.HasError() {
		resp.SuggestedAction = st.ErrorType.SuggestedAction()
	}
	return resp
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Create(ctx)
	if err != nil {
		observability.FromContext(ctx).Error("checkout session create failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("session_create_failed", "failed to start checkout session", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusCreated, stateResponseFor(sess))
}

func (h *CheckoutHandlers) getState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Resume(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stateResponseFor(sess))
}

func (h *CheckoutHandlers) destroySession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.sessions.Destroy(ctx, chi.URLParam(r, "sessionID")); err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveToStepRequest struct {
	Step int `json:"step"`
}

func (h *CheckoutHandlers) moveToStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	var req moveToStepRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	step := domain.Step(req.Step)
	if !step.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "step must be 1, 2, or 3", http.StatusBadRequest))
		return
	}
	sess.Machine.MoveToStep(step)
	writeJSONResponse(w, http.StatusOK, stateResponseFor(sess))
}

func (h *CheckoutHandlers) nextStep(w http.ResponseWriter, r *http.Request) {
	h.stepOp(w, r, func(m *checkout.Machine) { m.NextStep() })
}

func (h *CheckoutHandlers) previousStep(w http.ResponseWriter, r *http.Request) {
	h.stepOp(w, r, func(m *checkout.Machine) { m.PreviousStep() })
}

func (h *CheckoutHandlers) stepOp(w http.ResponseWriter, r *http.Request, op func(*checkout.Machine)) {
	ctx := r.Context()
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	op(sess.Machine)
	writeJSONResponse(w, http.StatusOK, stateResponseFor(sess))
}

type shippingRequest struct {
	Address        domain.Address  `json:"address"`
	BillingAddress *domain.Address `json:"billingAddress,omitempty"`
	SameAsBilling  *bool           `json:"sameAsBilling,omitempty"`
}

func (h *CheckoutHandlers) submitShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	var req shippingRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	sameAsBilling := true
	if req.SameAsBilling != nil {
		sameAsBilling = *req.SameAsBilling
	}
	if _, err := sess.Machine.SubmitShipping(ctx, req.Address, req.BillingAddress, sameAsBilling); err != nil {
		h.writeStateError(ctx, w, sess)
		return
	}
	writeJSONResponse(w, http.StatusOK, stateResponseFor(sess))
}

type paymentMethodRequest struct {
	Method domain.PaymentMethod `json:"method"`
}

func (h *CheckoutHandlers) selectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	var req paymentMethodRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if _, err := sess.Machine.SelectPaymentMethod(req.Method); err != nil {
		h.writeStateError(ctx, w, sess)
		return
	}
	writeJSONResponse(w, http.StatusOK, stateResponseFor(sess))
}

type orderResponse struct {
	Result checkout.SubmitResult `json:"result"`
	State  stateResponse         `json:"state"`
}

func (h *CheckoutHandlers) submitOrder(w http.ResponseWriter, r *http.Request) {
	h.runSubmission(w, r, func(ctx context.Context, m *checkout.Machine) (checkout.SubmitResult, error) {
		return m.SubmitOrder(ctx)
	})
}

func (h *CheckoutHandlers) retryOrder(w http.ResponseWriter, r *http.Request) {
	h.runSubmission(w, r, func(ctx context.Context, m *checkout.Machine) (checkout.SubmitResult, error) {
		return m.RetryOrder(ctx)
	})
}

func (h *CheckoutHandlers) runSubmission(w http.ResponseWriter, r *http.Request, op func(context.Context, *checkout.Machine) (checkout.SubmitResult, error)) {
	ctx := r.Context()
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	result, err := op(ctx, sess.Machine)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{
		Result: result,
		State:  stateResponseFor(sess),
	})
}

func (h *CheckoutHandlers) dismissError(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	sess.Machine.DismissError()
	writeJSONResponse(w, http.StatusOK, stateResponseFor(sess))
}

func (h *CheckoutHandlers) supportEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	email, ok := sess.Machine.SupportEmailForCurrentError()
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("no_error", "no error episode is open", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, email)
}

func (h *CheckoutHandlers) refreshCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	if err := sess.Machine.RefreshCart(ctx); err != nil {
		observability.FromContext(ctx).Warn("cart refresh failed", zap.Error(err), zap.String("checkout_session", sess.ID))
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "failed to refresh cart", http.StatusBadGateway))
		return
	}
	writeJSONResponse(w, http.StatusOK, stateResponseFor(sess))
}

// writeStateError reports an operation failure already recorded in checkout
// state, pairing the classified type with its suggested action.
func (h *CheckoutHandlers) writeStateError(ctx context.Context, w http.ResponseWriter, sess *session.Session) {
	st := sess.Machine.State()
	status := statusForErrorType(st.ErrorType)
	httpx.WriteError(ctx, w, httpx.NewError(string(st.ErrorType), st.Error, status).WithDetails(map[string]any{
		"suggested_action": st.ErrorType.SuggestedAction(),
		"retry_count":      st.RetryCount,
	}))
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "checkout session not found", http.StatusNotFound))
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("submission_in_flight", "an order submission is already in progress", http.StatusConflict))
	case errors.Is(err, checkout.ErrMaxRetries):
		httpx.WriteError(ctx, w, httpx.NewError("max_retries", "maximum retry attempts reached", http.StatusConflict))
	default:
		kind := checkout.Classify(err)
		httpx.WriteError(ctx, w, httpx.NewError(string(kind), err.Error(), statusForErrorType(kind)).WithDetails(map[string]any{
			"suggested_action": kind.SuggestedAction(),
		}))
	}
}

func statusForErrorType(kind checkout.ErrorType) int {
	switch kind {
	case checkout.ErrorValidation:
		return http.StatusBadRequest
	case checkout.ErrorPayment:
		return http.StatusPaymentRequired
	case checkout.ErrorInventory:
		return http.StatusConflict
	case checkout.ErrorShipping:
		return http.StatusUnprocessableEntity
	case checkout.ErrorNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSONBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return err
	}
	if len(body) > maxRequestBody {
		return errBodyTooLarge
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
