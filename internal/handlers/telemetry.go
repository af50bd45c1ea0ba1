package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type activityRequest struct {
	ScrollDepth    int  `json:"scroll_depth"`
	ViewportWidth  int  `json:"viewport_width"`
	ExitIntent     bool `json:"exit_intent,omitempty"`
	VisibilityLost bool `json:"visibility_lost,omitempty"`
}

// recordActivity ingests engagement signals from the client into the session's
// sampler. Reporting to the analytics backend stays on the sampler's own
// cadence; this endpoint never blocks on it.
func (h *CheckoutHandlers) recordActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	var req activityRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	sess.Sampler.RecordActivity(req.ScrollDepth, req.ViewportWidth)
	if req.ExitIntent {
		sess.Sampler.RecordExitIntent()
	}
	if req.VisibilityLost {
		sess.Sampler.RecordVisibilityLoss()
	}
	w.WriteHeader(http.StatusAccepted)
}
