package checkout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bookbharat/checkout-api/internal/upstream"
)

// ErrorType classifies a checkout failure for user messaging and retry decisions.
type ErrorType string

const (
	// ErrorPayment covers gateway, card, and payment processing failures.
	ErrorPayment ErrorType = "payment"
	// ErrorShipping covers address and delivery failures.
	ErrorShipping ErrorType = "shipping"
	// ErrorInventory covers stock availability failures.
	ErrorInventory ErrorType = "inventory"
	// ErrorNetwork covers connectivity and upstream availability failures.
	ErrorNetwork ErrorType = "network"
	// ErrorValidation covers missing or malformed input.
	ErrorValidation ErrorType = "validation"
	// ErrorGeneral is the fallback when nothing more specific matches.
	ErrorGeneral ErrorType = "general"
)

var (
	// ErrSubmissionInFlight indicates an order submission is already running.
	ErrSubmissionInFlight = errors.New("checkout: submission already in progress")
	// ErrMaxRetries indicates the retry budget for the current error episode is spent.
	ErrMaxRetries = errors.New("checkout: maximum retry attempts reached")
	// ErrSessionNotFound indicates the checkout session id is unknown or expired.
	ErrSessionNotFound = errors.New("checkout: session not found")
)

// statusOverrides wins over keyword matching when the failure carries an HTTP status.
var statusOverrides = map[int]ErrorType{
	400: ErrorValidation,
	402: ErrorPayment,
	409: ErrorInventory,
	502: ErrorNetwork,
	503: ErrorNetwork,
	504: ErrorNetwork,
}

// keywordFamilies are checked in order against the lowercased message text.
var keywordFamilies = []struct {
	kind     ErrorType
	keywords []string
}{
	{ErrorPayment, []string{"payment", "card", "gateway"}},
	{ErrorShipping, []string{"shipping", "address", "delivery"}},
	{ErrorInventory, []string{"stock", "inventory", "unavailable"}},
	{ErrorNetwork, []string{"network", "connection", "timeout"}},
	{ErrorValidation, []string{"validation", "invalid", "required"}},
}

// Classify maps a failure to the closed error taxonomy. An HTTP status from
// the upstream call takes precedence over message-text matching.
func Classify(err error) ErrorType {
	if err == nil {
		return ""
	}
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		if kind, ok := statusOverrides[statusErr.StatusCode]; ok {
			return kind
		}
	}
	message := strings.ToLower(err.Error())
	for _, family := range keywordFamilies {
		for _, keyword := range family.keywords {
			if strings.Contains(message, keyword) {
				return family.kind
			}
		}
	}
	return ErrorGeneral
}

// SuggestedAction returns the fixed remedial hint surfaced alongside errors of this type.
func (t ErrorType) SuggestedAction() string {
	switch t {
	case ErrorPayment:
		return "try a different payment method or check your card details"
	case ErrorShipping:
		return "verify your shipping address and try again"
	case ErrorInventory:
		return "some items may be out of stock; review your cart"
	case ErrorNetwork:
		return "check your connection and try again"
	case ErrorValidation:
		return "check all required fields and try again"
	default:
		return "try again or contact support"
	}
}

// SupportEmail is a pre-filled support message composed from a classified failure.
type SupportEmail struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ComposeSupportEmail builds the support message for the given error episode.
// The order reference is included when an order was created before the failure.
func ComposeSupportEmail(message string, kind ErrorType, orderRef string, at time.Time) SupportEmail {
	subject := "Checkout issue"
	if orderRef != "" {
		subject = fmt.Sprintf("Checkout issue (order %s)", orderRef)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", message)
	fmt.Fprintf(&b, "Category: %s\n", kind)
	if orderRef != "" {
		fmt.Fprintf(&b, "Order reference: %s\n", orderRef)
	}
	fmt.Fprintf(&b, "Occurred at: %s\n", at.UTC().Format(time.RFC3339))
	return SupportEmail{Subject: subject, Body: b.String()}
}
