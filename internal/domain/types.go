package domain

import "time"

// Step identifies one of the three sequential checkout phases.
type Step int

const (
	// StepShipping collects the shipping (and optionally billing) address.
	StepShipping Step = 1
	// StepPayment selects the payment method.
	StepPayment Step = 2
	// StepReview shows totals and submits the order.
	StepReview Step = 3
)

// Fragment returns the navigable anchor mirrored to clients for this step.
func (s Step) Fragment() string {
	switch s {
	case StepShipping:
		return "#shipping"
	case StepPayment:
		return "#payment"
	case StepReview:
		return "#review"
	default:
		return ""
	}
}

// Valid reports whether the step is one of the three wizard phases.
func (s Step) Valid() bool {
	return s >= StepShipping && s <= StepReview
}

// Address captures a shipping or billing destination as the upstream API expects it.
type Address struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line_1"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Email        string `json:"email"`
}

// PaymentMethodType distinguishes gateway-settled payments from cash on delivery.
type PaymentMethodType string

const (
	// PaymentOnline routes the buyer through an external payment gateway.
	PaymentOnline PaymentMethodType = "online"
	// PaymentCOD settles in cash on delivery, outside the gateway.
	PaymentCOD PaymentMethodType = "cod"
)

// ChargeType describes how a payment method surcharge is computed.
type ChargeType string

const (
	// ChargePercentage applies the value as a percentage of the order total.
	ChargePercentage ChargeType = "percentage"
	// ChargeFixed applies the value as a flat amount.
	ChargeFixed ChargeType = "fixed"
)

// PaymentCharges describes an optional surcharge attached to a payment method.
type PaymentCharges struct {
	Type  ChargeType `json:"type"`
	Value float64    `json:"value"`
}

// PaymentMethod is one selectable payment option offered by the backend.
type PaymentMethod struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Type           PaymentMethodType `json:"type"`
	Charges        *PaymentCharges   `json:"charges,omitempty"`
	ProcessingTime string            `json:"processing_time,omitempty"`
	Secure         bool              `json:"secure,omitempty"`
}

// CartItem is a read-only line from the cart store. The checkout core never
// mutates cart contents; it only snapshots them into tax and order payloads.
type CartItem struct {
	ProductID   int     `json:"product_id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	TaxCategory string  `json:"tax_category,omitempty"`
	HSNCode     string  `json:"hsn_code,omitempty"`
}

// Subtotal sums price*quantity across the given items.
func Subtotal(items []CartItem) float64 {
	var total float64
	for _, item := range items {
		if item.Quantity <= 0 || item.Price <= 0 {
			continue
		}
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// TaxLineItem is the per-item breakdown inside a tax calculation.
type TaxLineItem struct {
	ProductID     int     `json:"product_id"`
	Name          string  `json:"name"`
	TaxableAmount float64 `json:"taxable_amount"`
	Rate          float64 `json:"rate"`
	Tax           float64 `json:"tax"`
}

// TaxCalculation is the structured result of a cart tax computation, remote or local.
type TaxCalculation struct {
	TaxableAmount float64       `json:"taxable_amount"`
	CGST          float64       `json:"cgst"`
	SGST          float64       `json:"sgst"`
	IGST          float64       `json:"igst"`
	TotalTax      float64       `json:"total_tax"`
	IsInterState  bool          `json:"is_inter_state"`
	Items         []TaxLineItem `json:"items,omitempty"`
	// Estimated marks figures produced by the offline fallback estimator rather
	// than the authoritative remote service.
	Estimated bool `json:"estimated,omitempty"`
}

// TaxSummary aggregates the order totals alongside a tax calculation.
type TaxSummary struct {
	Subtotal     float64 `json:"subtotal"`
	ShippingCost float64 `json:"shipping_cost"`
	TaxTotal     float64 `json:"tax_total"`
	GrandTotal   float64 `json:"grand_total"`
}

// TaxResult pairs the calculation with its summary as returned by the tax service.
type TaxResult struct {
	Calculation TaxCalculation `json:"tax_calculation"`
	Summary     TaxSummary     `json:"summary"`
}

// OrderData is the backend's created-order response retained in checkout state.
type OrderData struct {
	OrderNumber string `json:"order_number"`
	PaymentURL  string `json:"payment_url,omitempty"`
}

// ShippingQuote is the result of a shipping-rate lookup for a postal code.
type ShippingQuote struct {
	ShippingCost      float64 `json:"shipping_cost"`
	EstimatedDelivery string  `json:"estimated_delivery"`
}

// BehaviorSample is one engagement snapshot reported to the analytics endpoint.
type BehaviorSample struct {
	SessionID          string    `json:"session_id"`
	DeviceType         string    `json:"device_type"`
	ScrollDepth        int       `json:"scroll_depth"`
	SessionDuration    float64   `json:"session_duration"`
	TimeOnPage         float64   `json:"time_on_page"`
	ExitIntentDetected bool      `json:"exit_intent_detected,omitempty"`
	VisibilityLost     bool      `json:"visibility_lost,omitempty"`
	RecordedAt         time.Time `json:"recorded_at"`
}
