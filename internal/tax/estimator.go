// Package tax provides an offline cart tax estimator used when the remote tax
// service is unavailable. Its figures are non-authoritative: final tax is
// always re-verified server-side at order placement.
package tax

import (
	"context"
	"errors"
	"math"

	"github.com/bookbharat/checkout-api/internal/domain"
	"github.com/bookbharat/checkout-api/internal/upstream"
)

// GST rates per catalogue tax category, in percent. Printed books are exempt.
var categoryRates = map[string]float64{
	"books":      0,
	"ebooks":     5,
	"stationery": 12,
}

const (
	defaultRate  = 18
	shippingRate = 18
)

// Estimator computes a local GST estimate with the same request and response
// shape as the remote tax calculation call.
type Estimator struct{}

// NewEstimator returns an offline estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// CalculateCartTax implements the tax calculation contract offline.
func (e *Estimator) CalculateCartTax(ctx context.Context, req upstream.TaxRequest) (upstream.TaxResponse, error) {
	if err := ctx.Err(); err != nil {
		return upstream.TaxResponse{}, err
	}
	if len(req.Items) == 0 {
		return upstream.TaxResponse{}, errors.New("tax estimator: no items to calculate")
	}
	if req.State == "" || req.Pincode == "" {
		return upstream.TaxResponse{}, errors.New("tax estimator: destination state and pincode are required")
	}

	var subtotal, totalTax float64
	lines := make([]domain.TaxLineItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.Price <= 0 {
			continue
		}
		taxable := item.Price * float64(item.Quantity)
		rate := rateFor(item.TaxCategory)
		lineTax := round2(taxable * rate / 100)
		subtotal += taxable
		totalTax += lineTax
		lines = append(lines, domain.TaxLineItem{
			ProductID:     item.ProductID,
			Name:          item.Name,
			TaxableAmount: taxable,
			Rate:          rate,
			Tax:           lineTax,
		})
	}
	if len(lines) == 0 {
		return upstream.TaxResponse{}, errors.New("tax estimator: no taxable items in cart")
	}

	if req.ShippingCost > 0 {
		totalTax += round2(req.ShippingCost * shippingRate / 100)
	}
	totalTax = round2(totalTax)

	calc := domain.TaxCalculation{
		TaxableAmount: round2(subtotal + req.ShippingCost),
		TotalTax:      totalTax,
		IsInterState:  req.IsInterState,
		Items:         lines,
	}
	if req.IsInterState {
		calc.IGST = totalTax
	} else {
		calc.CGST = round2(totalTax / 2)
		calc.SGST = round2(totalTax - calc.CGST)
	}

	return upstream.TaxResponse{
		Success: true,
		Data: &domain.TaxResult{
			Calculation: calc,
			Summary: domain.TaxSummary{
				Subtotal:     round2(subtotal),
				ShippingCost: req.ShippingCost,
				TaxTotal:     totalTax,
				GrandTotal:   round2(subtotal + req.ShippingCost + totalTax),
			},
		},
	}, nil
}

func rateFor(category string) float64 {
	if rate, ok := categoryRates[category]; ok {
		return rate
	}
	return defaultRate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
