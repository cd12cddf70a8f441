// Package risk converts account equity and stop distance into order size and
// enforces notional exposure limits.
package risk

import "math"

// Limits bounds how much a single signal may commit.
type Limits struct {
	// RiskPerTrade is the fraction of equity lost if the stop is hit.
	RiskPerTrade float64
	// MaxLeverage caps order notional at equity times this factor.
	MaxLeverage float64
	// MaxExposure caps total open notional across all instruments.
	MaxExposure float64
}

// Size derives a quantity such that losing the entry-to-stop distance costs
// RiskPerTrade of equity, capped so the order notional never exceeds
// equity times MaxLeverage. Returns 0 when the inputs cannot produce a
// positive size.
func (l Limits) Size(equity, price, stop float64) float64 {
	if equity <= 0 || price <= 0 {
		return 0
	}
	dist := math.Abs(price - stop)
	if dist <= 0 {
		return 0
	}
	qty := equity * l.RiskPerTrade / dist
	if l.MaxLeverage > 0 {
		if maxQty := equity * l.MaxLeverage / price; qty > maxQty {
			qty = maxQty
		}
	}
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0
	}
	return qty
}

// Allow reports whether adding orderNotional on top of openNotional stays
// within MaxExposure. A zero MaxExposure means unlimited.
func (l Limits) Allow(openNotional, orderNotional float64) bool {
	if l.MaxExposure <= 0 {
		return true
	}
	return openNotional+orderNotional <= l.MaxExposure
}
