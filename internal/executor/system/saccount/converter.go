package saccount

import (
	"math/big"
)

const (
	// MaxMarkupBasisPoints caps the sponsor margin at 50%.
	MaxMarkupBasisPoints = 5000

	basisPointsDenominator = 10000
)

var (
	// rateScale is the exchange-rate fixed-point scale (10^18).
	rateScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// decimalRescale bridges the 18-decimal native-cost unit to the
	// 6-decimal settlement token (10^12).
	decimalRescale = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)
)

// ConvertCost maps an 18-decimal native cost to 6-decimal settlement-token
// units at the given exchange rate (settlement units per native unit,
// scaled by 10^18).
func ConvertCost(nativeCost, exchangeRate *big.Int) *big.Int {
	return ConvertCostWithMarkup(nativeCost, exchangeRate, 0)
}

// ConvertCostWithMarkup additionally applies a sponsor margin in basis
// points before rescaling. Every division truncates toward zero, so
// sub-unit remainders are always absorbed by the charge, never added to it.
func ConvertCostWithMarkup(nativeCost, exchangeRate *big.Int, markupBasisPoints uint64) *big.Int {
	raw := new(big.Int).Div(new(big.Int).Mul(nativeCost, exchangeRate), rateScale)
	withMarkup := new(big.Int).Div(
		new(big.Int).Mul(raw, big.NewInt(int64(basisPointsDenominator+markupBasisPoints))),
		big.NewInt(basisPointsDenominator),
	)
	return new(big.Int).Div(withMarkup, decimalRescale)
}
