package dex

import "math"

// SlippageModel is one of the three named execution-price adjustment
// curves. Buys inflate the execution price, sells deflate it.
type SlippageModel string

const (
	SlippageNone         SlippageModel = "none"
	SlippageConservative SlippageModel = "conservative"
	SlippageRealistic    SlippageModel = "realistic"
)

const maxSlippage = 0.15

type slippageParams struct {
	base       float64
	multiplier float64
}

var slippageTable = map[SlippageModel]slippageParams{
	SlippageNone:         {base: 0, multiplier: 0},
	SlippageConservative: {base: 0.005, multiplier: 2},
	SlippageRealistic:    {base: 0.01, multiplier: 5},
}

// Slippage computes the fractional execution-price adjustment for a trade
// of positionUSD against liquidityUSD, capped at 15%. Non-decreasing in
// position size for a fixed model and liquidity.
func Slippage(model SlippageModel, positionUSD, liquidityUSD float64) float64 {
	params, ok := slippageTable[model]
	if !ok {
		params = slippageTable[SlippageRealistic]
	}
	denom := math.Max(liquidityUSD, 1)
	slip := params.base + (positionUSD/denom)*params.multiplier
	if slip > maxSlippage {
		return maxSlippage
	}
	if slip < 0 {
		return 0
	}
	return slip
}

// ApplyBuySlippage inflates the quoted price by the slippage fraction.
func ApplyBuySlippage(quotedPrice, slip float64) float64 {
	return quotedPrice * (1 + slip)
}

// ApplySellSlippage deflates the quoted price by the slippage fraction.
func ApplySellSlippage(quotedPrice, slip float64) float64 {
	return quotedPrice * (1 - slip)
}
