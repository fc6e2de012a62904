package dex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// For a fixed model and liquidity, slippage never decreases as position
// size grows, and it is capped at 15%.
func TestSlippageMonotonicInPositionSize(t *testing.T) {
	for _, model := range []SlippageModel{SlippageNone, SlippageConservative, SlippageRealistic} {
		prev := 0.0
		for _, positionUSD := range []float64{0, 100, 1000, 5000, 20000, 100000} {
			s := Slippage(model, positionUSD, 10000)
			assert.GreaterOrEqual(t, s, prev, "model=%s position=%f", model, positionUSD)
			prev = s
		}
	}
}

func TestSlippageCappedAt15Pct(t *testing.T) {
	s := Slippage(SlippageRealistic, 10_000_000, 1)
	assert.Equal(t, 0.15, s)
}

func TestSlippageNoneIsAlwaysZero(t *testing.T) {
	assert.Equal(t, 0.0, Slippage(SlippageNone, 50000, 1000))
}

func TestApplyBuyAndSellSlippageDirection(t *testing.T) {
	buy := ApplyBuySlippage(1.0, 0.05)
	sell := ApplySellSlippage(1.0, 0.05)
	assert.Greater(t, buy, 1.0, "buy slippage inflates price")
	assert.Less(t, sell, 1.0, "sell slippage deflates price")
}
