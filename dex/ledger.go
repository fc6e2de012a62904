package dex

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"meridian/domain"
	"meridian/logger"
)

// Ledger owns the virtual SOL balance, the open-positions map and the
// append-only trade history for the DEX paper-trading engine. Sizing math
// runs through decimal.Decimal so repeated buy/sell cycles can't drift the
// balance reconciliation the way float64 accumulation would.
type Ledger struct {
	state *domain.AgentState
}

func NewLedger(state *domain.AgentState) *Ledger {
	return &Ledger{state: state}
}

// TotalValue returns paper_balance + mark-to-market of every open position
// at the supplied current-price lookup, in SOL. Token prices are USD, so
// each mark converts back through solUsd.
func (l *Ledger) TotalValue(priceOf func(tokenAddress string) float64, solUsd float64) float64 {
	total := decimal.NewFromFloat(l.state.DexPaperBalanceSol)
	if solUsd <= 0 {
		f, _ := total.Float64()
		return f
	}
	sol := decimal.NewFromFloat(solUsd)
	for addr, pos := range l.state.DexPositions {
		price := priceOf(addr)
		mv := decimal.NewFromFloat(pos.TokenAmount).Mul(decimal.NewFromFloat(price)).Div(sol)
		total = total.Add(mv)
	}
	f, _ := total.Float64()
	return f
}

// Open debits stakeSol (+ gas) from the balance, computes token_amount
// from the post-slippage USD entry price and the live SOL/USD rate, and
// records the new position. token_amount * entry_price equals the staked
// SOL's USD value at open.
func (l *Ledger) Open(pos domain.DexPosition, gasFeeSol, solUsd float64) error {
	if _, exists := l.state.DexPositions[pos.TokenAddress]; exists {
		return fmt.Errorf("token %s already held", pos.TokenAddress)
	}

	stake := decimal.NewFromFloat(pos.EntryStakeSol)
	gas := decimal.NewFromFloat(gasFeeSol)
	debit := stake.Add(gas)

	balance := decimal.NewFromFloat(l.state.DexPaperBalanceSol)
	if balance.LessThan(debit) {
		return fmt.Errorf("insufficient paper balance: have %s, need %s", balance.String(), debit.String())
	}

	entryPrice := decimal.NewFromFloat(pos.EntryPrice)
	if entryPrice.IsZero() {
		return fmt.Errorf("entry price is zero for %s", pos.TokenAddress)
	}
	if solUsd <= 0 {
		return fmt.Errorf("invalid sol/usd rate %f", solUsd)
	}
	tokenAmount := stake.Mul(decimal.NewFromFloat(solUsd)).Div(entryPrice)
	tAmt, _ := tokenAmount.Float64()
	pos.TokenAmount = tAmt
	pos.PeakPrice = pos.EntryPrice
	pos.LastPrice = pos.EntryPrice

	newBalance := balance.Sub(debit)
	f, _ := newBalance.Float64()
	l.state.DexPaperBalanceSol = f
	l.state.DexPositions[pos.TokenAddress] = pos

	logger.Infof("🟢 [DEX] opened %s (%s) stake=%.4f SOL @ %.8f", pos.Symbol, pos.Tier, pos.EntryStakeSol, pos.EntryPrice)
	return nil
}

// Close removes an open position, credits the balance with stake + pnl -
// gas, and appends an immutable trade record.
func (l *Ledger) Close(tokenAddress string, exitPriceRaw float64, reason domain.ExitReason, now time.Time, gasFeeSol, solUsd float64) (domain.DexTradeRecord, error) {
	pos, ok := l.state.DexPositions[tokenAddress]
	if !ok {
		return domain.DexTradeRecord{}, fmt.Errorf("no open position for %s", tokenAddress)
	}
	if solUsd <= 0 {
		return domain.DexTradeRecord{}, fmt.Errorf("invalid sol/usd rate %f", solUsd)
	}

	proceedsUsd := decimal.NewFromFloat(pos.TokenAmount).Mul(decimal.NewFromFloat(exitPriceRaw))
	proceeds := proceedsUsd.Div(decimal.NewFromFloat(solUsd))
	stake := decimal.NewFromFloat(pos.EntryStakeSol)
	gas := decimal.NewFromFloat(gasFeeSol)
	pnl := proceeds.Sub(stake).Sub(gas)

	pnlSol, _ := pnl.Float64()
	pnlPct := 0.0
	if pos.EntryPrice != 0 {
		pnlPct = (exitPriceRaw - pos.EntryPrice) / pos.EntryPrice * 100
	}

	newBalance := decimal.NewFromFloat(l.state.DexPaperBalanceSol).Add(stake).Add(pnl)
	f, _ := newBalance.Float64()
	l.state.DexPaperBalanceSol = f

	record := domain.DexTradeRecord{
		ID:            uuid.NewString(),
		Symbol:        pos.Symbol,
		TokenAddress:  tokenAddress,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPriceRaw,
		EntryStakeSol: pos.EntryStakeSol,
		EntryTime:     pos.EntryTime,
		ExitTime:      now,
		PnLPct:        pnlPct,
		PnLSol:        pnlSol,
		ExitReason:    reason,
	}
	l.state.DexTradeHistory = append(l.state.DexTradeHistory, record)
	l.state.DexRealizedPnLSol += pnlSol
	delete(l.state.DexPositions, tokenAddress)

	logger.Infof("🔴 [DEX] closed %s reason=%s pnl=%.4f SOL (%.2f%%)", pos.Symbol, reason, pnlSol, pnlPct)
	return record, nil
}

// ConcentrationCap reduces a candidate stake to at most maxPct of total
// portfolio value; the caller logs any reduction. Returns (reducedStake, reduced).
func ConcentrationCap(candidateStake, totalValue, maxPct float64) (float64, bool) {
	cap := totalValue * maxPct / 100
	if candidateStake <= cap {
		return candidateStake, false
	}
	return cap, true
}
