// Package portfolio implements the experiment manager's trading engine:
// admission checks, position sizing, exit rules and ledger accounting over
// the append-only snapshot ledger.
package portfolio

import (
	"math"

	"wavesens/internal/config"
)

// Admission refusal reasons, logged verbatim so refusals are auditable
const (
	RefusalInsufficientCash  = "insufficient cash"
	RefusalMaxPositions      = "max concurrent positions reached"
	RefusalPositionTooLarge  = "position exceeds max size"
	RefusalPositionTooSmall  = "position below minimum size"
	RefusalCashReserve       = "would violate cash reserve"
	RefusalDailyLoss         = "daily_loss_limit"
	RefusalWindowNotOpen     = "entry window not open yet"
	RefusalWindowClosed      = "entry window already closed"
	RefusalNoExecution       = "no execution price available"
	RefusalInsufficientHold  = "insufficient time before market close"
)

// LedgerState is the portfolio view admission decisions run against,
// derived from the latest snapshot with the daily reset already applied.
type LedgerState struct {
	TotalValue       float64
	CashBalance      float64
	ActivePositions  int
	RealizedPnLToday float64
}

// PositionSize computes the dollar size for a signal. confidence is the
// normalized 0..1 signal confidence; volatility and correlation factors
// are currently fixed at 1.0.
func PositionSize(cfg config.PortfolioConfig, state LedgerState, confidence float64) float64 {
	base := state.TotalValue * cfg.BasePositionPercent / 100
	factor := math.Min(math.Max(confidence, cfg.ConfidenceFactorMin), cfg.ConfidenceFactorMax)
	size := base * factor

	if ceiling := state.TotalValue * cfg.MaxPositionPercent / 100; size > ceiling {
		size = ceiling
	}
	if size < cfg.MinPositionSize {
		size = cfg.MinPositionSize
	}
	reserve := state.TotalValue * cfg.MinCashReservePercent / 100
	if available := state.CashBalance - reserve; size > available {
		size = available
	}
	return size
}

// Admit runs the admission checks in order and returns the first failure
// reason. The order is part of the contract: refusal logs must name the
// first violated rule.
func Admit(cfg config.PortfolioConfig, state LedgerState, size float64) (string, bool) {
	switch {
	case state.CashBalance < size:
		return RefusalInsufficientCash, false
	case state.ActivePositions >= cfg.MaxConcurrentPositions:
		return RefusalMaxPositions, false
	case size > state.TotalValue*cfg.MaxPositionPercent/100:
		return RefusalPositionTooLarge, false
	case size < cfg.MinPositionSize:
		return RefusalPositionTooSmall, false
	case state.CashBalance-size < state.TotalValue*cfg.MinCashReservePercent/100:
		return RefusalCashReserve, false
	case DailyLossBreached(cfg, state):
		return RefusalDailyLoss, false
	}
	return "", true
}

// DailyLossBreached reports whether today's realized loss hit the circuit
// breaker threshold.
func DailyLossBreached(cfg config.PortfolioConfig, state LedgerState) bool {
	if state.RealizedPnLToday >= 0 || state.TotalValue <= 0 {
		return false
	}
	return math.Abs(state.RealizedPnLToday)/state.TotalValue*100 >= cfg.DailyLossLimitPercent
}
