package portfolio

import (
	"time"

	"wavesens/internal/config"
	"wavesens/internal/db"
)

// ExitDecision is the monitor's verdict for one position at one price
type ExitDecision struct {
	Close   bool
	Reason  string
	NewStop float64
	Ratchet bool
}

// UnrealizedReturnPct is the open return of a position at the current price
func UnrealizedReturnPct(side db.Side, entryPrice, current float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	if side == db.SideShort {
		return (entryPrice - current) / entryPrice * 100
	}
	return (current - entryPrice) / entryPrice * 100
}

// EvaluateExit applies the exit rules in order: stop loss, take profit,
// hold expiry, trailing ratchet. Short positions mirror every comparison.
func EvaluateExit(exp *db.Experiment, current float64, now time.Time, cfg config.PortfolioConfig) ExitDecision {
	long := exp.Side != db.SideShort

	if exp.StopLoss != nil {
		if (long && current <= *exp.StopLoss) || (!long && current >= *exp.StopLoss) {
			return ExitDecision{Close: true, Reason: db.ExitStopLoss}
		}
	}
	if exp.TakeProfit != nil {
		if (long && current >= *exp.TakeProfit) || (!long && current <= *exp.TakeProfit) {
			return ExitDecision{Close: true, Reason: db.ExitTakeProfit}
		}
	}
	if exp.MaxHoldUntil != nil && now.After(*exp.MaxHoldUntil) {
		return ExitDecision{Close: true, Reason: db.ExitMaxHold}
	}

	if UnrealizedReturnPct(exp.Side, exp.EntryPrice, current) >= cfg.TrailingActivationPct {
		distance := cfg.TrailingDistancePct / 100
		newStop := current * (1 - distance)
		if !long {
			newStop = current * (1 + distance)
		}
		if exp.StopLoss == nil ||
			(long && newStop > *exp.StopLoss) ||
			(!long && newStop < *exp.StopLoss) {
			return ExitDecision{Ratchet: true, NewStop: newStop}
		}
	}
	return ExitDecision{}
}

// CloseAccounting fills the exit fields on the experiment and returns the
// cash credit for the ledger: the full entry cost plus net P&L, which for
// long positions equals the sale proceeds.
func CloseAccounting(exp *db.Experiment, exitPrice, exitCommission float64, sp500Exit *float64, reason string, now time.Time) (cashCredit float64) {
	gross := (exitPrice - exp.EntryPrice) * exp.Shares
	if exp.Side == db.SideShort {
		gross = (exp.EntryPrice - exitPrice) * exp.Shares
	}
	net := gross - exp.Commission - exitCommission
	entryCost := exp.PositionSize + exp.Commission
	returnPct := 0.0
	if entryCost > 0 {
		returnPct = net / entryCost * 100
	}
	hold := int(now.Sub(exp.EntryTime).Minutes())

	exp.ExitTime = &now
	exp.ExitPrice = &exitPrice
	exp.ExitCommission = &exitCommission
	exp.ExitReason = &reason
	exp.GrossPnL = &gross
	exp.NetPnL = &net
	exp.ReturnPercent = &returnPct
	exp.HoldDurationMinutes = &hold

	if sp500Exit != nil && exp.SP500Entry != nil && *exp.SP500Entry > 0 {
		spReturn := (*sp500Exit / *exp.SP500Entry - 1) * 100
		alpha := returnPct - spReturn
		exp.SP500Return = &spReturn
		exp.Alpha = &alpha
	}

	return entryCost + net
}
