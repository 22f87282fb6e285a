package domain

import "futures_agent/pkg/quant"

// Decision sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// TradingDecision is the immutable input to one execution attempt.
// It is produced by the external decision engine and consumed once.
type TradingDecision struct {
	AccountID     string            `json:"account_id"`
	Symbol        string            `json:"symbol"`
	Side          string            `json:"side"` // "BUY", "SELL"
	QtySats       quant.QtySats     `json:"qty"`
	TpPriceMicros quant.PriceMicros `json:"tp_price,omitempty"` // 0 = no take-profit
	SlPriceMicros quant.PriceMicros `json:"sl_price,omitempty"` // 0 = no stop-loss
	ReduceOnly    bool              `json:"reduce_only"`
	StrategyID    string            `json:"strategy_id"`
}

// HasProtection reports whether the decision requests TP/SL orders.
func (d *TradingDecision) HasProtection() bool {
	return d.TpPriceMicros > 0 || d.SlPriceMicros > 0
}
