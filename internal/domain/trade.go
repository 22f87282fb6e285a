package domain

import "futures_agent/pkg/quant"

// Trade is an immutable execution record linked to an Order.
// Rows are append-only and never mutated or deleted; they are the audit
// trail PnL is computed from.
type Trade struct {
	ID          string            `json:"id"`
	OrderID     string            `json:"order_id"`
	AccountID   string            `json:"account_id"`
	Symbol      string            `json:"symbol"`
	Side        string            `json:"side"`
	PriceMicros quant.PriceMicros `json:"price"`
	QtySats     quant.QtySats     `json:"qty"`
	FeeMicros   quant.PriceMicros `json:"fee"`
	IsPaper     bool              `json:"is_paper"`
	IsSynthetic bool              `json:"is_synthetic"` // written by reconciliation, not a real fill
	ExecUnixM   quant.TimeStamp   `json:"executed_at_unix"`
}
