package domain

import "futures_agent/pkg/quant"

// Order statuses. Filled, cancelled, rejected and failed are terminal.
const (
	OrderPending   = "PENDING"
	OrderSubmitted = "SUBMITTED"
	OrderPartial   = "PARTIALLY_FILLED"
	OrderFilled    = "FILLED"
	OrderCancelled = "CANCELLED"
	OrderRejected  = "REJECTED"
	OrderFailed    = "FAILED"
)

// Order types.
const (
	OrderTypeMarket     = "MARKET"
	OrderTypeTakeProfit = "TAKE_PROFIT"
	OrderTypeStopLoss   = "STOP_LOSS"
)

// Order represents a single order in its local lifecycle.
// All monetary values are strictly int64.
type Order struct {
	ID              string            `json:"id"`
	AccountID       string            `json:"account_id"`
	Symbol          string            `json:"symbol"`
	Side            string            `json:"side"` // "BUY", "SELL"
	Type            string            `json:"type"` // "MARKET", "TAKE_PROFIT", "STOP_LOSS"
	Status          string            `json:"status"`
	RequestedSats   quant.QtySats     `json:"requested_qty"`
	FilledSats      quant.QtySats     `json:"filled_qty"`
	AvgPriceMicros  quant.PriceMicros `json:"avg_price"`
	TriggerMicros   quant.PriceMicros `json:"trigger_price,omitempty"` // TP/SL trigger, 0 for market
	ExchangeOrderID string            `json:"exchange_order_id,omitempty"`
	ParentOrderID   string            `json:"parent_order_id,omitempty"` // set on protective orders
	IsPaper         bool              `json:"is_paper"`
	CreatedUnixM    quant.TimeStamp   `json:"created_at_unix"`
	UpdatedUnixM    quant.TimeStamp   `json:"updated_at_unix"`
}

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return o.Status == OrderPending || o.Status == OrderSubmitted || o.Status == OrderPartial
}

// IsTerminal checks if the order can no longer transition.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderFilled, OrderCancelled, OrderRejected, OrderFailed:
		return true
	}
	return false
}

// IsProtective reports whether the order is a TP or SL leg.
func (o *Order) IsProtective() bool {
	return o.Type == OrderTypeTakeProfit || o.Type == OrderTypeStopLoss
}
