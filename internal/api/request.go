package api

import (
	"fmt"

	"github.com/shopspring/decimal"

	"futures_agent/internal/domain"
	"futures_agent/pkg/quant"
)

// ExecuteRequest is the JSON body for POST /api/execute. Prices and
// quantity arrive as decimal strings and never pass through float64.
type ExecuteRequest struct {
	AccountID  string `json:"account_id" validate:"required"`
	Symbol     string `json:"symbol" validate:"required,uppercase"`
	Side       string `json:"side" validate:"required,oneof=BUY SELL"`
	Qty        string `json:"qty" validate:"required"`
	TpPrice    string `json:"tp_price,omitempty"`
	SlPrice    string `json:"sl_price,omitempty"`
	ReduceOnly bool   `json:"reduce_only,omitempty"`
	StrategyID string `json:"strategy_id,omitempty"`
}

// ToDecision converts the request into a domain decision, rejecting
// malformed or non-positive numbers.
func (r *ExecuteRequest) ToDecision() (*domain.TradingDecision, error) {
	qty, err := parsePositive(r.Qty, "qty")
	if err != nil {
		return nil, err
	}

	d := &domain.TradingDecision{
		AccountID:  r.AccountID,
		Symbol:     r.Symbol,
		Side:       r.Side,
		QtySats:    quant.QtySats(qty.Shift(8).IntPart()),
		ReduceOnly: r.ReduceOnly,
		StrategyID: r.StrategyID,
	}
	if d.QtySats <= 0 {
		return nil, fmt.Errorf("qty %s is below the minimum increment", r.Qty)
	}

	if r.TpPrice != "" {
		tp, err := parsePositive(r.TpPrice, "tp_price")
		if err != nil {
			return nil, err
		}
		d.TpPriceMicros = quant.PriceMicros(tp.Shift(6).IntPart())
	}
	if r.SlPrice != "" {
		sl, err := parsePositive(r.SlPrice, "sl_price")
		if err != nil {
			return nil, err
		}
		d.SlPriceMicros = quant.PriceMicros(sl.Shift(6).IntPart())
	}

	if d.TpPriceMicros > 0 && d.SlPriceMicros > 0 {
		longOK := d.Side == domain.SideBuy && d.TpPriceMicros > d.SlPriceMicros
		shortOK := d.Side == domain.SideSell && d.TpPriceMicros < d.SlPriceMicros
		if !longOK && !shortOK {
			return nil, fmt.Errorf("tp %s and sl %s are inverted for a %s",
				r.TpPrice, r.SlPrice, d.Side)
		}
	}
	return d, nil
}

func parsePositive(s, field string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", field, s)
	}
	if v.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%s must be positive, got %s", field, s)
	}
	return v, nil
}
