package domain

import (
	"futures_agent/pkg/quant"
	"futures_agent/pkg/safe"
)

// Position statuses.
const (
	PositionOpen   = "OPEN"
	PositionClosed = "CLOSED"
)

// Position represents the net exposure for one (account, symbol, isPaper).
// Size is always non-negative; direction lives in Side.
// All monetary values are strictly int64.
type Position struct {
	ID                string            `json:"id"`
	AccountID         string            `json:"account_id"`
	Symbol            string            `json:"symbol"`
	Side              string            `json:"side"` // "BUY" (long), "SELL" (short)
	SizeSats          quant.QtySats     `json:"size"`
	EntryPriceMicros  quant.PriceMicros `json:"entry_price"`
	MarkPriceMicros   quant.PriceMicros `json:"mark_price"`
	UnrealizedMicros  quant.PriceMicros `json:"unrealized_pnl"`
	RealizedMicros    quant.PriceMicros `json:"realized_pnl"`
	Status            string            `json:"status"`
	ProtectionPending bool              `json:"protection_pending"`
	IsPaper           bool              `json:"is_paper"`
	CreatedUnixM      quant.TimeStamp   `json:"created_at_unix"`
	UpdatedUnixM      quant.TimeStamp   `json:"updated_at_unix"`
}

// IsLong checks if the position is long.
func (p *Position) IsLong() bool {
	return p.Side == SideBuy
}

// IsShort checks if the position is short.
func (p *Position) IsShort() bool {
	return p.Side == SideSell
}

// NotionalMicros returns the current notional exposure in quote micros.
func (p *Position) NotionalMicros() quant.PriceMicros {
	price := p.MarkPriceMicros
	if price == 0 {
		price = p.EntryPriceMicros
	}
	return quant.Notional(price, p.SizeSats)
}

// ApplyFill folds one fill into the position and returns realized PnL in
// quote micros for the reduced part, if any.
//
// Same-side fills increase size at the quantity-weighted entry price.
// Opposite-side fills reduce size first; a fill larger than the open size
// flips the position to the other side at the fill price.
func (p *Position) ApplyFill(side string, qty quant.QtySats, price quant.PriceMicros, ts quant.TimeStamp) quant.PriceMicros {
	defer func() {
		p.MarkPriceMicros = price
		p.RefreshUnrealized(price)
		p.UpdatedUnixM = ts
	}()

	if p.SizeSats == 0 || p.Side == side {
		p.EntryPriceMicros = quant.WeightedAvgPrice(p.EntryPriceMicros, p.SizeSats, price, qty)
		if p.SizeSats == 0 {
			p.Side = side
		}
		p.SizeSats = quant.QtySats(safe.Add(int64(p.SizeSats), int64(qty)))
		return 0
	}

	// Opposite side: reduce.
	closed := qty
	if closed > p.SizeSats {
		closed = p.SizeSats
	}
	diff := safe.Sub(int64(price), int64(p.EntryPriceMicros))
	if p.IsShort() {
		diff = -diff
	}
	realized := quant.Notional(quant.PriceMicros(diff), closed)
	p.RealizedMicros += realized

	remainder := quant.QtySats(safe.Sub(int64(qty), int64(closed)))
	p.SizeSats = quant.QtySats(safe.Sub(int64(p.SizeSats), int64(closed)))

	if remainder > 0 {
		// Flip through zero at the fill price.
		p.Side = side
		p.SizeSats = remainder
		p.EntryPriceMicros = price
	} else if p.SizeSats == 0 {
		p.Status = PositionClosed
		p.EntryPriceMicros = 0
	}
	return realized
}

// RefreshUnrealized recomputes unrealized PnL against the given mark price.
func (p *Position) RefreshUnrealized(mark quant.PriceMicros) {
	p.MarkPriceMicros = mark
	if p.SizeSats == 0 || mark == 0 {
		p.UnrealizedMicros = 0
		return
	}
	diff := safe.Sub(int64(mark), int64(p.EntryPriceMicros))
	if p.IsShort() {
		diff = -diff
	}
	p.UnrealizedMicros = quant.Notional(quant.PriceMicros(diff), p.SizeSats)
}
