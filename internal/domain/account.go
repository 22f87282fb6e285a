package domain

import "futures_agent/pkg/quant"

// Account status values.
const (
	AccountActive  = "ACTIVE"
	AccountPaused  = "PAUSED"
	AccountStopped = "STOPPED"
)

// Account holds the trading configuration for one exchange account.
// All monetary values are strictly int64.
type Account struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	IsPaperTrading     bool              `json:"is_paper_trading"`
	Leverage           int64             `json:"leverage"`
	MaxPositionSizeUsd quant.PriceMicros `json:"max_position_size_usd"` // Micros
	Status             string            `json:"status"` // "ACTIVE", "PAUSED", "STOPPED"
	CreatedUnixM       quant.TimeStamp   `json:"created_at_unix"`
	UpdatedUnixM       quant.TimeStamp   `json:"updated_at_unix"`
}

// CanTrade reports whether the account accepts new executions.
func (a *Account) CanTrade() bool {
	return a.Status == AccountActive
}
