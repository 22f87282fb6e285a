package execution

import (
	"context"

	"futures_agent/internal/domain"
	"futures_agent/internal/infra"
	"futures_agent/pkg/quant"
)

// PrimaryFill is the confirmed result of a primary market order.
type PrimaryFill struct {
	ExchangeOrderID string
	FilledSats      quant.QtySats
	AvgPriceMicros  quant.PriceMicros
	FeeMicros       quant.PriceMicros
	Ts              quant.TimeStamp
}

// ProtectiveResult carries the exchange ids of placed TP/SL legs.
// Either id may be empty when the decision only asked for one leg.
type ProtectiveResult struct {
	TpExchangeOrderID string
	SlExchangeOrderID string
}

// RemoteSnapshot is the adapter's view of authoritative truth for one
// account: live exchange state for the live adapter, the local paper book
// for the paper adapter.
type RemoteSnapshot struct {
	Positions  []infra.RemotePosition
	OpenOrders []infra.RemoteOrder
}

// Adapter abstracts order execution over paper and live venues.
// PlacePrimary returns only once the fill is confirmed (or an error);
// PlaceProtective must never be called before the primary is filled.
type Adapter interface {
	// Mode identifies the adapter ("PAPER" or "LIVE") for logging/events.
	Mode() string

	// PlacePrimary executes the decision's market order and confirms the fill.
	PlacePrimary(ctx context.Context, decision *domain.TradingDecision, clientOrderID string) (PrimaryFill, error)

	// PlaceProtective submits TP/SL conditional orders for a filled position.
	// tp/sl of 0 skip the respective leg.
	PlaceProtective(ctx context.Context, position *domain.Position, tp, sl quant.PriceMicros) (ProtectiveResult, error)

	// CancelOrder cancels an open order by exchange id.
	CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error

	// SyncRemoteState reads the authoritative order/position view. Read-only.
	SyncRemoteState(ctx context.Context, accountID string) (RemoteSnapshot, error)
}
