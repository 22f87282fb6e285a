package service

import (
	"context"
	"fmt"

	"futures_agent/internal/domain"
)

// AccountStatus is the read model for one account: its settings, the
// open positions and the orders still working on the exchange.
type AccountStatus struct {
	Account    *domain.Account    `json:"account"`
	Positions  []*domain.Position `json:"positions"`
	OpenOrders []*domain.Order    `json:"open_orders"`
}

// Status assembles the account view from local state. Mark prices and
// unrealized PnL are as of the last reconciliation pass.
func (s *ExecutionService) Status(ctx context.Context, accountID string) (*AccountStatus, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	positions, err := s.store.ListOpenPositions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	orders, err := s.store.ListOpenOrders(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	return &AccountStatus{
		Account:    account,
		Positions:  positions,
		OpenOrders: orders,
	}, nil
}
