package storage

import (
	"context"
	"fmt"

	"futures_agent/internal/domain"
	"futures_agent/pkg/quant"
)

// AppendTrade inserts an immutable trade row. There is no update or
// delete path for trades anywhere in the codebase.
func (s *Store) AppendTrade(ctx context.Context, t *domain.Trade) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (id, order_id, account_id, symbol, side, price, qty, fee, is_paper, is_synthetic, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrderID, t.AccountID, t.Symbol, t.Side,
		int64(t.PriceMicros), int64(t.QtySats), int64(t.FeeMicros),
		boolInt(t.IsPaper), boolInt(t.IsSynthetic), int64(t.ExecUnixM))
	if err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}
	return nil
}

// ListTradesByOrder returns all trades linked to one order.
func (s *Store) ListTradesByOrder(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, account_id, symbol, side, price, qty, fee, is_paper, is_synthetic, executed_at
		 FROM trades WHERE order_id = ? ORDER BY executed_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var price, qty, fee, executed int64
		var isPaper, isSynthetic int
		if err := rows.Scan(&t.ID, &t.OrderID, &t.AccountID, &t.Symbol, &t.Side,
			&price, &qty, &fee, &isPaper, &isSynthetic, &executed); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.PriceMicros = quant.PriceMicros(price)
		t.QtySats = quant.QtySats(qty)
		t.FeeMicros = quant.PriceMicros(fee)
		t.IsPaper = isPaper != 0
		t.IsSynthetic = isSynthetic != 0
		t.ExecUnixM = quant.TimeStamp(executed)
		out = append(out, &t)
	}
	return out, rows.Err()
}
