package storage

import (
	"context"
	"database/sql"
	"fmt"

	"futures_agent/internal/domain"
	"futures_agent/pkg/quant"
)

const orderColumns = `id, account_id, symbol, side, type, status, requested_qty, filled_qty,
	avg_price, trigger_price, exchange_order_id, parent_order_id, is_paper, created_at, updated_at`

// CreateOrder inserts a new order row.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.AccountID, o.Symbol, o.Side, o.Type, o.Status,
		int64(o.RequestedSats), int64(o.FilledSats), int64(o.AvgPriceMicros), int64(o.TriggerMicros),
		nullStr(o.ExchangeOrderID), nullStr(o.ParentOrderID), boolInt(o.IsPaper),
		int64(o.CreatedUnixM), int64(o.UpdatedUnixM))
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// UpdateOrder persists the mutable fields of an order.
func (s *Store) UpdateOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status=?, filled_qty=?, avg_price=?, exchange_order_id=?, updated_at=?
		 WHERE id=?`,
		o.Status, int64(o.FilledSats), int64(o.AvgPriceMicros),
		nullStr(o.ExchangeOrderID), int64(o.UpdatedUnixM), o.ID)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// GetOrder loads one order by id.
func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	return scanOrder(row)
}

// GetOrderByExchangeID loads one order by its exchange id.
func (s *Store) GetOrderByExchangeID(ctx context.Context, exchangeOrderID string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE exchange_order_id = ?`, exchangeOrderID)
	return scanOrder(row)
}

// ListOpenOrders returns non-terminal orders for an account.
func (s *Store) ListOpenOrders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE account_id = ? AND status IN ('PENDING', 'SUBMITTED', 'PARTIALLY_FILLED')
		 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var requested, filled, avg, trigger, created, updated int64
	var isPaper int
	var exchangeID, parentID sql.NullString
	err := row.Scan(&o.ID, &o.AccountID, &o.Symbol, &o.Side, &o.Type, &o.Status,
		&requested, &filled, &avg, &trigger, &exchangeID, &parentID, &isPaper, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	o.RequestedSats = quant.QtySats(requested)
	o.FilledSats = quant.QtySats(filled)
	o.AvgPriceMicros = quant.PriceMicros(avg)
	o.TriggerMicros = quant.PriceMicros(trigger)
	o.ExchangeOrderID = exchangeID.String
	o.ParentOrderID = parentID.String
	o.IsPaper = isPaper != 0
	o.CreatedUnixM = quant.TimeStamp(created)
	o.UpdatedUnixM = quant.TimeStamp(updated)
	return &o, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
