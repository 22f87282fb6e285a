package storage

import (
	"context"
	"database/sql"
	"fmt"

	"futures_agent/internal/domain"
	"futures_agent/pkg/quant"
)

const positionColumns = `id, account_id, symbol, side, size, entry_price, mark_price,
	unrealized_pnl, realized_pnl, status, protection_pending, is_paper, created_at, updated_at`

// SavePosition inserts or updates a position row by id.
// Callers must hold the keyed lock for (account, symbol, isPaper).
func (s *Store) SavePosition(ctx context.Context, p *domain.Position) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (`+positionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			side=excluded.side, size=excluded.size, entry_price=excluded.entry_price,
			mark_price=excluded.mark_price, unrealized_pnl=excluded.unrealized_pnl,
			realized_pnl=excluded.realized_pnl, status=excluded.status,
			protection_pending=excluded.protection_pending, updated_at=excluded.updated_at`,
		p.ID, p.AccountID, p.Symbol, p.Side, int64(p.SizeSats), int64(p.EntryPriceMicros),
		int64(p.MarkPriceMicros), int64(p.UnrealizedMicros), int64(p.RealizedMicros),
		p.Status, boolInt(p.ProtectionPending), boolInt(p.IsPaper),
		int64(p.CreatedUnixM), int64(p.UpdatedUnixM))
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// GetPosition loads one position by id.
func (s *Store) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	return scanPosition(row)
}

// GetOpenPosition returns the single open position for (account, symbol,
// isPaper), or domain.ErrNotFound.
func (s *Store) GetOpenPosition(ctx context.Context, accountID, symbol string, isPaper bool) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE account_id = ? AND symbol = ? AND is_paper = ? AND status = 'OPEN'`,
		accountID, symbol, boolInt(isPaper))
	return scanPosition(row)
}

// ListOpenPositions returns every open position for an account.
func (s *Store) ListOpenPositions(ctx context.Context, accountID string) ([]*domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE account_id = ? AND status = 'OPEN' ORDER BY symbol`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var p domain.Position
	var size, entry, mark, unrealized, realized, created, updated int64
	var pending, isPaper int
	err := row.Scan(&p.ID, &p.AccountID, &p.Symbol, &p.Side, &size, &entry, &mark,
		&unrealized, &realized, &p.Status, &pending, &isPaper, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}
	p.SizeSats = quant.QtySats(size)
	p.EntryPriceMicros = quant.PriceMicros(entry)
	p.MarkPriceMicros = quant.PriceMicros(mark)
	p.UnrealizedMicros = quant.PriceMicros(unrealized)
	p.RealizedMicros = quant.PriceMicros(realized)
	p.ProtectionPending = pending != 0
	p.IsPaper = isPaper != 0
	p.CreatedUnixM = quant.TimeStamp(created)
	p.UpdatedUnixM = quant.TimeStamp(updated)
	return &p, nil
}
