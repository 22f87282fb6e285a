package storage

import (
	"context"
	"database/sql"
	"fmt"

	"futures_agent/internal/domain"
	"futures_agent/pkg/quant"
)

// GetAccount loads one account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_paper, leverage, max_position_usd, status, created_at, updated_at
		 FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// ListAccounts returns all accounts.
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_paper, leverage, max_position_usd, status, created_at, updated_at
		 FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveAccount inserts or replaces an account row. The account subsystem
// owns accounts; this exists for bootstrap and tests.
func (s *Store) SaveAccount(ctx context.Context, a *domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, is_paper, leverage, max_position_usd, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, is_paper=excluded.is_paper, leverage=excluded.leverage,
			max_position_usd=excluded.max_position_usd, status=excluded.status,
			updated_at=excluded.updated_at`,
		a.ID, a.Name, boolInt(a.IsPaperTrading), a.Leverage, int64(a.MaxPositionSizeUsd),
		a.Status, int64(a.CreatedUnixM), int64(a.UpdatedUnixM))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// StampCooldown atomically stamps last_trade_at for (account, symbol) if
// the previous stamp is older than the cooldown window. Returns true when
// the stamp was taken: exactly one of two concurrent callers wins.
func (s *Store) StampCooldown(ctx context.Context, accountID, symbol string, now quant.TimeStamp, cooldown quant.TimeStamp) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cooldowns (account_id, symbol, last_trade_at) VALUES (?, ?, ?)
		 ON CONFLICT(account_id, symbol) DO UPDATE SET last_trade_at=excluded.last_trade_at
		 WHERE cooldowns.last_trade_at <= ?`,
		accountID, symbol, int64(now), int64(now-cooldown))
	if err != nil {
		return false, fmt.Errorf("failed to stamp cooldown: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LastTradeAt returns the cooldown stamp for (account, symbol), 0 if none.
func (s *Store) LastTradeAt(ctx context.Context, accountID, symbol string) (quant.TimeStamp, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_trade_at FROM cooldowns WHERE account_id = ? AND symbol = ?`,
		accountID, symbol).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return quant.TimeStamp(ts), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var isPaper int
	var maxPos, created, updated int64
	err := row.Scan(&a.ID, &a.Name, &isPaper, &a.Leverage, &maxPos, &a.Status, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.IsPaperTrading = isPaper != 0
	a.MaxPositionSizeUsd = quant.PriceMicros(maxPos)
	a.CreatedUnixM = quant.TimeStamp(created)
	a.UpdatedUnixM = quant.TimeStamp(updated)
	return &a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
