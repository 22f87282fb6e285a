package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"futures_agent/internal/domain"
	"futures_agent/internal/infra"
	"futures_agent/pkg/quant"
	"futures_agent/pkg/safe"
)

// Store is the persistence surface the guard needs.
type Store interface {
	StampCooldown(ctx context.Context, accountID, symbol string, now, cooldown quant.TimeStamp) (bool, error)
	GetOpenPosition(ctx context.Context, accountID, symbol string, isPaper bool) (*domain.Position, error)
}

// Guard validates a proposed execution before any order is created.
// All rejections are terminal; the caller must not retry them.
type Guard struct {
	store       Store
	quotes      infra.QuoteReader
	maxLeverage int64
	cooldown    time.Duration
	now         func() time.Time
}

// NewGuard creates a risk guard from config.
func NewGuard(store Store, quotes infra.QuoteReader, cfg *infra.Config) *Guard {
	return &Guard{
		store:       store,
		quotes:      quotes,
		maxLeverage: cfg.Risk.MaxLeverage,
		cooldown:    cfg.CooldownInterval(),
		now:         time.Now,
	}
}

// Check validates the decision against the leverage ceiling, the position
// size limit and the per-(account, symbol) cooldown. On allow it stamps
// last_trade_at atomically before returning, so two concurrent attempts
// for the same pair cannot both pass. Returns nil on allow and a
// *domain.RiskRejectedError on reject.
func (g *Guard) Check(ctx context.Context, account *domain.Account, decision *domain.TradingDecision) error {
	if !account.CanTrade() {
		return &domain.RiskRejectedError{
			Reason: domain.ReasonAccountDisabled,
			Detail: fmt.Sprintf("account %s is %s", account.ID, account.Status),
		}
	}

	if account.Leverage > g.maxLeverage {
		return &domain.RiskRejectedError{
			Reason: domain.ReasonLeverageExceeded,
			Detail: fmt.Sprintf("requested %dx, ceiling %dx", account.Leverage, g.maxLeverage),
		}
	}

	// Reduce-only decisions shrink exposure; only the cooldown applies.
	if !decision.ReduceOnly {
		if err := g.checkExposure(ctx, account, decision); err != nil {
			return err
		}
	}

	now := quant.TimeStamp(g.now().UnixMicro())
	stamped, err := g.store.StampCooldown(ctx, account.ID, decision.Symbol, now,
		quant.TimeStamp(g.cooldown.Microseconds()))
	if err != nil {
		return fmt.Errorf("failed to stamp cooldown: %w", err)
	}
	if !stamped {
		return &domain.RiskRejectedError{
			Reason: domain.ReasonCooldownActive,
			Detail: fmt.Sprintf("cooldown %s not elapsed for %s/%s", g.cooldown, account.ID, decision.Symbol),
		}
	}

	return nil
}

// checkExposure values the decision at the current quote and rejects it
// when the combined notional of the existing position and the new order
// exceeds the account's position size limit.
func (g *Guard) checkExposure(ctx context.Context, account *domain.Account, decision *domain.TradingDecision) error {
	quote, err := g.quotes.BestQuote(ctx, decision.Symbol)
	if err != nil {
		return fmt.Errorf("failed to value decision: %w", err)
	}
	price := quote.AskMicros
	if decision.Side == domain.SideSell {
		price = quote.BidMicros
	}
	newNotional := quant.Notional(price, decision.QtySats)

	existing := int64(0)
	pos, err := g.store.GetOpenPosition(ctx, account.ID, decision.Symbol, account.IsPaperTrading)
	if err == nil {
		// Only same-side orders grow exposure; opposite-side orders reduce
		// toward zero first.
		if pos.Side == decision.Side {
			existing = int64(pos.NotionalMicros())
		}
	} else if err != domain.ErrNotFound {
		return fmt.Errorf("failed to load position: %w", err)
	}

	combined := safe.Add(existing, int64(newNotional))
	if account.MaxPositionSizeUsd > 0 && combined > int64(account.MaxPositionSizeUsd) {
		slog.Warn("position limit rejection",
			slog.String("account", account.ID),
			slog.String("symbol", decision.Symbol),
			slog.Int64("combined_micros", combined),
			slog.Int64("limit_micros", int64(account.MaxPositionSizeUsd)))
		return &domain.RiskRejectedError{
			Reason: domain.ReasonPositionLimit,
			Detail: fmt.Sprintf("combined notional %s exceeds limit %s",
				quant.PriceMicros(combined), account.MaxPositionSizeUsd),
		}
	}
	return nil
}
