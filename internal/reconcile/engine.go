// Package reconcile periodically compares local execution state against
// the exchange and corrects drift. The exchange is the source of truth
// for live accounts; local state only ever converges toward it.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"futures_agent/internal/domain"
	"futures_agent/internal/event"
	"futures_agent/internal/execution"
	"futures_agent/internal/infra"
	"futures_agent/internal/storage"
	"futures_agent/internal/telemetry"
	"futures_agent/pkg/quant"
)

// Store is the persistence surface the engine needs. *storage.Store
// satisfies it.
type Store interface {
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListOpenPositions(ctx context.Context, accountID string) ([]*domain.Position, error)
	SavePosition(ctx context.Context, p *domain.Position) error
	ListOpenOrders(ctx context.Context, accountID string) ([]*domain.Order, error)
	UpdateOrder(ctx context.Context, o *domain.Order) error
	AppendTrade(ctx context.Context, t *domain.Trade) error
	Locks() *storage.KeyedLock
}

// AdapterFactory selects the execution adapter for an account.
type AdapterFactory interface {
	For(account *domain.Account) execution.Adapter
}

// Engine runs the reconciliation loop.
type Engine struct {
	store    Store
	factory  AdapterFactory
	quotes   infra.QuoteReader
	bus      *event.Bus
	metrics  *telemetry.Metrics
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewEngine wires the reconciliation engine.
func NewEngine(store Store, factory AdapterFactory, quotes infra.QuoteReader, bus *event.Bus, metrics *telemetry.Metrics, interval time.Duration, log *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		factory:  factory,
		quotes:   quotes,
		bus:      bus,
		metrics:  metrics,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Run reconciles on every tick until the context is cancelled. The
// caller is expected to run one ReconcileAll pass at startup, before
// accepting traffic, so the local book reflects whatever happened while
// the process was down.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.ReconcileAll(ctx); err != nil {
				e.log.Error("reconciliation pass failed", slog.Any("error", err))
			}
		}
	}
}

// ReconcileAll runs one pass over every account. A failing account does
// not stop the pass for the others.
func (e *Engine) ReconcileAll(ctx context.Context) error {
	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	var firstErr error
	for _, account := range accounts {
		if _, err := e.reconcile(ctx, account); err != nil {
			e.log.Error("account reconciliation failed",
				slog.String("account", account.ID), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ReconcileAccount reconciles a single account on demand and returns the
// number of corrections applied.
func (e *Engine) ReconcileAccount(ctx context.Context, accountID string) (int, error) {
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	return e.reconcile(ctx, account)
}

func (e *Engine) reconcile(ctx context.Context, account *domain.Account) (int, error) {
	if account.IsPaperTrading {
		return e.refreshPaperMarks(ctx, account)
	}
	return e.reconcileLive(ctx, account)
}

// refreshPaperMarks updates mark prices and unrealized PnL for paper
// positions from the quote feed. Paper has no remote state to diff, so
// there is nothing to correct.
func (e *Engine) refreshPaperMarks(ctx context.Context, account *domain.Account) (int, error) {
	positions, err := e.store.ListOpenPositions(ctx, account.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list positions: %w", err)
	}
	for _, pos := range positions {
		if !pos.IsPaper {
			continue
		}
		quote, err := e.quotes.BestQuote(ctx, pos.Symbol)
		if err != nil {
			e.log.Warn("no quote for mark refresh",
				slog.String("symbol", pos.Symbol), slog.Any("error", err))
			continue
		}
		mark := quote.BidMicros
		if pos.IsShort() {
			mark = quote.AskMicros
		}
		unlock := e.store.Locks().Lock(storage.PositionKey(account.ID, pos.Symbol, true))
		pos.RefreshUnrealized(mark)
		pos.UpdatedUnixM = e.nowMicros()
		err = e.store.SavePosition(ctx, pos)
		unlock()
		if err != nil {
			return 0, fmt.Errorf("failed to save position %s: %w", pos.ID, err)
		}
	}
	return 0, nil
}

// reconcileLive diffs local open state against the exchange snapshot and
// applies corrections. Remote wins every disagreement.
func (e *Engine) reconcileLive(ctx context.Context, account *domain.Account) (int, error) {
	adapter := e.factory.For(account)
	snapshot, err := adapter.SyncRemoteState(ctx, account.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch remote state: %w", err)
	}

	corrections := 0
	n, err := e.reconcilePositions(ctx, account, snapshot.Positions)
	corrections += n
	if err != nil {
		return corrections, err
	}
	n, err = e.reconcileOrders(ctx, account, snapshot.OpenOrders)
	corrections += n
	return corrections, err
}

func (e *Engine) reconcilePositions(ctx context.Context, account *domain.Account, remote []infra.RemotePosition) (int, error) {
	local, err := e.store.ListOpenPositions(ctx, account.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list positions: %w", err)
	}

	remoteBySymbol := make(map[string]infra.RemotePosition, len(remote))
	for _, rp := range remote {
		remoteBySymbol[rp.Symbol] = rp
	}

	corrections := 0
	seen := make(map[string]bool, len(local))
	for _, pos := range local {
		if pos.IsPaper {
			continue
		}
		seen[pos.Symbol] = true
		rp, ok := remoteBySymbol[pos.Symbol]
		if !ok {
			if err := e.closeVanishedPosition(ctx, account, pos); err != nil {
				return corrections, err
			}
			corrections++
			continue
		}
		if n, err := e.alignPosition(ctx, account, pos, rp); err != nil {
			return corrections, err
		} else {
			corrections += n
		}
	}

	for _, rp := range remote {
		if seen[rp.Symbol] {
			continue
		}
		if err := e.adoptRemotePosition(ctx, account, rp); err != nil {
			return corrections, err
		}
		corrections++
	}
	return corrections, nil
}

// closeVanishedPosition closes a local position the exchange no longer
// reports, recording a synthetic closing trade at the last known mark so
// the audit trail explains where the exposure went.
func (e *Engine) closeVanishedPosition(ctx context.Context, account *domain.Account, pos *domain.Position) error {
	unlock := e.store.Locks().Lock(storage.PositionKey(account.ID, pos.Symbol, false))
	defer unlock()

	price := pos.MarkPriceMicros
	if price == 0 {
		price = pos.EntryPriceMicros
	}
	closeSide := domain.SideSell
	if pos.IsShort() {
		closeSide = domain.SideBuy
	}
	size := pos.SizeSats

	pos.ApplyFill(closeSide, size, price, e.nowMicros())
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return fmt.Errorf("failed to close vanished position %s: %w", pos.ID, err)
	}

	trade := &domain.Trade{
		ID:          uuid.NewString(),
		AccountID:   account.ID,
		Symbol:      pos.Symbol,
		Side:        closeSide,
		PriceMicros: price,
		QtySats:     size,
		IsSynthetic: true,
		ExecUnixM:   e.nowMicros(),
	}
	if err := e.store.AppendTrade(ctx, trade); err != nil {
		return fmt.Errorf("failed to record synthetic close: %w", err)
	}

	e.metrics.ReconCorrections.WithLabelValues("position_closed").Inc()
	e.metrics.OpenPositions.WithLabelValues("live").Dec()
	e.correction(account, pos.Symbol, pos.ID,
		"position absent on exchange, closed locally at last mark")
	return nil
}

// adoptRemotePosition mirrors an exchange position that has no local
// counterpart. A fresh row is created; closed local history is never
// reopened.
func (e *Engine) adoptRemotePosition(ctx context.Context, account *domain.Account, rp infra.RemotePosition) error {
	unlock := e.store.Locks().Lock(storage.PositionKey(account.ID, rp.Symbol, false))
	defer unlock()

	now := e.nowMicros()
	pos := &domain.Position{
		ID:                uuid.NewString(),
		AccountID:         account.ID,
		Symbol:            rp.Symbol,
		Side:              rp.Side,
		SizeSats:          rp.SizeSats,
		EntryPriceMicros:  rp.EntryPriceMicros,
		Status:            domain.PositionOpen,
		ProtectionPending: true, // unknown provenance, assume unprotected
		CreatedUnixM:      now,
		UpdatedUnixM:      now,
	}
	pos.RefreshUnrealized(rp.MarkPriceMicros)
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return fmt.Errorf("failed to adopt remote position %s: %w", rp.Symbol, err)
	}

	e.metrics.ReconCorrections.WithLabelValues("position_adopted").Inc()
	e.metrics.OpenPositions.WithLabelValues("live").Inc()
	e.correction(account, rp.Symbol, pos.ID,
		"position exists on exchange but not locally, adopted")
	return nil
}

// alignPosition overwrites local size, entry and mark with the remote
// values when they disagree.
func (e *Engine) alignPosition(ctx context.Context, account *domain.Account, pos *domain.Position, rp infra.RemotePosition) (int, error) {
	drifted := pos.SizeSats != rp.SizeSats ||
		pos.EntryPriceMicros != rp.EntryPriceMicros ||
		pos.Side != rp.Side

	unlock := e.store.Locks().Lock(storage.PositionKey(account.ID, pos.Symbol, false))
	defer unlock()

	pos.Side = rp.Side
	pos.SizeSats = rp.SizeSats
	pos.EntryPriceMicros = rp.EntryPriceMicros
	pos.RefreshUnrealized(rp.MarkPriceMicros)
	pos.UpdatedUnixM = e.nowMicros()
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return 0, fmt.Errorf("failed to align position %s: %w", pos.ID, err)
	}
	if !drifted {
		return 0, nil
	}
	e.metrics.ReconCorrections.WithLabelValues("position_aligned").Inc()
	e.correction(account, pos.Symbol, pos.ID, "position size or entry drifted, aligned to exchange")
	return 1, nil
}

// reconcileOrders adopts remote status for local open orders. An order
// the exchange no longer works is marked cancelled; if it actually
// filled, the position diff above already captured the exposure.
func (e *Engine) reconcileOrders(ctx context.Context, account *domain.Account, remote []infra.RemoteOrder) (int, error) {
	local, err := e.store.ListOpenOrders(ctx, account.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list open orders: %w", err)
	}

	remoteByID := make(map[string]infra.RemoteOrder, len(remote))
	for _, ro := range remote {
		remoteByID[ro.ExchangeOrderID] = ro
	}

	corrections := 0
	for _, o := range local {
		if o.IsPaper || o.ExchangeOrderID == "" {
			continue
		}
		ro, ok := remoteByID[o.ExchangeOrderID]
		if !ok {
			o.Status = domain.OrderCancelled
			o.UpdatedUnixM = e.nowMicros()
			if err := e.store.UpdateOrder(ctx, o); err != nil {
				return corrections, fmt.Errorf("failed to update order %s: %w", o.ID, err)
			}
			corrections++
			e.metrics.ReconCorrections.WithLabelValues("order_status").Inc()
			e.correction(account, o.Symbol, o.ID, "order no longer on exchange, marked cancelled")
			continue
		}
		if ro.Status != o.Status || ro.FilledSats != o.FilledSats {
			o.Status = ro.Status
			o.FilledSats = ro.FilledSats
			if ro.AvgPriceMicros > 0 {
				o.AvgPriceMicros = ro.AvgPriceMicros
			}
			o.UpdatedUnixM = e.nowMicros()
			if err := e.store.UpdateOrder(ctx, o); err != nil {
				return corrections, fmt.Errorf("failed to update order %s: %w", o.ID, err)
			}
			corrections++
			e.metrics.ReconCorrections.WithLabelValues("order_status").Inc()
			e.correction(account, o.Symbol, o.ID, "order status adopted from exchange")
		}
	}
	return corrections, nil
}

func (e *Engine) correction(account *domain.Account, symbol, refID, detail string) {
	e.log.Warn("reconciliation correction",
		slog.String("account", account.ID),
		slog.String("symbol", symbol),
		slog.String("ref", refID),
		slog.String("detail", detail))
	if e.bus == nil {
		return
	}
	e.bus.Publish(domain.Event{
		Type:      domain.EvReconCorrection,
		AccountID: account.ID,
		Symbol:    symbol,
		IsPaper:   account.IsPaperTrading,
		Severity:  "WARN",
		Detail:    detail,
		Ts:        e.nowMicros(),
	})
}

func (e *Engine) nowMicros() quant.TimeStamp {
	return quant.TimeStamp(e.now().UnixMicro())
}
