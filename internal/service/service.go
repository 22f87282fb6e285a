// Package service orchestrates one trading decision from risk check to
// protected position. It owns the order lifecycle, the retry policy and
// the position book updates; adapters own the exchange surface.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"futures_agent/internal/domain"
	"futures_agent/internal/event"
	"futures_agent/internal/execution"
	"futures_agent/internal/storage"
	"futures_agent/internal/telemetry"
	"futures_agent/pkg/quant"
)

// Store is the persistence surface the service needs. *storage.Store
// satisfies it.
type Store interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	CreateOrder(ctx context.Context, o *domain.Order) error
	UpdateOrder(ctx context.Context, o *domain.Order) error
	ListOpenOrders(ctx context.Context, accountID string) ([]*domain.Order, error)
	AppendTrade(ctx context.Context, t *domain.Trade) error
	GetOpenPosition(ctx context.Context, accountID, symbol string, isPaper bool) (*domain.Position, error)
	SavePosition(ctx context.Context, p *domain.Position) error
	ListOpenPositions(ctx context.Context, accountID string) ([]*domain.Position, error)
	Locks() *storage.KeyedLock
}

// RiskChecker validates a decision before any order exists.
type RiskChecker interface {
	Check(ctx context.Context, account *domain.Account, decision *domain.TradingDecision) error
}

// AdapterFactory selects the execution adapter for an account.
type AdapterFactory interface {
	For(account *domain.Account) execution.Adapter
}

// RetryPolicy bounds the retry loop around exchange write calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// ExecutionService turns trading decisions into orders, trades and
// positions.
type ExecutionService struct {
	store   Store
	guard   RiskChecker
	factory AdapterFactory
	bus     *event.Bus
	metrics *telemetry.Metrics
	retry   RetryPolicy
	log     *slog.Logger
	now     func() time.Time
}

// NewExecutionService wires the orchestrator.
func NewExecutionService(store Store, guard RiskChecker, factory AdapterFactory, bus *event.Bus, metrics *telemetry.Metrics, retry RetryPolicy, log *slog.Logger) *ExecutionService {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &ExecutionService{
		store:   store,
		guard:   guard,
		factory: factory,
		bus:     bus,
		metrics: metrics,
		retry:   retry,
		log:     log,
		now:     time.Now,
	}
}

// Execute runs one decision end to end: risk check, primary order with
// bounded retry, trade record, position update, protective orders.
//
// A risk rejection or a failed primary comes back as an unsuccessful
// result, not an error; the error return is for infrastructure faults
// where the outcome is unknown. A filled primary whose protective legs
// could not be placed still reports success, with ProtectionPending set.
func (s *ExecutionService) Execute(ctx context.Context, decision *domain.TradingDecision) (*domain.ExecutionResult, error) {
	started := s.now()
	defer func() {
		s.metrics.ExecuteSeconds.Observe(s.now().Sub(started).Seconds())
	}()

	account, err := s.store.GetAccount(ctx, decision.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", decision.AccountID, err)
	}
	adapter := s.factory.For(account)
	mode := telemetry.Mode(account.IsPaperTrading)

	if err := s.guard.Check(ctx, account, decision); err != nil {
		if domain.IsRiskRejected(err) {
			rre := err.(*domain.RiskRejectedError)
			s.log.Info("decision rejected",
				slog.String("account", account.ID),
				slog.String("symbol", decision.Symbol),
				slog.String("reason", rre.Reason))
			s.metrics.Orders.WithLabelValues(mode, "rejected").Inc()
			return &domain.ExecutionResult{
				Success:      false,
				RejectReason: rre.Reason,
				Error:        rre.Detail,
				IsPaper:      account.IsPaperTrading,
			}, nil
		}
		return nil, fmt.Errorf("risk check failed: %w", err)
	}

	order := s.newPrimaryOrder(account, decision)
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}
	s.publish(domain.EvOrderPlaced, account, decision.Symbol, order.ID, "", "INFO", "")

	var fill execution.PrimaryFill
	err = s.withRetry(ctx, "place_primary", func() error {
		var perr error
		fill, perr = adapter.PlacePrimary(ctx, decision, order.ID)
		return perr
	})
	if err != nil {
		order.Status = domain.OrderFailed
		order.UpdatedUnixM = s.nowMicros()
		if uerr := s.store.UpdateOrder(ctx, order); uerr != nil {
			s.log.Error("failed to mark order failed",
				slog.String("order", order.ID), slog.Any("error", uerr))
		}
		s.metrics.Orders.WithLabelValues(mode, "failed").Inc()
		s.publish(domain.EvOrderFailed, account, decision.Symbol, order.ID, "", "WARN",
			fmt.Sprintf("primary failed: %v", err))
		return &domain.ExecutionResult{
			Success: false,
			OrderID: order.ID,
			Error:   (&domain.ExecutionFailedError{OrderID: order.ID, Err: err}).Error(),
			IsPaper: account.IsPaperTrading,
		}, nil
	}

	order.Status = domain.OrderFilled
	order.FilledSats = fill.FilledSats
	order.AvgPriceMicros = fill.AvgPriceMicros
	order.ExchangeOrderID = fill.ExchangeOrderID
	order.UpdatedUnixM = s.nowMicros()
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("order %s filled but not persisted: %w", order.ID, err)
	}
	s.metrics.Orders.WithLabelValues(mode, "filled").Inc()

	trade := &domain.Trade{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		AccountID:   account.ID,
		Symbol:      decision.Symbol,
		Side:        decision.Side,
		PriceMicros: fill.AvgPriceMicros,
		QtySats:     fill.FilledSats,
		FeeMicros:   fill.FeeMicros,
		IsPaper:     account.IsPaperTrading,
		ExecUnixM:   fill.Ts,
	}
	if err := s.store.AppendTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to record trade for order %s: %w", order.ID, err)
	}
	s.publish(domain.EvOrderFilled, account, decision.Symbol, order.ID, "", "INFO", "")

	position, err := s.applyFillToPosition(ctx, account, decision, fill)
	if err != nil {
		return nil, err
	}

	result := &domain.ExecutionResult{
		Success:    true,
		OrderID:    order.ID,
		PositionID: position.ID,
		IsPaper:    account.IsPaperTrading,
	}

	if decision.HasProtection() && position.Status == domain.PositionOpen {
		tpID, slID, perr := s.placeProtection(ctx, account, adapter, position, order, decision)
		result.TpOrderID = tpID
		result.SlOrderID = slID
		if perr != nil {
			result.ProtectionPending = true
			result.Warnings = append(result.Warnings, perr.Error())
		}
	}

	s.log.Info("execution complete",
		slog.String("account", account.ID),
		slog.String("symbol", decision.Symbol),
		slog.String("order", order.ID),
		slog.String("mode", adapter.Mode()),
		slog.Bool("protection_pending", result.ProtectionPending))
	return result, nil
}

// applyFillToPosition folds the fill into the open position for the
// (account, symbol, mode) key, creating or closing it as needed. The
// keyed lock serializes writers so reconciliation and execution cannot
// interleave on the same position.
func (s *ExecutionService) applyFillToPosition(ctx context.Context, account *domain.Account, decision *domain.TradingDecision, fill execution.PrimaryFill) (*domain.Position, error) {
	unlock := s.store.Locks().Lock(storage.PositionKey(account.ID, decision.Symbol, account.IsPaperTrading))
	defer unlock()

	position, err := s.store.GetOpenPosition(ctx, account.ID, decision.Symbol, account.IsPaperTrading)
	created := false
	if err == domain.ErrNotFound {
		created = true
		position = &domain.Position{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			Symbol:       decision.Symbol,
			Status:       domain.PositionOpen,
			IsPaper:      account.IsPaperTrading,
			CreatedUnixM: fill.Ts,
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}

	position.ApplyFill(decision.Side, fill.FilledSats, fill.AvgPriceMicros, fill.Ts)
	if err := s.store.SavePosition(ctx, position); err != nil {
		return nil, fmt.Errorf("failed to save position %s: %w", position.ID, err)
	}

	switch {
	case created:
		s.metrics.OpenPositions.WithLabelValues(telemetry.Mode(account.IsPaperTrading)).Inc()
		s.publish(domain.EvPositionOpened, account, decision.Symbol, "", position.ID, "INFO", "")
	case position.Status == domain.PositionClosed:
		s.metrics.OpenPositions.WithLabelValues(telemetry.Mode(account.IsPaperTrading)).Dec()
		s.publish(domain.EvPositionClosed, account, decision.Symbol, "", position.ID, "INFO",
			fmt.Sprintf("realized %s", position.RealizedMicros))
	default:
		s.publish(domain.EvPositionUpdated, account, decision.Symbol, "", position.ID, "INFO", "")
	}
	return position, nil
}

// placeProtection submits the TP/SL legs with the same bounded retry as
// the primary. Failure marks the position ProtectionPending instead of
// failing the execution; the primary fill already happened and must not
// be rolled back.
func (s *ExecutionService) placeProtection(ctx context.Context, account *domain.Account, adapter execution.Adapter, position *domain.Position, primary *domain.Order, decision *domain.TradingDecision) (string, string, error) {
	// Legs that reached the exchange on an earlier attempt carry their
	// ids in res; a retry requests only the missing ones, so a transient
	// stop-loss failure never duplicates an already-live take-profit.
	var res execution.ProtectiveResult
	err := s.withRetry(ctx, "place_protective", func() error {
		tp, sl := decision.TpPriceMicros, decision.SlPriceMicros
		if res.TpExchangeOrderID != "" {
			tp = 0
		}
		if res.SlExchangeOrderID != "" {
			sl = 0
		}
		got, perr := adapter.PlaceProtective(ctx, position, tp, sl)
		if got.TpExchangeOrderID != "" {
			res.TpExchangeOrderID = got.TpExchangeOrderID
		}
		if got.SlExchangeOrderID != "" {
			res.SlExchangeOrderID = got.SlExchangeOrderID
		}
		return perr
	})
	// Record every leg that reached the exchange, even when the other
	// failed: a live leg without a local row would be invisible to
	// cancellation and reconciliation.
	closeSide := domain.SideSell
	if position.IsShort() {
		closeSide = domain.SideBuy
	}
	var tpID, slID string
	if res.TpExchangeOrderID != "" {
		tpID = s.recordProtectiveOrder(ctx, account, primary, closeSide,
			domain.OrderTypeTakeProfit, decision.TpPriceMicros, position.SizeSats, res.TpExchangeOrderID)
	}
	if res.SlExchangeOrderID != "" {
		slID = s.recordProtectiveOrder(ctx, account, primary, closeSide,
			domain.OrderTypeStopLoss, decision.SlPriceMicros, position.SizeSats, res.SlExchangeOrderID)
	}

	if err != nil {
		position.ProtectionPending = true
		position.UpdatedUnixM = s.nowMicros()
		if serr := s.store.SavePosition(ctx, position); serr != nil {
			s.log.Error("failed to flag unprotected position",
				slog.String("position", position.ID), slog.Any("error", serr))
		}
		s.metrics.ProtectionPending.WithLabelValues(telemetry.Mode(account.IsPaperTrading)).Inc()
		severity := "CRITICAL"
		if account.IsPaperTrading {
			severity = "WARN"
		}
		s.publish(domain.EvProtectionPending, account, position.Symbol, primary.ID, position.ID,
			severity, err.Error())
		return tpID, slID, &domain.ProtectionFailedError{PositionID: position.ID, Err: err}
	}

	if position.ProtectionPending {
		position.ProtectionPending = false
		position.UpdatedUnixM = s.nowMicros()
		if serr := s.store.SavePosition(ctx, position); serr != nil {
			s.log.Error("failed to clear protection flag",
				slog.String("position", position.ID), slog.Any("error", serr))
		}
	}
	return tpID, slID, nil
}

// recordProtectiveOrder persists the local row for one protective leg.
// A persistence failure here is logged, not fatal: the exchange order
// exists and reconciliation will adopt it.
func (s *ExecutionService) recordProtectiveOrder(ctx context.Context, account *domain.Account, primary *domain.Order, side, orderType string, trigger quant.PriceMicros, qty quant.QtySats, exchangeID string) string {
	o := &domain.Order{
		ID:              uuid.NewString(),
		AccountID:       account.ID,
		Symbol:          primary.Symbol,
		Side:            side,
		Type:            orderType,
		Status:          domain.OrderSubmitted,
		RequestedSats:   qty,
		TriggerMicros:   trigger,
		ExchangeOrderID: exchangeID,
		ParentOrderID:   primary.ID,
		IsPaper:         account.IsPaperTrading,
		CreatedUnixM:    s.nowMicros(),
		UpdatedUnixM:    s.nowMicros(),
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		s.log.Error("failed to persist protective order",
			slog.String("type", orderType),
			slog.String("exchange_order", exchangeID),
			slog.Any("error", err))
		return ""
	}
	return o.ID
}

// withRetry runs fn with exponential backoff. Only transient failures
// are retried; permanent errors and risk rejections return immediately.
func (s *ExecutionService) withRetry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retry.BaseDelay
	bo.MaxInterval = s.retry.MaxDelay

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) || attempt >= s.retry.MaxAttempts {
			return err
		}
		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			return err
		}
		s.log.Warn("retrying after transient failure",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *ExecutionService) newPrimaryOrder(account *domain.Account, decision *domain.TradingDecision) *domain.Order {
	now := s.nowMicros()
	return &domain.Order{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		Symbol:        decision.Symbol,
		Side:          decision.Side,
		Type:          domain.OrderTypeMarket,
		Status:        domain.OrderPending,
		RequestedSats: decision.QtySats,
		IsPaper:       account.IsPaperTrading,
		CreatedUnixM:  now,
		UpdatedUnixM:  now,
	}
}

func (s *ExecutionService) publish(t domain.EventType, account *domain.Account, symbol, orderID, positionID, severity, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.Event{
		Type:       t,
		AccountID:  account.ID,
		Symbol:     symbol,
		OrderID:    orderID,
		PositionID: positionID,
		IsPaper:    account.IsPaperTrading,
		Severity:   severity,
		Detail:     detail,
		Ts:         s.nowMicros(),
	})
}

func (s *ExecutionService) nowMicros() quant.TimeStamp {
	return quant.TimeStamp(s.now().UnixMicro())
}
