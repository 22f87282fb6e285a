package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"futures_agent/internal/domain"
	"futures_agent/internal/infra"
	"futures_agent/pkg/quant"
)

// Gateway is the exchange surface the live adapter needs. Satisfied by
// *infra.Gateway; tests substitute a counting stub.
type Gateway interface {
	PlaceOrder(ctx context.Context, spec infra.OrderSpec) (infra.OrderAck, error)
	CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error
	GetOrder(ctx context.Context, exchangeOrderID, symbol string) (infra.RemoteOrder, error)
	ListPositions(ctx context.Context) ([]infra.RemotePosition, error)
	ListOpenOrders(ctx context.Context) ([]infra.RemoteOrder, error)
}

// LiveAdapter executes real orders through the exchange gateway.
type LiveAdapter struct {
	gateway      Gateway
	fillTimeout  time.Duration
	pollInterval time.Duration
}

// NewLiveAdapter creates a live adapter.
func NewLiveAdapter(gateway Gateway, fillTimeout time.Duration) *LiveAdapter {
	return &LiveAdapter{
		gateway:      gateway,
		fillTimeout:  fillTimeout,
		pollInterval: 500 * time.Millisecond,
	}
}

func (l *LiveAdapter) Mode() string { return "LIVE" }

// PlacePrimary submits a real market order and polls for the fill up to
// the configured timeout. A timeout is transient: the order may still
// have executed, and reconciliation detects that case.
func (l *LiveAdapter) PlacePrimary(ctx context.Context, decision *domain.TradingDecision, clientOrderID string) (PrimaryFill, error) {
	ack, err := l.gateway.PlaceOrder(ctx, infra.OrderSpec{
		Symbol:        decision.Symbol,
		Side:          decision.Side,
		Type:          domain.OrderTypeMarket,
		QtySats:       decision.QtySats,
		ReduceOnly:    decision.ReduceOnly,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		return PrimaryFill{}, err
	}

	slog.Info("LIVE: order submitted",
		slog.String("order", clientOrderID),
		slog.String("exchange_order", ack.ExchangeOrderID),
		slog.String("symbol", decision.Symbol))

	return l.awaitFill(ctx, ack.ExchangeOrderID, decision.Symbol)
}

// awaitFill polls order state until filled, rejected or timed out.
func (l *LiveAdapter) awaitFill(ctx context.Context, exchangeOrderID, symbol string) (PrimaryFill, error) {
	deadline := time.NewTimer(l.fillTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		remote, err := l.gateway.GetOrder(ctx, exchangeOrderID, symbol)
		if err == nil {
			switch remote.Status {
			case domain.OrderFilled:
				return PrimaryFill{
					ExchangeOrderID: exchangeOrderID,
					FilledSats:      remote.FilledSats,
					AvgPriceMicros:  remote.AvgPriceMicros,
					FeeMicros:       remote.FeeMicros,
					Ts:              quant.TimeStamp(time.Now().UnixMicro()),
				}, nil
			case domain.OrderCancelled, domain.OrderRejected:
				return PrimaryFill{}, fmt.Errorf("exchange %s order %s",
					remote.Status, exchangeOrderID)
			}
		} else if !domain.IsTransient(err) {
			return PrimaryFill{}, err
		}

		select {
		case <-ctx.Done():
			return PrimaryFill{}, &domain.TransientError{Op: "await_fill", Err: ctx.Err()}
		case <-deadline.C:
			// Not confirmed non-execution: reconciliation is the backstop.
			return PrimaryFill{}, &domain.TransientError{
				Op:  "await_fill",
				Err: fmt.Errorf("order %s not confirmed within %s", exchangeOrderID, l.fillTimeout),
			}
		case <-ticker.C:
		}
	}
}

// PlaceProtective submits TP/SL conditional orders. Callers guarantee the
// primary fill is confirmed before this runs.
func (l *LiveAdapter) PlaceProtective(ctx context.Context, position *domain.Position, tp, sl quant.PriceMicros) (ProtectiveResult, error) {
	closeSide := domain.SideSell
	if position.IsShort() {
		closeSide = domain.SideBuy
	}

	var result ProtectiveResult
	if tp > 0 {
		ack, err := l.gateway.PlaceOrder(ctx, infra.OrderSpec{
			Symbol:        position.Symbol,
			Side:          closeSide,
			Type:          domain.OrderTypeTakeProfit,
			QtySats:       position.SizeSats,
			TriggerMicros: tp,
			ReduceOnly:    true,
		})
		if err != nil {
			return result, fmt.Errorf("take-profit placement: %w", err)
		}
		result.TpExchangeOrderID = ack.ExchangeOrderID
	}
	if sl > 0 {
		ack, err := l.gateway.PlaceOrder(ctx, infra.OrderSpec{
			Symbol:        position.Symbol,
			Side:          closeSide,
			Type:          domain.OrderTypeStopLoss,
			QtySats:       position.SizeSats,
			TriggerMicros: sl,
			ReduceOnly:    true,
		})
		if err != nil {
			// The TP may already be live; the caller retries only the
			// missing legs via the partial result.
			return result, fmt.Errorf("stop-loss placement: %w", err)
		}
		result.SlExchangeOrderID = ack.ExchangeOrderID
	}
	return result, nil
}

// CancelOrder cancels a live order.
func (l *LiveAdapter) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error {
	return l.gateway.CancelOrder(ctx, exchangeOrderID, symbol)
}

// SyncRemoteState lists live positions and open orders.
func (l *LiveAdapter) SyncRemoteState(ctx context.Context, accountID string) (RemoteSnapshot, error) {
	positions, err := l.gateway.ListPositions(ctx)
	if err != nil {
		return RemoteSnapshot{}, fmt.Errorf("failed to list positions: %w", err)
	}
	orders, err := l.gateway.ListOpenOrders(ctx)
	if err != nil {
		return RemoteSnapshot{}, fmt.Errorf("failed to list open orders: %w", err)
	}
	return RemoteSnapshot{Positions: positions, OpenOrders: orders}, nil
}
