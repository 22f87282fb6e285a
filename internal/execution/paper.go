package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"futures_agent/internal/domain"
	"futures_agent/internal/infra"
	"futures_agent/pkg/quant"
	"futures_agent/pkg/safe"
)

// paperFill is one simulated execution in the paper book.
type paperFill struct {
	ClientOrderID string
	Symbol        string
	Side          string
	PriceMicros   quant.PriceMicros
	QtySats       quant.QtySats
	Ts            quant.TimeStamp
}

// PaperAdapter simulates execution against live quotes. It holds only a
// QuoteReader, never a write-capable exchange client, so zero exchange
// writes is a property of its construction, not a convention.
type PaperAdapter struct {
	quotes      infra.QuoteReader
	feeBps      int64
	mu          sync.Mutex
	fills       []paperFill
	protectives map[string]infra.RemoteOrder // by exchange id, open TP/SL legs
	positions   map[string]*domain.Position  // by symbol, the paper book
	now         func() time.Time
}

// NewPaperAdapter creates a paper adapter fed by live quotes.
func NewPaperAdapter(quotes infra.QuoteReader, feeBps int64) *PaperAdapter {
	return &PaperAdapter{
		quotes:      quotes,
		feeBps:      feeBps,
		protectives: make(map[string]infra.RemoteOrder),
		positions:   make(map[string]*domain.Position),
		now:         time.Now,
	}
}

func (p *PaperAdapter) Mode() string { return "PAPER" }

// PlacePrimary synthesizes an immediate full fill at the current best ask
// (buy) or best bid (sell), with the estimated taker fee applied.
func (p *PaperAdapter) PlacePrimary(ctx context.Context, decision *domain.TradingDecision, clientOrderID string) (PrimaryFill, error) {
	quote, err := p.quotes.BestQuote(ctx, decision.Symbol)
	if err != nil {
		return PrimaryFill{}, fmt.Errorf("paper fill needs a quote: %w", err)
	}

	price := quote.AskMicros
	if decision.Side == domain.SideSell {
		price = quote.BidMicros
	}
	if price == 0 {
		return PrimaryFill{}, fmt.Errorf("no %s price for %s", decision.Side, decision.Symbol)
	}

	notional := quant.Notional(price, decision.QtySats)
	fee := quant.PriceMicros(safe.Div(safe.Mul(int64(notional), p.feeBps), 10_000))
	ts := quant.TimeStamp(p.now().UnixMicro())

	p.mu.Lock()
	p.fills = append(p.fills, paperFill{
		ClientOrderID: clientOrderID,
		Symbol:        decision.Symbol,
		Side:          decision.Side,
		PriceMicros:   price,
		QtySats:       decision.QtySats,
		Ts:            ts,
	})
	pos, ok := p.positions[decision.Symbol]
	if !ok || pos.Status == domain.PositionClosed {
		pos = &domain.Position{
			AccountID: decision.AccountID,
			Symbol:    decision.Symbol,
			Status:    domain.PositionOpen,
			IsPaper:   true,
		}
		p.positions[decision.Symbol] = pos
	}
	pos.ApplyFill(decision.Side, decision.QtySats, price, ts)
	p.mu.Unlock()

	slog.Info("PAPER: order filled",
		slog.String("order", clientOrderID),
		slog.String("symbol", decision.Symbol),
		slog.String("side", decision.Side),
		slog.String("price", price.String()),
		slog.String("qty", decision.QtySats.String()))

	return PrimaryFill{
		ExchangeOrderID: "paper-" + uuid.NewString(),
		FilledSats:      decision.QtySats,
		AvgPriceMicros:  price,
		FeeMicros:       fee,
		Ts:              ts,
	}, nil
}

// PlaceProtective records simulated TP/SL legs in the paper book.
func (p *PaperAdapter) PlaceProtective(ctx context.Context, position *domain.Position, tp, sl quant.PriceMicros) (ProtectiveResult, error) {
	closeSide := domain.SideSell
	if position.IsShort() {
		closeSide = domain.SideBuy
	}

	var result ProtectiveResult
	p.mu.Lock()
	defer p.mu.Unlock()

	if tp > 0 {
		id := "paper-tp-" + uuid.NewString()
		p.protectives[id] = infra.RemoteOrder{
			ExchangeOrderID: id,
			Symbol:          position.Symbol,
			Side:            closeSide,
			Status:          domain.OrderSubmitted,
		}
		result.TpExchangeOrderID = id
	}
	if sl > 0 {
		id := "paper-sl-" + uuid.NewString()
		p.protectives[id] = infra.RemoteOrder{
			ExchangeOrderID: id,
			Symbol:          position.Symbol,
			Side:            closeSide,
			Status:          domain.OrderSubmitted,
		}
		result.SlExchangeOrderID = id
	}
	return result, nil
}

// CancelOrder removes a simulated protective leg.
func (p *PaperAdapter) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.protectives[exchangeOrderID]; !ok {
		return fmt.Errorf("order not found: %s", exchangeOrderID)
	}
	delete(p.protectives, exchangeOrderID)
	return nil
}

// SyncRemoteState returns the local paper book. No remote call is made;
// paper reconciliation only refreshes prices and unrealized PnL.
func (p *PaperAdapter) SyncRemoteState(ctx context.Context, accountID string) (RemoteSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := RemoteSnapshot{}
	for _, pos := range p.positions {
		if pos.Status != domain.PositionOpen {
			continue
		}
		snap.Positions = append(snap.Positions, infra.RemotePosition{
			Symbol:           pos.Symbol,
			Side:             pos.Side,
			SizeSats:         pos.SizeSats,
			EntryPriceMicros: pos.EntryPriceMicros,
			MarkPriceMicros:  pos.MarkPriceMicros,
		})
	}
	for _, o := range p.protectives {
		snap.OpenOrders = append(snap.OpenOrders, o)
	}
	return snap, nil
}
