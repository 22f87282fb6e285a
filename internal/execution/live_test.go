package execution

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"futures_agent/internal/domain"
	"futures_agent/internal/infra"
	"futures_agent/pkg/quant"
)

// fakeGateway counts calls and scripts fill behavior.
type fakeGateway struct {
	mu          sync.Mutex
	placed      []infra.OrderSpec
	cancelled   []string
	fillAfter   int // GetOrder polls before reporting filled
	polls       int
	rejectOrder bool
	failType    string // order type whose placement fails transiently
	failLeft    int    // how many times failType fails before succeeding
	positions   []infra.RemotePosition
	openOrders  []infra.RemoteOrder
}

func (f *fakeGateway) PlaceOrder(_ context.Context, spec infra.OrderSpec) (infra.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectOrder {
		return infra.OrderAck{}, fmt.Errorf("exchange rejected order: insufficient margin")
	}
	if spec.Type == f.failType && f.failLeft > 0 {
		f.failLeft--
		return infra.OrderAck{}, &domain.TransientError{Op: "place_order", Err: fmt.Errorf("503")}
	}
	f.placed = append(f.placed, spec)
	return infra.OrderAck{ExchangeOrderID: fmt.Sprintf("ex-%d", len(f.placed))}, nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, exchangeOrderID, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, exchangeOrderID)
	return nil
}

func (f *fakeGateway) GetOrder(_ context.Context, exchangeOrderID, symbol string) (infra.RemoteOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.polls <= f.fillAfter {
		return infra.RemoteOrder{ExchangeOrderID: exchangeOrderID, Status: domain.OrderSubmitted}, nil
	}
	return infra.RemoteOrder{
		ExchangeOrderID: exchangeOrderID,
		Status:          domain.OrderFilled,
		FilledSats:      quant.ToQtySats(0.1),
		AvgPriceMicros:  quant.ToPriceMicros(65000),
		FeeMicros:       quant.ToPriceMicros(3.9),
	}, nil
}

func (f *fakeGateway) ListPositions(_ context.Context) ([]infra.RemotePosition, error) {
	return f.positions, nil
}

func (f *fakeGateway) ListOpenOrders(_ context.Context) ([]infra.RemoteOrder, error) {
	return f.openOrders, nil
}

func (f *fakeGateway) writeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed) + len(f.cancelled)
}

func testLiveAdapter(gw *fakeGateway) *LiveAdapter {
	l := NewLiveAdapter(gw, 2*time.Second)
	l.pollInterval = time.Millisecond
	return l
}

func TestLiveAdapter_PlacePrimaryConfirmsFill(t *testing.T) {
	gw := &fakeGateway{fillAfter: 2}
	l := testLiveAdapter(gw)

	fill, err := l.PlacePrimary(context.Background(), &domain.TradingDecision{
		AccountID: "acc-1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		QtySats: quant.ToQtySats(0.1),
	}, "ord-1")
	if err != nil {
		t.Fatalf("PlacePrimary() error: %v", err)
	}
	if fill.AvgPriceMicros != quant.ToPriceMicros(65000) {
		t.Errorf("fill price = %s, want 65000", fill.AvgPriceMicros)
	}
	if len(gw.placed) != 1 {
		t.Errorf("placed %d orders, want 1", len(gw.placed))
	}
	if gw.placed[0].Type != domain.OrderTypeMarket {
		t.Errorf("order type = %s, want MARKET", gw.placed[0].Type)
	}
}

func TestLiveAdapter_FillTimeoutIsTransient(t *testing.T) {
	gw := &fakeGateway{fillAfter: 1 << 30} // never fills
	l := NewLiveAdapter(gw, 20*time.Millisecond)
	l.pollInterval = time.Millisecond

	_, err := l.PlacePrimary(context.Background(), &domain.TradingDecision{
		AccountID: "acc-1", Symbol: "BTCUSDT", Side: domain.SideBuy, QtySats: 1,
	}, "ord-1")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !domain.IsTransient(err) {
		t.Errorf("fill timeout must be transient, got %v", err)
	}
}

func TestLiveAdapter_ProtectiveLegsAreReduceOnly(t *testing.T) {
	gw := &fakeGateway{}
	l := testLiveAdapter(gw)

	pos := &domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideBuy,
		SizeSats: quant.ToQtySats(0.1), Status: domain.PositionOpen,
	}
	res, err := l.PlaceProtective(context.Background(), pos,
		quant.ToPriceMicros(70000), quant.ToPriceMicros(60000))
	if err != nil {
		t.Fatalf("PlaceProtective() error: %v", err)
	}
	if res.TpExchangeOrderID == "" || res.SlExchangeOrderID == "" {
		t.Fatalf("missing protective ids: %+v", res)
	}

	if len(gw.placed) != 2 {
		t.Fatalf("placed %d orders, want 2", len(gw.placed))
	}
	for _, spec := range gw.placed {
		if !spec.ReduceOnly {
			t.Errorf("protective %s not reduce-only", spec.Type)
		}
		if spec.Side != domain.SideSell {
			t.Errorf("protective side = %s, want SELL closing a long", spec.Side)
		}
	}
}

func TestLiveAdapter_PartialProtectiveResultOnStopLossFailure(t *testing.T) {
	gw := &fakeGateway{failType: domain.OrderTypeStopLoss, failLeft: 1}
	l := testLiveAdapter(gw)

	pos := &domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideBuy,
		SizeSats: quant.ToQtySats(0.1), Status: domain.PositionOpen,
	}
	res, err := l.PlaceProtective(context.Background(), pos,
		quant.ToPriceMicros(70000), quant.ToPriceMicros(60000))
	if err == nil {
		t.Fatal("expected stop-loss placement error")
	}
	if res.TpExchangeOrderID == "" {
		t.Error("partial result must carry the live take-profit id")
	}
	if res.SlExchangeOrderID != "" {
		t.Errorf("stop-loss id = %s, want empty", res.SlExchangeOrderID)
	}

	// A retry for the missing leg alone leaves a single take-profit live.
	res2, err := l.PlaceProtective(context.Background(), pos, 0, quant.ToPriceMicros(60000))
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if res2.SlExchangeOrderID == "" {
		t.Error("retry did not place the stop-loss")
	}
	var tps int
	for _, spec := range gw.placed {
		if spec.Type == domain.OrderTypeTakeProfit {
			tps++
		}
	}
	if tps != 1 {
		t.Errorf("exchange holds %d take-profit orders, want 1", tps)
	}
}

func TestFactory_SelectsAdapterByAccount(t *testing.T) {
	cfg := infra.DefaultConfig()
	live := testLiveAdapter(&fakeGateway{})
	f := NewFactory(cfg, &stubQuotes{}, live)

	paperAcc := &domain.Account{ID: "paper-1", IsPaperTrading: true}
	liveAcc := &domain.Account{ID: "live-1"}

	if got := f.For(liveAcc); got != Adapter(live) {
		t.Error("live account should resolve to the live adapter")
	}
	p1 := f.For(paperAcc)
	if p1.Mode() != "PAPER" {
		t.Errorf("paper account resolved to %s adapter", p1.Mode())
	}
	if p2 := f.For(paperAcc); p1 != p2 {
		t.Error("paper adapter must be stable per account")
	}
}

func TestFactory_PaperExecutionNeverWritesToExchange(t *testing.T) {
	gw := &fakeGateway{}
	f := NewFactory(infra.DefaultConfig(), &stubQuotes{
		bid: quant.ToPriceMicros(64999),
		ask: quant.ToPriceMicros(65000),
	}, testLiveAdapter(gw))

	adapter := f.For(&domain.Account{ID: "paper-1", IsPaperTrading: true})
	ctx := context.Background()

	if _, err := adapter.PlacePrimary(ctx, &domain.TradingDecision{
		AccountID: "paper-1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		QtySats: quant.ToQtySats(0.1),
	}, "ord-1"); err != nil {
		t.Fatalf("PlacePrimary() error: %v", err)
	}

	pos := &domain.Position{
		AccountID: "paper-1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		SizeSats: quant.ToQtySats(0.1), Status: domain.PositionOpen, IsPaper: true,
	}
	res, err := adapter.PlaceProtective(ctx, pos,
		quant.ToPriceMicros(70000), quant.ToPriceMicros(60000))
	if err != nil {
		t.Fatalf("PlaceProtective() error: %v", err)
	}
	if err := adapter.CancelOrder(ctx, res.TpExchangeOrderID, "BTCUSDT"); err != nil {
		t.Fatalf("CancelOrder() error: %v", err)
	}
	if _, err := adapter.SyncRemoteState(ctx, "paper-1"); err != nil {
		t.Fatalf("SyncRemoteState() error: %v", err)
	}

	if n := gw.writeCalls(); n != 0 {
		t.Errorf("paper execution reached the exchange gateway %d times, want 0", n)
	}
}
