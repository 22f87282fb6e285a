package execution

import (
	"context"
	"testing"

	"futures_agent/internal/domain"
	"futures_agent/internal/infra"
	"futures_agent/pkg/quant"
)

type stubQuotes struct {
	bid quant.PriceMicros
	ask quant.PriceMicros
}

func (s *stubQuotes) BestQuote(_ context.Context, symbol string) (infra.Quote, error) {
	return infra.Quote{Symbol: symbol, BidMicros: s.bid, AskMicros: s.ask}, nil
}

func TestPaperAdapter_FillsAtBestAsk(t *testing.T) {
	p := NewPaperAdapter(&stubQuotes{
		bid: quant.ToPriceMicros(64999),
		ask: quant.ToPriceMicros(65000),
	}, 6)

	fill, err := p.PlacePrimary(context.Background(), &domain.TradingDecision{
		AccountID: "acc-1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		QtySats: quant.ToQtySats(0.1),
	}, "ord-1")
	if err != nil {
		t.Fatalf("PlacePrimary() error: %v", err)
	}

	if fill.AvgPriceMicros != quant.ToPriceMicros(65000) {
		t.Errorf("buy fill price = %s, want ask 65000", fill.AvgPriceMicros)
	}
	if fill.FilledSats != quant.ToQtySats(0.1) {
		t.Errorf("filled = %s, want full 0.1", fill.FilledSats)
	}
	// 6 bps of 6500 USDT notional = 3.9 USDT.
	if fill.FeeMicros != quant.ToPriceMicros(3.9) {
		t.Errorf("fee = %s, want 3.9", fill.FeeMicros)
	}
}

func TestPaperAdapter_FillsAtBestBid(t *testing.T) {
	p := NewPaperAdapter(&stubQuotes{
		bid: quant.ToPriceMicros(64999),
		ask: quant.ToPriceMicros(65000),
	}, 0)

	fill, err := p.PlacePrimary(context.Background(), &domain.TradingDecision{
		AccountID: "acc-1", Symbol: "BTCUSDT", Side: domain.SideSell,
		QtySats: quant.ToQtySats(0.1),
	}, "ord-1")
	if err != nil {
		t.Fatalf("PlacePrimary() error: %v", err)
	}
	if fill.AvgPriceMicros != quant.ToPriceMicros(64999) {
		t.Errorf("sell fill price = %s, want bid 64999", fill.AvgPriceMicros)
	}
}

func TestPaperAdapter_BookTracksPositions(t *testing.T) {
	p := NewPaperAdapter(&stubQuotes{
		bid: quant.ToPriceMicros(64999),
		ask: quant.ToPriceMicros(65000),
	}, 0)
	ctx := context.Background()

	decision := &domain.TradingDecision{
		AccountID: "acc-1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		QtySats: quant.ToQtySats(0.1),
	}
	if _, err := p.PlacePrimary(ctx, decision, "ord-1"); err != nil {
		t.Fatal(err)
	}

	snap, err := p.SyncRemoteState(ctx, "acc-1")
	if err != nil {
		t.Fatalf("SyncRemoteState() error: %v", err)
	}
	if len(snap.Positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(snap.Positions))
	}
	if snap.Positions[0].SizeSats != quant.ToQtySats(0.1) {
		t.Errorf("book size = %s, want 0.1", snap.Positions[0].SizeSats)
	}

	// Selling the full size closes the book entry.
	sell := &domain.TradingDecision{
		AccountID: "acc-1", Symbol: "BTCUSDT", Side: domain.SideSell,
		QtySats: quant.ToQtySats(0.1), ReduceOnly: true,
	}
	if _, err := p.PlacePrimary(ctx, sell, "ord-2"); err != nil {
		t.Fatal(err)
	}
	snap, _ = p.SyncRemoteState(ctx, "acc-1")
	if len(snap.Positions) != 0 {
		t.Errorf("closed position still in book: %+v", snap.Positions)
	}
}

func TestPaperAdapter_ProtectiveLegs(t *testing.T) {
	p := NewPaperAdapter(&stubQuotes{
		bid: quant.ToPriceMicros(64999),
		ask: quant.ToPriceMicros(65000),
	}, 0)
	ctx := context.Background()

	pos := &domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideBuy,
		SizeSats: quant.ToQtySats(0.1), Status: domain.PositionOpen, IsPaper: true,
	}
	res, err := p.PlaceProtective(ctx, pos, quant.ToPriceMicros(70000), quant.ToPriceMicros(60000))
	if err != nil {
		t.Fatalf("PlaceProtective() error: %v", err)
	}
	if res.TpExchangeOrderID == "" || res.SlExchangeOrderID == "" {
		t.Fatalf("missing protective ids: %+v", res)
	}

	snap, _ := p.SyncRemoteState(ctx, "acc-1")
	if len(snap.OpenOrders) != 2 {
		t.Errorf("got %d open orders, want 2", len(snap.OpenOrders))
	}

	if err := p.CancelOrder(ctx, res.TpExchangeOrderID, "BTCUSDT"); err != nil {
		t.Errorf("CancelOrder() error: %v", err)
	}
	if err := p.CancelOrder(ctx, "nope", "BTCUSDT"); err == nil {
		t.Error("cancelling unknown order should fail")
	}
}
