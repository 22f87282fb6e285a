package domain

import (
	"testing"

	"futures_agent/pkg/quant"
)

func TestPosition_Direction(t *testing.T) {
	tests := []struct {
		name    string
		side    string
		isLong  bool
		isShort bool
	}{
		{"Long", SideBuy, true, false},
		{"Short", SideSell, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Position{Side: tt.side}
			if got := p.IsLong(); got != tt.isLong {
				t.Errorf("Position.IsLong() = %v, want %v", got, tt.isLong)
			}
			if got := p.IsShort(); got != tt.isShort {
				t.Errorf("Position.IsShort() = %v, want %v", got, tt.isShort)
			}
		})
	}
}

func TestPosition_ApplyFill_Increase(t *testing.T) {
	p := &Position{Status: PositionOpen}

	realized := p.ApplyFill(SideBuy, quant.ToQtySats(0.1), quant.ToPriceMicros(60000), 1)
	if realized != 0 {
		t.Errorf("opening fill realized %d, want 0", realized)
	}
	if p.Side != SideBuy || p.SizeSats != quant.ToQtySats(0.1) {
		t.Fatalf("position = %s %s, want BUY 0.1", p.Side, p.SizeSats)
	}

	p.ApplyFill(SideBuy, quant.ToQtySats(0.1), quant.ToPriceMicros(70000), 2)
	if p.SizeSats != quant.ToQtySats(0.2) {
		t.Errorf("size = %s, want 0.2", p.SizeSats)
	}
	if p.EntryPriceMicros != quant.ToPriceMicros(65000) {
		t.Errorf("entry = %s, want weighted 65000", p.EntryPriceMicros)
	}
}

func TestPosition_ApplyFill_ReduceAndClose(t *testing.T) {
	p := &Position{Status: PositionOpen}
	p.ApplyFill(SideBuy, quant.ToQtySats(0.2), quant.ToPriceMicros(60000), 1)

	realized := p.ApplyFill(SideSell, quant.ToQtySats(0.1), quant.ToPriceMicros(65000), 2)
	// 0.1 BTC * 5000 USDT profit.
	if realized != quant.ToPriceMicros(500) {
		t.Errorf("realized = %s, want 500", realized)
	}
	if p.Status != PositionOpen || p.SizeSats != quant.ToQtySats(0.1) {
		t.Fatalf("partial reduce left %s size %s", p.Status, p.SizeSats)
	}

	p.ApplyFill(SideSell, quant.ToQtySats(0.1), quant.ToPriceMicros(65000), 3)
	if p.Status != PositionClosed {
		t.Errorf("status = %s, want CLOSED", p.Status)
	}
	if p.SizeSats != 0 {
		t.Errorf("size = %d, want 0", p.SizeSats)
	}
	if p.RealizedMicros != quant.ToPriceMicros(1000) {
		t.Errorf("total realized = %s, want 1000", p.RealizedMicros)
	}
}

func TestPosition_ApplyFill_Flip(t *testing.T) {
	p := &Position{Status: PositionOpen}
	p.ApplyFill(SideBuy, quant.ToQtySats(0.1), quant.ToPriceMicros(60000), 1)

	// Sell 0.3: closes the 0.1 long and opens a 0.2 short at the fill price.
	p.ApplyFill(SideSell, quant.ToQtySats(0.3), quant.ToPriceMicros(62000), 2)
	if !p.IsShort() {
		t.Fatalf("side = %s, want SELL", p.Side)
	}
	if p.SizeSats != quant.ToQtySats(0.2) {
		t.Errorf("size = %s, want 0.2", p.SizeSats)
	}
	if p.EntryPriceMicros != quant.ToPriceMicros(62000) {
		t.Errorf("entry = %s, want 62000", p.EntryPriceMicros)
	}
	if p.RealizedMicros != quant.ToPriceMicros(200) {
		t.Errorf("realized = %s, want 200", p.RealizedMicros)
	}
}

func TestPosition_RefreshUnrealized(t *testing.T) {
	p := &Position{Status: PositionOpen}
	p.ApplyFill(SideSell, quant.ToQtySats(1.0), quant.ToPriceMicros(65000), 1)

	p.RefreshUnrealized(quant.ToPriceMicros(64000))
	if p.UnrealizedMicros != quant.ToPriceMicros(1000) {
		t.Errorf("short uPnL = %s, want 1000", p.UnrealizedMicros)
	}

	p.RefreshUnrealized(quant.ToPriceMicros(66000))
	if p.UnrealizedMicros != quant.ToPriceMicros(-1000) {
		t.Errorf("short uPnL = %s, want -1000", p.UnrealizedMicros)
	}
}
