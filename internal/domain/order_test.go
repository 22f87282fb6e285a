package domain

import "testing"

func TestOrder_Lifecycle(t *testing.T) {
	tests := []struct {
		status     string
		isOpen     bool
		isTerminal bool
	}{
		{OrderPending, true, false},
		{OrderSubmitted, true, false},
		{OrderPartial, true, false},
		{OrderFilled, false, true},
		{OrderCancelled, false, true},
		{OrderRejected, false, true},
		{OrderFailed, false, true},
	}
	for _, tt := range tests {
		o := &Order{Status: tt.status}
		if got := o.IsOpen(); got != tt.isOpen {
			t.Errorf("Order{%s}.IsOpen() = %v, want %v", tt.status, got, tt.isOpen)
		}
		if got := o.IsTerminal(); got != tt.isTerminal {
			t.Errorf("Order{%s}.IsTerminal() = %v, want %v", tt.status, got, tt.isTerminal)
		}
	}
}

func TestOrder_IsProtective(t *testing.T) {
	if (&Order{Type: OrderTypeMarket}).IsProtective() {
		t.Error("market order reported protective")
	}
	if !(&Order{Type: OrderTypeTakeProfit}).IsProtective() {
		t.Error("TP order not reported protective")
	}
	if !(&Order{Type: OrderTypeStopLoss}).IsProtective() {
		t.Error("SL order not reported protective")
	}
}
