package safe

import (
	"math"
	"testing"
)

func TestMath(t *testing.T) {
	if got := Add(10, 20); got != 30 {
		t.Errorf("Add(10, 20) = %d, want 30", got)
	}
	if got := Add(math.MaxInt64-1, 1); got != math.MaxInt64 {
		t.Errorf("Add boundary = %d, want MaxInt64", got)
	}
	if got := Sub(30, 10); got != 20 {
		t.Errorf("Sub(30, 10) = %d, want 20", got)
	}
	if got := Mul(5, 6); got != 30 {
		t.Errorf("Mul(5, 6) = %d, want 30", got)
	}
	if got := Div(100, 4); got != 25 {
		t.Errorf("Div(100, 4) = %d, want 25", got)
	}
	if got := Abs(-42); got != 42 {
		t.Errorf("Abs(-42) = %d, want 42", got)
	}
}

func TestMathPanic(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"Add Overflow", func() { Add(math.MaxInt64, 1) }},
		{"Sub Underflow", func() { Sub(math.MinInt64, 1) }},
		{"Mul Overflow", func() { Mul(math.MaxInt64, 2) }},
		{"Div By Zero", func() { Div(10, 0) }},
		{"Div Overflow", func() { Div(math.MinInt64, -1) }},
		{"Abs Overflow", func() { Abs(math.MinInt64) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("Should have panicked")
				}
			}()
			tt.fn()
		})
	}
}
