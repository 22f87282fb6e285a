package quant

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// PriceMicros represents price multiplied by 1,000,000 (10^6).
// E.g., 65000.5 USDT = 65,000,500,000 PriceMicros.
type PriceMicros int64

// QtySats represents quantity multiplied by 100,000,000 (10^8).
// E.g., 0.1 BTC = 10,000,000 QtySats.
type QtySats int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

const (
	PriceScale = 1000000
	QtyScale   = 100000000
)

// ToPriceMicros converts a float64 (from external API) to PriceMicros.
// Note: Only used at the boundary. Internal logic uses PriceMicros directly.
func ToPriceMicros(f float64) PriceMicros {
	return PriceMicros(math.Round(f * PriceScale))
}

// ToQtySats converts a float64 to QtySats.
func ToQtySats(f float64) QtySats {
	return QtySats(math.Round(f * QtyScale))
}

func (p PriceMicros) String() string {
	return fmt.Sprintf("%.6f", float64(p)/PriceScale)
}

func (q QtySats) String() string {
	return fmt.Sprintf("%.8f", float64(q)/QtyScale)
}

// Abs returns the absolute price value.
func (p PriceMicros) Abs() PriceMicros {
	if p < 0 {
		return -p
	}
	return p
}

// Float64 returns the price as a float64 for display-only use.
func (p PriceMicros) Float64() float64 { return float64(p) / PriceScale }

// Float64 returns the quantity as a float64 for display-only use.
func (q QtySats) Float64() float64 { return float64(q) / QtyScale }

// Notional returns price * qty in quote-currency micros.
// The intermediate product needs 128 bits: BTC above 92k USDT times 1 BTC
// already overflows int64 in micros*sats.
func Notional(price PriceMicros, qty QtySats) PriceMicros {
	p, q := int64(price), int64(qty)
	neg := false
	if p < 0 {
		p, neg = -p, !neg
	}
	if q < 0 {
		q, neg = -q, !neg
	}
	hi, lo := bits.Mul64(uint64(p), uint64(q))
	quo, _ := bits.Div64(hi, lo, QtyScale)
	if neg {
		return PriceMicros(-int64(quo))
	}
	return PriceMicros(quo)
}

// WeightedAvgPrice returns the quantity-weighted average of two price lots.
// Prices and quantities must be non-negative.
func WeightedAvgPrice(p1 PriceMicros, q1 QtySats, p2 PriceMicros, q2 QtySats) PriceMicros {
	total := int64(q1) + int64(q2)
	if total == 0 {
		return 0
	}
	n := int64(Notional(p1, q1)) + int64(Notional(p2, q2))
	hi, lo := bits.Mul64(uint64(n), QtyScale)
	quo, _ := bits.Div64(hi, lo, uint64(total))
	return PriceMicros(quo)
}

// ParseTimeStamp converts a string (ms) to TimeStamp (micros).
func ParseTimeStamp(s string) (TimeStamp, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TimeStamp(ms * 1000), nil
}

// ToPriceMicrosStr converts a numeric string to PriceMicros without using float64.
func ToPriceMicrosStr(s string) PriceMicros {
	return PriceMicros(parseFixedPoint(s, 6))
}

// ToQtySatsStr converts a numeric string to QtySats without using float64.
func ToQtySatsStr(s string) QtySats {
	return QtySats(parseFixedPoint(s, 8))
}

// parseFixedPoint parses a numeric string into an int64 with the given precision.
// E.g., parseFixedPoint("1.23", 6) -> 1,230,000.
func parseFixedPoint(s string, precision int) int64 {
	if s == "" || s == "null" {
		return 0
	}

	intStr, fracStr := s, ""
	if dot := strings.IndexByte(s, '.'); dot != -1 {
		intStr, fracStr = s[:dot], s[dot+1:]
	}

	intPart, _ := strconv.ParseInt(intStr, 10, 64)
	for i := 0; i < precision; i++ {
		intPart *= 10
	}

	if fracStr == "" {
		return intPart
	}

	if len(fracStr) > precision {
		fracStr = fracStr[:precision]
	}
	fracPart, _ := strconv.ParseInt(fracStr, 10, 64)
	for i := len(fracStr); i < precision; i++ {
		fracPart *= 10
	}

	if strings.HasPrefix(intStr, "-") {
		return intPart - fracPart
	}
	return intPart + fracPart
}
