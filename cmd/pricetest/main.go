// Command pricetest fetches futures tickers and prints the fixed-point
// conversion, to eyeball that exchange decimal strings survive the trip
// into PriceMicros without touching float64.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"futures_agent/pkg/quant"
)

func main() {
	symbols := os.Args[1:]
	if len(symbols) == 0 {
		symbols = []string{"BTCUSDT", "ETHUSDT"}
	}

	fmt.Println("=== Fixed-Point Futures Ticker Probe ===")
	fmt.Println()

	for _, symbol := range symbols {
		res := fetchFuturesTicker(symbol)
		fmt.Printf("📊 %s\n", symbol)
		fmt.Printf("   raw string:  %s\n", res.Raw)
		fmt.Printf("   PriceMicros: %d\n", res.Micros)
		fmt.Printf("   display:     $%s\n", formatUSD(res.Micros))
		fmt.Println()
	}

	fmt.Println("✅ All prices handled as int64, no float64 involved")
}

type priceResult struct {
	Raw    string
	Micros quant.PriceMicros
}

func fetchFuturesTicker(symbol string) priceResult {
	client := &http.Client{Timeout: 10 * time.Second}
	url := "https://api.bitget.com/api/v2/mix/market/ticker?symbol=" + symbol + "&productType=USDT-FUTURES"
	resp, err := client.Get(url)
	if err != nil {
		return priceResult{Raw: "ERROR"}
	}
	defer resp.Body.Close()

	var data struct {
		Data []struct {
			LastPr string `json:"lastPr"`
		} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&data)

	if len(data.Data) == 0 {
		return priceResult{Raw: "NO_DATA"}
	}
	return priceResult{
		Raw:    data.Data[0].LastPr,
		Micros: quant.ToPriceMicrosStr(data.Data[0].LastPr),
	}
}

func formatUSD(micros quant.PriceMicros) string {
	return fmt.Sprintf("%d.%02d", int64(micros)/1_000_000, (int64(micros)%1_000_000)/10_000)
}
