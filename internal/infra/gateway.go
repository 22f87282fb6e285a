package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"futures_agent/internal/domain"
	"futures_agent/pkg/quant"
)

// Quote is a top-of-book snapshot for one symbol.
type Quote struct {
	Symbol     string
	BidMicros  quant.PriceMicros
	AskMicros  quant.PriceMicros
	LastMicros quant.PriceMicros
	Ts         quant.TimeStamp
}

// OrderSpec is a write request to the exchange.
type OrderSpec struct {
	Symbol        string
	Side          string // "BUY", "SELL"
	Type          string // "MARKET", "TAKE_PROFIT", "STOP_LOSS"
	QtySats       quant.QtySats
	TriggerMicros quant.PriceMicros // TP/SL trigger price, 0 for market
	ReduceOnly    bool
	ClientOrderID string
}

// OrderAck is the exchange acknowledgement of a placed order.
type OrderAck struct {
	ExchangeOrderID string
}

// RemoteOrder is the exchange's view of one order.
type RemoteOrder struct {
	ExchangeOrderID string
	ClientOrderID   string
	Symbol          string
	Side            string
	Status          string // exchange status mapped to domain order status
	FilledSats      quant.QtySats
	AvgPriceMicros  quant.PriceMicros
	FeeMicros       quant.PriceMicros
}

// RemotePosition is the exchange's view of one open position.
type RemotePosition struct {
	Symbol           string
	Side             string
	SizeSats         quant.QtySats
	EntryPriceMicros quant.PriceMicros
	MarkPriceMicros  quant.PriceMicros
}

// Gateway is the REST client for the exchange. One instance per account
// credential set. All write calls go through the rate limiter and the
// circuit breaker.
type Gateway struct {
	baseURL string
	signer  *Signer
	http    *http.Client
	limiter *RateLimiter
	breaker *CircuitBreaker
}

// NewGateway creates an exchange REST gateway from config.
func NewGateway(cfg *Config) *Gateway {
	return &Gateway{
		baseURL: cfg.Exchange.RestURL,
		signer:  NewSigner(cfg.Exchange.AccessKey, cfg.Exchange.SecretKey, cfg.Exchange.Passphrase),
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: NewRateLimiter(10, 10),
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig("exchange")),
	}
}

// Close wipes credentials.
func (g *Gateway) Close() error {
	g.signer.Wipe()
	return nil
}

// GetQuote fetches the current top of book for a symbol.
func (g *Gateway) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	q := url.Values{"symbol": {symbol}, "productType": {"USDT-FUTURES"}}
	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Symbol string `json:"symbol"`
			LastPr string `json:"lastPr"`
			BidPr  string `json:"bidPr"`
			AskPr  string `json:"askPr"`
			Ts     string `json:"ts"`
		} `json:"data"`
	}
	if err := g.do(ctx, http.MethodGet, "/api/v2/mix/market/ticker", q, nil, &resp); err != nil {
		return Quote{}, err
	}
	if len(resp.Data) == 0 {
		return Quote{}, fmt.Errorf("no ticker data for %s", symbol)
	}
	d := resp.Data[0]
	ts, _ := quant.ParseTimeStamp(d.Ts)
	return Quote{
		Symbol:     symbol,
		BidMicros:  parsePriceMicros(d.BidPr),
		AskMicros:  parsePriceMicros(d.AskPr),
		LastMicros: parsePriceMicros(d.LastPr),
		Ts:         ts,
	}, nil
}

// PlaceOrder submits an order. The caller must confirm the fill separately;
// an ack only means the exchange accepted the request.
func (g *Gateway) PlaceOrder(ctx context.Context, spec OrderSpec) (OrderAck, error) {
	if !g.breaker.Allow() {
		return OrderAck{}, &domain.TransientError{Op: "place_order", Err: fmt.Errorf("circuit breaker open")}
	}

	body := map[string]any{
		"symbol":      spec.Symbol,
		"productType": "USDT-FUTURES",
		"marginMode":  "crossed",
		"side":        sideParam(spec.Side),
		"size":        spec.QtySats.String(),
		"clientOid":   spec.ClientOrderID,
	}
	path := "/api/v2/mix/order/place-order"
	switch spec.Type {
	case domain.OrderTypeMarket:
		body["orderType"] = "market"
	case domain.OrderTypeTakeProfit, domain.OrderTypeStopLoss:
		path = "/api/v2/mix/order/place-tpsl-order"
		body["planType"] = planType(spec.Type)
		body["triggerPrice"] = spec.TriggerMicros.String()
		body["holdSide"] = holdSide(spec.Side)
	default:
		return OrderAck{}, fmt.Errorf("unsupported order type: %s", spec.Type)
	}
	if spec.ReduceOnly {
		body["reduceOnly"] = "YES"
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	}
	err := g.do(ctx, http.MethodPost, path, nil, body, &resp)
	if err != nil {
		g.breaker.RecordFailure()
		return OrderAck{}, err
	}
	g.breaker.RecordSuccess()
	return OrderAck{ExchangeOrderID: resp.Data.OrderID}, nil
}

// CancelOrder cancels an open order by exchange id.
func (g *Gateway) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error {
	body := map[string]any{
		"symbol":      symbol,
		"productType": "USDT-FUTURES",
		"orderId":     exchangeOrderID,
	}
	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	return g.do(ctx, http.MethodPost, "/api/v2/mix/order/cancel-order", nil, body, &resp)
}

// GetOrder fetches the current state of one order.
func (g *Gateway) GetOrder(ctx context.Context, exchangeOrderID, symbol string) (RemoteOrder, error) {
	q := url.Values{
		"symbol":      {symbol},
		"productType": {"USDT-FUTURES"},
		"orderId":     {exchangeOrderID},
	}
	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			OrderID    string `json:"orderId"`
			ClientOid  string `json:"clientOid"`
			Symbol     string `json:"symbol"`
			Side       string `json:"side"`
			State      string `json:"state"`
			BaseVolume string `json:"baseVolume"`
			PriceAvg   string `json:"priceAvg"`
			Fee        string `json:"fee"`
		} `json:"data"`
	}
	if err := g.do(ctx, http.MethodGet, "/api/v2/mix/order/detail", q, nil, &resp); err != nil {
		return RemoteOrder{}, err
	}
	d := resp.Data
	return RemoteOrder{
		ExchangeOrderID: d.OrderID,
		ClientOrderID:   d.ClientOid,
		Symbol:          d.Symbol,
		Side:            mapSide(d.Side),
		Status:          mapOrderState(d.State),
		FilledSats:      parseQtySats(d.BaseVolume),
		AvgPriceMicros:  parsePriceMicros(d.PriceAvg),
		FeeMicros:       parsePriceMicros(d.Fee).Abs(),
	}, nil
}

// ListPositions lists all open positions for the credential account.
func (g *Gateway) ListPositions(ctx context.Context) ([]RemotePosition, error) {
	q := url.Values{"productType": {"USDT-FUTURES"}}
	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Symbol       string `json:"symbol"`
			HoldSide     string `json:"holdSide"` // "long", "short"
			Total        string `json:"total"`
			OpenPriceAvg string `json:"openPriceAvg"`
			MarkPrice    string `json:"markPrice"`
		} `json:"data"`
	}
	if err := g.do(ctx, http.MethodGet, "/api/v2/mix/position/all-position", q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]RemotePosition, 0, len(resp.Data))
	for _, d := range resp.Data {
		side := domain.SideBuy
		if d.HoldSide == "short" {
			side = domain.SideSell
		}
		out = append(out, RemotePosition{
			Symbol:           d.Symbol,
			Side:             side,
			SizeSats:         parseQtySats(d.Total),
			EntryPriceMicros: parsePriceMicros(d.OpenPriceAvg),
			MarkPriceMicros:  parsePriceMicros(d.MarkPrice),
		})
	}
	return out, nil
}

// ListOpenOrders lists all open orders for the credential account.
func (g *Gateway) ListOpenOrders(ctx context.Context) ([]RemoteOrder, error) {
	q := url.Values{"productType": {"USDT-FUTURES"}}
	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			EntrustedList []struct {
				OrderID    string `json:"orderId"`
				ClientOid  string `json:"clientOid"`
				Symbol     string `json:"symbol"`
				Side       string `json:"side"`
				State      string `json:"state"`
				BaseVolume string `json:"baseVolume"`
				PriceAvg   string `json:"priceAvg"`
			} `json:"entrustedList"`
		} `json:"data"`
	}
	if err := g.do(ctx, http.MethodGet, "/api/v2/mix/order/orders-pending", q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]RemoteOrder, 0, len(resp.Data.EntrustedList))
	for _, d := range resp.Data.EntrustedList {
		out = append(out, RemoteOrder{
			ExchangeOrderID: d.OrderID,
			ClientOrderID:   d.ClientOid,
			Symbol:          d.Symbol,
			Side:            mapSide(d.Side),
			Status:          mapOrderState(d.State),
			FilledSats:      parseQtySats(d.BaseVolume),
			AvgPriceMicros:  parsePriceMicros(d.PriceAvg),
		})
	}
	return out, nil
}

// do executes one signed HTTP call and decodes the response envelope.
// Network errors, 5xx and 429 are wrapped as transient; other non-2xx
// responses and non-zero API codes are permanent failures.
func (g *Gateway) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	g.limiter.Wait()

	fullPath := path
	rawQuery := ""
	if len(query) > 0 {
		rawQuery = query.Encode()
		fullPath = path + "?" + rawQuery
	}

	var bodyStr string
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyStr = string(b)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+fullPath, reader)
	if err != nil {
		return err
	}
	sigQuery := ""
	if rawQuery != "" {
		sigQuery = "?" + rawQuery
	}
	for k, v := range g.signer.GenerateHeaders(method, path, sigQuery, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return &domain.TransientError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransientError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &domain.TransientError{
			Op:  method + " " + path,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 200)),
		}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("exchange rejected %s %s: status %d: %s", method, path, resp.StatusCode, truncate(data, 200))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	// All endpoints share the {code, msg} envelope; "00000" is success.
	var envelope struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Code != "" && envelope.Code != "00000" {
		return fmt.Errorf("exchange error %s: %s", envelope.Code, envelope.Msg)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// parsePriceMicros converts a string decimal from the API into micros.
// decimal avoids float64 rounding on the wire boundary.
func parsePriceMicros(s string) quant.PriceMicros {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		slog.Warn("unparseable price from exchange", slog.String("value", s))
		return 0
	}
	return quant.PriceMicros(d.Shift(6).IntPart())
}

// parseQtySats converts a string decimal quantity into sats.
func parseQtySats(s string) quant.QtySats {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		slog.Warn("unparseable qty from exchange", slog.String("value", s))
		return 0
	}
	return quant.QtySats(d.Shift(8).IntPart())
}

func sideParam(side string) string {
	if side == domain.SideBuy {
		return "buy"
	}
	return "sell"
}

func mapSide(s string) string {
	if s == "buy" {
		return domain.SideBuy
	}
	return domain.SideSell
}

// holdSide maps a protective order's side to the position it protects:
// a SELL protective order closes a long, a BUY one closes a short.
func holdSide(side string) string {
	if side == domain.SideSell {
		return "long"
	}
	return "short"
}

func planType(orderType string) string {
	if orderType == domain.OrderTypeTakeProfit {
		return "profit_plan"
	}
	return "loss_plan"
}

// mapOrderState maps exchange order states onto domain statuses.
func mapOrderState(state string) string {
	switch state {
	case "live", "new":
		return domain.OrderSubmitted
	case "partially_filled":
		return domain.OrderPartial
	case "filled":
		return domain.OrderFilled
	case "canceled", "cancelled":
		return domain.OrderCancelled
	case "rejected":
		return domain.OrderRejected
	default:
		return domain.OrderSubmitted
	}
}
