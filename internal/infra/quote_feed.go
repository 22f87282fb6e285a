package infra

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"futures_agent/pkg/quant"
)

// QuoteReader is the read-only market-data surface handed to components
// that must never write to the exchange (the paper adapter in particular).
type QuoteReader interface {
	BestQuote(ctx context.Context, symbol string) (Quote, error)
}

// QuoteFeed maintains a live top-of-book cache from the exchange's public
// ticker stream, with a REST fallback for symbols not yet seen on the
// stream. Public market data only; the feed holds no credentials.
type QuoteFeed struct {
	base    *BaseWSWorker
	wsURL   string
	symbols []string
	rest    *Gateway

	mu    sync.RWMutex
	cache map[string]Quote
}

// NewQuoteFeed creates a quote feed for the configured symbols.
// rest may be nil, in which case cache misses are errors.
func NewQuoteFeed(cfg *Config, rest *Gateway) *QuoteFeed {
	f := &QuoteFeed{
		wsURL:   cfg.Exchange.WsURL,
		symbols: cfg.Exchange.Symbols,
		rest:    rest,
		cache:   make(map[string]Quote),
	}
	f.base = NewBaseWSWorker(f)
	return f
}

// Start begins streaming quotes.
func (f *QuoteFeed) Start(ctx context.Context) {
	f.base.Start(ctx)
}

// Stop terminates the stream.
func (f *QuoteFeed) Stop() {
	f.base.Stop()
}

// BestQuote returns the cached top of book, falling back to a REST lookup
// when the stream has not delivered the symbol yet.
func (f *QuoteFeed) BestQuote(ctx context.Context, symbol string) (Quote, error) {
	f.mu.RLock()
	q, ok := f.cache[symbol]
	f.mu.RUnlock()
	if ok {
		return q, nil
	}
	if f.rest == nil {
		return Quote{}, &QuoteUnavailableError{Symbol: symbol}
	}
	q, err := f.rest.GetQuote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	f.put(q)
	return q, nil
}

// QuoteUnavailableError reports a symbol with no cached quote and no
// REST fallback.
type QuoteUnavailableError struct {
	Symbol string
}

func (e *QuoteUnavailableError) Error() string {
	return "no quote available for " + e.Symbol
}

func (f *QuoteFeed) put(q Quote) {
	f.mu.Lock()
	f.cache[q.Symbol] = q
	f.mu.Unlock()
}

func (f *QuoteFeed) ID() string     { return "QUOTE_FEED" }
func (f *QuoteFeed) GetURL() string { return f.wsURL }

type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstId   string `json:"instId"`
}

type tickerResponse struct {
	Action string       `json:"action"`
	Arg    subscribeArg `json:"arg"`
	Data   []tickerData `json:"data"`
	Ts     int64        `json:"ts"`
}

type tickerData struct {
	InstId string `json:"instId"`
	LastPr string `json:"lastPr"`
	BidPr  string `json:"bidPr"`
	AskPr  string `json:"askPr"`
}

func (f *QuoteFeed) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	args := make([]subscribeArg, 0, len(f.symbols))
	for _, s := range f.symbols {
		args = append(args, subscribeArg{InstType: "USDT-FUTURES", Channel: "ticker", InstId: s})
	}
	req := subscribeRequest{Op: "subscribe", Args: args}
	b, _ := json.Marshal(req)
	return f.base.Write(websocket.TextMessage, b)
}

func (f *QuoteFeed) OnMessage(ctx context.Context, msg []byte) {
	if string(msg) == "pong" {
		return
	}

	var resp tickerResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return
	}
	if resp.Arg.Channel != "ticker" || resp.Data == nil {
		return
	}

	ts := quant.TimeStamp(resp.Ts * 1000)

	for _, data := range resp.Data {
		f.put(Quote{
			Symbol:     data.InstId,
			BidMicros:  quant.ToPriceMicrosStr(data.BidPr),
			AskMicros:  quant.ToPriceMicrosStr(data.AskPr),
			LastMicros: quant.ToPriceMicrosStr(data.LastPr),
			Ts:         ts,
		})
	}
}

func (f *QuoteFeed) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return f.base.Write(websocket.TextMessage, []byte("ping"))
}
