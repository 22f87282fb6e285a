package execution

import (
	"log/slog"
	"sync"

	"futures_agent/internal/domain"
	"futures_agent/internal/infra"
)

// Factory resolves the adapter for an account. Paper accounts each get a
// long-lived PaperAdapter so the simulated book survives across calls;
// live accounts share one LiveAdapter over the gateway credentials.
type Factory struct {
	cfg    *infra.Config
	quotes infra.QuoteReader
	live   *LiveAdapter

	mu     sync.Mutex
	papers map[string]*PaperAdapter
}

// NewFactory creates the adapter factory.
func NewFactory(cfg *infra.Config, quotes infra.QuoteReader, live *LiveAdapter) *Factory {
	return &Factory{
		cfg:    cfg,
		quotes: quotes,
		live:   live,
		papers: make(map[string]*PaperAdapter),
	}
}

// For returns the adapter matching the account's trading mode.
func (f *Factory) For(account *domain.Account) Adapter {
	if !account.IsPaperTrading {
		return f.live
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.papers[account.ID]
	if !ok {
		slog.Info("Initializing paper adapter", slog.String("account", account.ID))
		p = NewPaperAdapter(f.quotes, f.cfg.Exchange.TakerFeeBps)
		f.papers[account.ID] = p
	}
	return p
}
