// Package app wires the whole system together at startup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"futures_agent/internal/api"
	"futures_agent/internal/domain"
	"futures_agent/internal/event"
	"futures_agent/internal/execution"
	"futures_agent/internal/infra"
	"futures_agent/internal/reconcile"
	"futures_agent/internal/risk"
	"futures_agent/internal/service"
	"futures_agent/internal/storage"
	"futures_agent/internal/telemetry"
	"futures_agent/pkg/quant"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config    *infra.Config
	Store     *storage.Store
	Gateway   *infra.Gateway
	Quotes    *infra.QuoteFeed
	Bus       *event.Bus
	Metrics   *telemetry.Metrics
	Service   *service.ExecutionService
	Reconcile *reconcile.Engine
	Router    *gin.Engine
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logger, store,
// exchange gateway, quote feed, orchestrator, reconciliation, HTTP.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping execution core...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	store, err := storage.NewStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Store initialized (WAL-mode)", slog.String("path", cfg.Storage.Path))

	b.Gateway = infra.NewGateway(cfg)
	b.Quotes = infra.NewQuoteFeed(cfg, b.Gateway)

	b.Bus = event.NewBus()
	go event.LogConsumer(b.Bus.Subscribe(256), logger)

	b.Metrics = telemetry.NewMetrics()

	guard := risk.NewGuard(store, b.Quotes, cfg)
	live := execution.NewLiveAdapter(b.Gateway, cfg.FillTimeout())
	factory := execution.NewFactory(cfg, b.Quotes, live)

	b.Service = service.NewExecutionService(store, guard, factory, b.Bus, b.Metrics,
		service.RetryPolicy{
			MaxAttempts: cfg.Execution.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Execution.BaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Execution.MaxDelayMs) * time.Millisecond,
		}, logger)

	b.Reconcile = reconcile.NewEngine(store, factory, b.Quotes, b.Bus, b.Metrics,
		cfg.ReconcileInterval(), logger)

	handler := api.NewHandler(b.Service, b.Reconcile)
	b.Router = api.NewRouter(handler, b.Metrics)

	slog.Info("✅ Execution core wired",
		slog.Int("accounts", len(cfg.Accounts)),
		slog.String("listen", cfg.Server.Listen))
	return nil
}

// SeedAccounts inserts the configured accounts that do not exist yet.
// Rows already in storage win over the config file.
func (b *Bootstrap) SeedAccounts(ctx context.Context) error {
	now := quant.TimeStamp(time.Now().UnixMicro())
	for _, seed := range b.Config.Accounts {
		if _, err := b.Store.GetAccount(ctx, seed.ID); err == nil {
			continue
		}
		account := &domain.Account{
			ID:                 seed.ID,
			Name:               seed.ID,
			IsPaperTrading:     seed.Paper,
			Leverage:           seed.Leverage,
			MaxPositionSizeUsd: quant.ToPriceMicrosStr(seed.MaxPositionUsd),
			Status:             domain.AccountActive,
			CreatedUnixM:       now,
			UpdatedUnixM:       now,
		}
		if err := b.Store.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to seed account %s: %w", seed.ID, err)
		}
		slog.Info("✅ Account seeded",
			slog.String("id", seed.ID), slog.Bool("paper", seed.Paper))
	}
	return nil
}

// Shutdown releases resources in reverse dependency order.
func (b *Bootstrap) Shutdown() {
	if b.Quotes != nil {
		b.Quotes.Stop()
	}
	if b.Bus != nil {
		b.Bus.Close()
	}
	if b.Gateway != nil {
		b.Gateway.Close()
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Error("store close failed", slog.Any("error", err))
		}
	}
}
