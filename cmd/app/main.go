package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"futures_agent/internal/app"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	// Secrets come from the environment; a .env file is optional.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", slog.Any("error", err))
	}

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.SeedAccounts(ctx); err != nil {
		slog.Error("❌ Account seeding failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Quote feed first so risk checks and paper fills have prices.
	bootstrap.Quotes.Start(ctx)
	slog.InfoContext(ctx, "✅ Quote feed started",
		slog.Int("symbols", len(bootstrap.Config.Exchange.Symbols)))

	// Startup reconciliation runs before the API accepts traffic, so any
	// drift accumulated while the process was down is corrected first.
	if err := bootstrap.Reconcile.ReconcileAll(ctx); err != nil {
		slog.Warn("Startup reconciliation incomplete", slog.Any("error", err))
	}
	go bootstrap.Reconcile.Run(ctx)
	slog.InfoContext(ctx, "✅ Reconciliation loop started",
		slog.Duration("interval", bootstrap.Config.ReconcileInterval()))

	server := &http.Server{
		Addr:    bootstrap.Config.Server.Listen,
		Handler: bootstrap.Router,
	}
	go func() {
		slog.Info("✅ HTTP server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ Execution core fully operational. Press Ctrl+C to exit.")
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", slog.Any("error", err))
	}
}
