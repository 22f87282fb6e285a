// Command integration smoke-tests a running agent over its HTTP API:
// it executes a small paper trade with protection, reads the account
// status back and triggers a reconciliation pass.
package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"futures_agent/internal/domain"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("🚀 Starting paper execution smoke test...")

	base := envOr("AGENT_URL", "http://localhost:8080")
	account := envOr("AGENT_ACCOUNT", "paper-default")
	client := &http.Client{Timeout: 60 * time.Second}

	// STEP 1: execute a small protected paper buy.
	body, _ := json.Marshal(map[string]any{
		"account_id": account,
		"symbol":     "BTCUSDT",
		"side":       "BUY",
		"qty":        "0.001",
		"tp_price":   "200000",
		"sl_price":   "10000",
	})
	slog.Info("STEP 1: Executing paper decision...", "account", account)
	resp, err := client.Post(base+"/api/execute", "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("❌ Execute request failed", "error", err)
		os.Exit(1)
	}
	var result domain.ExecutionResult
	decode(resp, &result)
	if !result.Success {
		slog.Error("❌ Execution unsuccessful", "reject", result.RejectReason, "error", result.Error)
		os.Exit(1)
	}
	slog.Info("✅ Executed", "order", result.OrderID, "position", result.PositionID,
		"protection_pending", result.ProtectionPending)

	// STEP 2: the position must show up in the status view.
	slog.Info("STEP 2: Reading account status...")
	resp, err = client.Get(base + "/api/status/" + account)
	if err != nil {
		slog.Error("❌ Status request failed", "error", err)
		os.Exit(1)
	}
	var status struct {
		Positions []domain.Position `json:"positions"`
	}
	decode(resp, &status)
	if len(status.Positions) == 0 {
		slog.Error("❌ No open position after execution")
		os.Exit(1)
	}
	slog.Info("✅ Position visible", "symbol", status.Positions[0].Symbol,
		"size_sats", int64(status.Positions[0].SizeSats))

	// STEP 3: a manual reconciliation pass must succeed (and correct
	// nothing for paper).
	slog.Info("STEP 3: Triggering reconciliation...")
	resp, err = client.Post(base+"/api/reconcile/"+account, "application/json", nil)
	if err != nil {
		slog.Error("❌ Reconcile request failed", "error", err)
		os.Exit(1)
	}
	var recon struct {
		Corrections int `json:"corrections"`
	}
	decode(resp, &recon)
	slog.Info("✅ Reconciled", "corrections", recon.Corrections)

	slog.Info("🎉 Smoke test passed!")
}

func decode(resp *http.Response, out any) {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		slog.Error("❌ Bad response body", "status", resp.StatusCode, "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
