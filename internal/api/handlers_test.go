package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures_agent/internal/domain"
	"futures_agent/internal/service"
	"futures_agent/internal/telemetry"
	"futures_agent/pkg/quant"
)

type stubExecutor struct {
	result   *domain.ExecutionResult
	err      error
	decision *domain.TradingDecision
	status   *service.AccountStatus
}

func (s *stubExecutor) Execute(_ context.Context, d *domain.TradingDecision) (*domain.ExecutionResult, error) {
	s.decision = d
	return s.result, s.err
}

func (s *stubExecutor) Status(_ context.Context, accountID string) (*service.AccountStatus, error) {
	if s.status == nil {
		return nil, domain.ErrNotFound
	}
	return s.status, nil
}

type stubReconciler struct {
	corrections int
	err         error
}

func (s *stubReconciler) ReconcileAccount(context.Context, string) (int, error) {
	return s.corrections, s.err
}

func serve(t *testing.T, exec Executor, rec Reconciler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(NewHandler(exec, rec), telemetry.NewMetrics())

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validBody() ExecuteRequest {
	return ExecuteRequest{
		AccountID: "acc-1",
		Symbol:    "BTCUSDT",
		Side:      "BUY",
		Qty:       "0.1",
		TpPrice:   "70000",
		SlPrice:   "60000",
	}
}

func TestExecuteEndpoint_Success(t *testing.T) {
	exec := &stubExecutor{result: &domain.ExecutionResult{Success: true, OrderID: "ord-1", IsPaper: true}}
	w := serve(t, exec, &stubReconciler{}, http.MethodPost, "/api/execute", validBody())

	assert.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, exec.decision)
	assert.Equal(t, quant.ToQtySats(0.1), exec.decision.QtySats)
	assert.Equal(t, quant.ToPriceMicros(70000), exec.decision.TpPriceMicros)
	assert.Equal(t, quant.ToPriceMicros(60000), exec.decision.SlPriceMicros)

	var res domain.ExecutionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "ord-1", res.OrderID)
}

func TestExecuteEndpoint_RiskRejectionIsConflict(t *testing.T) {
	exec := &stubExecutor{result: &domain.ExecutionResult{
		Success:      false,
		RejectReason: domain.ReasonCooldownActive,
	}}
	w := serve(t, exec, &stubReconciler{}, http.MethodPost, "/api/execute", validBody())

	assert.Equal(t, http.StatusConflict, w.Code)
	var res domain.ExecutionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, domain.ReasonCooldownActive, res.RejectReason)
}

func TestExecuteEndpoint_FailedExecutionIsBadGateway(t *testing.T) {
	exec := &stubExecutor{result: &domain.ExecutionResult{Success: false, Error: "execution failed"}}
	w := serve(t, exec, &stubReconciler{}, http.MethodPost, "/api/execute", validBody())
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestExecuteEndpoint_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExecuteRequest)
	}{
		{"MissingAccount", func(r *ExecuteRequest) { r.AccountID = "" }},
		{"BadSide", func(r *ExecuteRequest) { r.Side = "LONG" }},
		{"LowercaseSymbol", func(r *ExecuteRequest) { r.Symbol = "btcusdt" }},
		{"ZeroQty", func(r *ExecuteRequest) { r.Qty = "0" }},
		{"NegativeQty", func(r *ExecuteRequest) { r.Qty = "-0.1" }},
		{"QtyNotANumber", func(r *ExecuteRequest) { r.Qty = "abc" }},
		{"InvertedTpSl", func(r *ExecuteRequest) { r.TpPrice = "60000"; r.SlPrice = "70000" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &stubExecutor{result: &domain.ExecutionResult{Success: true}}
			body := validBody()
			tt.mutate(&body)
			w := serve(t, exec, &stubReconciler{}, http.MethodPost, "/api/execute", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Nil(t, exec.decision, "invalid requests must not reach the service")
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	exec := &stubExecutor{status: &service.AccountStatus{
		Account: &domain.Account{ID: "acc-1", IsPaperTrading: true},
	}}
	w := serve(t, exec, &stubReconciler{}, http.MethodGet, "/api/status/acc-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var st service.AccountStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "acc-1", st.Account.ID)
}

func TestStatusEndpoint_NotFound(t *testing.T) {
	w := serve(t, &stubExecutor{}, &stubReconciler{}, http.MethodGet, "/api/status/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReconcileEndpoint(t *testing.T) {
	w := serve(t, &stubExecutor{}, &stubReconciler{corrections: 3}, http.MethodPost, "/api/reconcile/acc-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"corrections": 3}`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	w := serve(t, &stubExecutor{}, &stubReconciler{}, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(t, &stubExecutor{}, &stubReconciler{}, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
