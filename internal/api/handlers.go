package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"futures_agent/internal/domain"
	"futures_agent/internal/service"
)

// Executor is the execution surface the handlers call.
type Executor interface {
	Execute(ctx context.Context, decision *domain.TradingDecision) (*domain.ExecutionResult, error)
	Status(ctx context.Context, accountID string) (*service.AccountStatus, error)
}

// Reconciler triggers an on-demand reconciliation pass.
type Reconciler interface {
	ReconcileAccount(ctx context.Context, accountID string) (int, error)
}

// Handler holds the HTTP handlers for the execution API.
type Handler struct {
	executor   Executor
	reconciler Reconciler
	validate   *validator.Validate
}

// NewHandler creates the handler set.
func NewHandler(executor Executor, reconciler Reconciler) *Handler {
	return &Handler{
		executor:   executor,
		reconciler: reconciler,
		validate:   validator.New(),
	}
}

func formatValidationError(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			out[e.Field()] = "failed on tag '" + e.Tag() + "'"
		}
	}
	return out
}

// POST /api/execute
func (h *Handler) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"validation_errors": formatValidationError(err)})
		return
	}
	decision, err := req.ToDecision()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.executor.Execute(c.Request.Context(), decision)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch {
	case result.Success:
		c.JSON(http.StatusOK, result)
	case result.RejectReason != "":
		c.JSON(http.StatusConflict, result)
	default:
		c.JSON(http.StatusBadGateway, result)
	}
}

// GET /api/status/:accountId
func (h *Handler) Status(c *gin.Context) {
	status, err := h.executor.Status(c.Request.Context(), c.Param("accountId"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// POST /api/reconcile/:accountId
func (h *Handler) Reconcile(c *gin.Context) {
	corrections, err := h.reconciler.ReconcileAccount(c.Request.Context(), c.Param("accountId"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"corrections": corrections})
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
