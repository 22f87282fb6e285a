package domain

import (
	"errors"
	"fmt"
)

// Risk rejection reasons.
const (
	ReasonLeverageExceeded = "leverage_exceeded"
	ReasonPositionLimit    = "position_limit_exceeded"
	ReasonCooldownActive   = "cooldown_active"
	ReasonAccountDisabled  = "account_disabled"
)

// RiskRejectedError is a terminal pre-trade rejection. It is never retried.
type RiskRejectedError struct {
	Reason string
	Detail string
}

func (e *RiskRejectedError) Error() string {
	if e.Detail == "" {
		return "risk rejected: " + e.Reason
	}
	return fmt.Sprintf("risk rejected: %s (%s)", e.Reason, e.Detail)
}

// TransientError wraps a failure that is safe to retry: network timeout,
// exchange 5xx, rate limit. A timed-out order may still have executed, so
// reconciliation is the backstop, not an assumption of non-execution.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// ExecutionFailedError is terminal: the primary order did not fill after
// retries were exhausted, or the exchange explicitly rejected it.
// No position mutation happens on this path.
type ExecutionFailedError struct {
	OrderID string
	Err     error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("execution failed for order %s: %v", e.OrderID, e.Err)
}
func (e *ExecutionFailedError) Unwrap() error { return e.Err }

// ProtectionFailedError means the primary filled but protective placement
// exhausted its retries. The overall execution still reports success; the
// position carries ProtectionPending until a later placement clears it.
type ProtectionFailedError struct {
	PositionID string
	Err        error
}

func (e *ProtectionFailedError) Error() string {
	return fmt.Sprintf("protective orders failed for position %s: %v", e.PositionID, e.Err)
}
func (e *ProtectionFailedError) Unwrap() error { return e.Err }

// ErrNotFound is returned by repositories for missing rows.
var ErrNotFound = errors.New("not found")

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRiskRejected reports whether err is a terminal pre-trade rejection.
func IsRiskRejected(err error) bool {
	var re *RiskRejectedError
	return errors.As(err, &re)
}
