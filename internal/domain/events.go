package domain

import "futures_agent/pkg/quant"

// EventType defines the type of domain event.
type EventType uint16

const (
	EvOrderPlaced EventType = iota + 1
	EvOrderFilled
	EvOrderFailed
	EvPositionOpened
	EvPositionUpdated
	EvPositionClosed
	EvProtectionPending
	EvReconCorrection
)

func (t EventType) String() string {
	switch t {
	case EvOrderPlaced:
		return "ORDER_PLACED"
	case EvOrderFilled:
		return "ORDER_FILLED"
	case EvOrderFailed:
		return "ORDER_FAILED"
	case EvPositionOpened:
		return "POSITION_OPENED"
	case EvPositionUpdated:
		return "POSITION_UPDATED"
	case EvPositionClosed:
		return "POSITION_CLOSED"
	case EvProtectionPending:
		return "PROTECTION_PENDING"
	case EvReconCorrection:
		return "RECONCILIATION_CORRECTION"
	default:
		return "UNKNOWN"
	}
}

// Event is a domain event published to logging/alerting consumers.
// Every event carries IsPaper so downstream can split simulated from real.
type Event struct {
	Type       EventType       `json:"type"`
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	OrderID    string          `json:"order_id,omitempty"`
	PositionID string          `json:"position_id,omitempty"`
	IsPaper    bool            `json:"is_paper"`
	Severity   string          `json:"severity"` // "INFO", "WARN", "CRITICAL"
	Detail     string          `json:"detail,omitempty"`
	Ts         quant.TimeStamp `json:"ts"`
}
