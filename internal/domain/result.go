package domain

// ExecutionResult is the transient outcome of one Execute call.
// It is returned to the caller and published, never persisted.
type ExecutionResult struct {
	Success           bool     `json:"success"`
	OrderID           string   `json:"order_id,omitempty"`
	TpOrderID         string   `json:"tp_order_id,omitempty"`
	SlOrderID         string   `json:"sl_order_id,omitempty"`
	PositionID        string   `json:"position_id,omitempty"`
	ProtectionPending bool     `json:"protection_pending,omitempty"` // success with unprotected position
	RejectReason      string   `json:"reject_reason,omitempty"`
	Error             string   `json:"error,omitempty"`
	IsPaper           bool     `json:"is_paper"`
	Warnings          []string `json:"warnings,omitempty"`
}
