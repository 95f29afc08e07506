// Package queue defines the message payloads exchanged over the broker,
// the channel scopes they are routed by, and the broker plumbing shared by
// publishers and subscribers.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types carried in the envelope.
const (
	TypeScanRecorded   = "scan.recorded"
	TypePermitApproved = "permit.approved"
	TypeUnreadCount    = "unread.count"
	TypeCounterReset   = "counter.reset"
)

// Role-wide channel scopes.  Every scope doubles as the routing key on the
// topic exchange, so subscribing to a scope is binding a queue to it.
const (
	ScopeReviewer = "role.reviewer"
	ScopeApprover = "role.approver"
	ScopeVerifier = "role.verifier"
	// ScopeAuditCounter routes counter maintenance records to the audit
	// trail only; no dashboard subscribes to it.
	ScopeAuditCounter = "audit.counter"
)

// VendorScope returns the private channel scope for a vendor identity.
func VendorScope(vendorUserID uint64) string {
	return fmt.Sprintf("vendor.%d", vendorUserID)
}

// Event is the envelope every bus message travels in.  Scope repeats the
// routing key so consumers see their audience without AMQP metadata, and
// Data holds the type-specific payload.
type Event struct {
	Type       string          `json:"type"`
	Scope      string          `json:"scope"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEvent wraps a payload into an envelope stamped with the current UTC
// time.
func NewEvent(eventType, scope string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		Type:       eventType,
		Scope:      scope,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
		Data:       data,
	}, nil
}

// ScanRecordedEvent is published after a verification scan is persisted.
// It carries enough summary data to render a dashboard toast without a
// follow-up query.
type ScanRecordedEvent struct {
	ScanEventID    uint64  `json:"scan_event_id"`
	PermitID       uint64  `json:"permit_id"`
	DocumentNumber string  `json:"document_number"`
	VendorName     string  `json:"vendor_name"`
	ScannedBy      uint64  `json:"scanned_by"`
	ScannedAt      string  `json:"scanned_at"`
	Location       *string `json:"location,omitempty"`
}

// PermitApprovedEvent is published after a permit receives its document
// number.
type PermitApprovedEvent struct {
	PermitID       uint64 `json:"permit_id"`
	DocumentNumber string `json:"document_number"`
	VendorName     string `json:"vendor_name"`
	ApprovedBy     uint64 `json:"approved_by"`
	ApprovedAt     string `json:"approved_at"`
}

// UnreadCountEvent tells a dashboard its unread notification badge changed.
type UnreadCountEvent struct {
	Unread int64 `json:"unread"`
}

// CounterResetEvent records an administrative counter reset.  It is
// written to the audit trail before the reset is applied.
type CounterResetEvent struct {
	Period    int    `json:"period"`
	ResetBy   uint64 `json:"reset_by"`
	LastValue uint32 `json:"last_value"`
}
