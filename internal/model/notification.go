package model

import "time"

// Notification is a persisted dashboard notification, as stored in the
// `notifications` table.  Scope mirrors the broadcast channel the
// notification was published to, so history queries and live streams agree
// on audience boundaries.
//
// Fields:
//
//	ID        – primary key identifier.
//	Scope     – channel scope the notification belongs to (see queue.Scope*).
//	Type      – event type string (e.g. "scan.recorded").
//	PermitID  – related permit, zero when not permit-specific.
//	Message   – short human-readable summary for the dashboard toast.
//	IsRead    – whether a dashboard user acknowledged it.
//	CreatedAt – timestamp of creation.
type Notification struct {
	ID        uint64
	Scope     string
	Type      string
	PermitID  uint64
	Message   string
	IsRead    bool
	CreatedAt time.Time
}
