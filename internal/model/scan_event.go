package model

import "time"

// ScanEvent is one verification attempt against a permit, as stored in the
// append-only `scan_events` table.  Rows are never updated; re-scanning a
// permit produces a new row every time so the audit trail stays complete.
//
// Fields:
//
//	ID        – primary key identifier.
//	PermitID  – the permit that was scanned.
//	ScannedBy – user id of the verifier who performed the scan.
//	ScannedAt – when the scan happened (UTC).
//	Location  – optional free-text location supplied by the verifier.
//	Notes     – optional free-text notes supplied by the verifier.
type ScanEvent struct {
	ID        uint64
	PermitID  uint64
	ScannedBy uint64
	ScannedAt time.Time
	Location  *string
	Notes     *string
}
