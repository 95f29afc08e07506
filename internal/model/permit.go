package model

import "time"

// Permit statuses as stored in permits.status.  A permit only carries a
// document number and a scannable token once it reaches APPROVED.
const (
	PermitStatusPending  = "PENDING"
	PermitStatusApproved = "APPROVED"
	PermitStatusRejected = "REJECTED"
)

// Permit represents a vendor work-permit record as stored in the `permits`
// table.  Each field corresponds to a column.  The json tags are omitted
// here because these structs are used internally by the repository layer;
// handlers define separate response types with appropriate JSON tags.
//
// Fields:
//
//	ID              – primary key identifier of the permit.
//	VendorUserID    – user that submitted the permit.
//	VendorName      – vendor company name, denormalized for display.
//	WorkDescription – free-text description of the authorized work.
//	Status          – PENDING, APPROVED or REJECTED.
//	DocumentNumber  – human-facing number, nil until approval.
//	ApprovedBy      – reviewer/approver user id, nil until approval.
//	ApprovedAt      – approval timestamp, nil until approval.
//	CreatedAt       – timestamp of submission.
//	UpdatedAt       – timestamp of last update.
type Permit struct {
	ID              uint64
	VendorUserID    uint64
	VendorName      string
	WorkDescription string
	Status          string
	DocumentNumber  *string
	ApprovedBy      *uint64
	ApprovedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
