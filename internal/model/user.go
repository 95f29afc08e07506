package model

import "time"

// Application roles as stored in users.role.  Vendors submit permits,
// reviewers and approvers process them, verifiers scan issued permits in
// the field and admins run privileged maintenance operations.
const (
	RoleVendor   = "VENDOR"
	RoleReviewer = "REVIEWER"
	RoleApprover = "APPROVER"
	RoleVerifier = "VERIFIER"
	RoleAdmin    = "ADMIN"
)

// User represents an application user record as stored in the `users`
// table.  Credentials are managed by the external identity provider that
// issues the JWTs this service validates, so no password material appears
// here.
//
// Fields:
//
//	ID         – primary key identifier of the user.
//	Email      – unique email address.
//	Role       – one of the Role* constants above.
//	VendorName – company name for VENDOR users, empty otherwise.
//	IsActive   – whether the account is active; inactive subscribers are
//	             cut off from live streams on the next re-authorization.
//	CreatedAt  – timestamp of creation.
//	UpdatedAt  – timestamp of last update.
type User struct {
	ID         uint64
	Email      string
	Role       string
	VendorName string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
