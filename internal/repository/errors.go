// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as handlers
// to distinguish between different failure scenarios. For example,
// ErrCounterBusy signals that a document-number issuance lost a lock race
// and should be retried, while ErrForbidden indicates that the current
// user is not authorized to act on a resource owned by someone else.
package repository

import "errors"

// ErrPermitNotFound is returned when a permit id does not reference an
// existing row. Handlers should translate this into an HTTP 404 response
// (or the "not_found" verification status).
var ErrPermitNotFound = errors.New("permit not found")

// ErrUserNotFound is returned when a subject id has no matching users row.
var ErrUserNotFound = errors.New("user not found")

// ErrNotificationNotFound is returned when a notification id does not
// exist within the caller's scopes.
var ErrNotificationNotFound = errors.New("notification not found")

// ErrCounterBusy is returned when a counter transaction could not acquire
// its row lock in time or was chosen as a deadlock victim. The issuance
// did not happen and no number was skipped; callers may retry. Handlers
// should translate this into an HTTP 503 with a Retry-After hint.
var ErrCounterBusy = errors.New("counter busy")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers should translate this into an HTTP
// 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because of
// conflicting state, such as approving a permit that is not PENDING.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
