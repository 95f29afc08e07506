package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/asmorodws/simlok2-sub012/internal/model"
	"github.com/asmorodws/simlok2-sub012/internal/queue"
	"github.com/asmorodws/simlok2-sub012/internal/repository"
	"github.com/asmorodws/simlok2-sub012/internal/service"
	"github.com/asmorodws/simlok2-sub012/internal/token"
)

// VerifyHandler implements the field-verification endpoint: decode a
// scanned token, check the permit behind it, append the scan to the audit
// trail and notify the dashboards.
type VerifyHandler struct {
	codec         *token.Codec
	permits       *repository.PermitRepo
	scans         *repository.ScanRepo
	notifications *repository.NotificationRepo
	publisher     *service.EventPublisher
	subjects      *SubjectValidator
}

// NewVerifyHandler wires the verification flow.  publisher may be nil; the
// scan is still recorded, only the live fan-out is skipped.
func NewVerifyHandler(
	codec *token.Codec,
	permits *repository.PermitRepo,
	scans *repository.ScanRepo,
	notifications *repository.NotificationRepo,
	publisher *service.EventPublisher,
	subjects *SubjectValidator,
) *VerifyHandler {
	return &VerifyHandler{
		codec:         codec,
		permits:       permits,
		scans:         scans,
		notifications: notifications,
		publisher:     publisher,
		subjects:      subjects,
	}
}

// verifyRequest is the JSON body of POST /v1/verify.
type verifyRequest struct {
	Token    string  `json:"token"`
	Location *string `json:"location,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// permitSummary is the permit payload returned on a successful scan.
type permitSummary struct {
	ID              uint64  `json:"id"`
	DocumentNumber  *string `json:"document_number"`
	VendorName      string  `json:"vendor_name"`
	WorkDescription string  `json:"work_description"`
	Status          string  `json:"status"`
}

// scanSummary echoes back the audit row the scan produced.
type scanSummary struct {
	ID        uint64    `json:"id"`
	ScannedBy uint64    `json:"scanned_by"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Verify handles POST /v1/verify.  The decode outcome maps onto distinct
// statuses so the scanner app can show the right remediation: "malformed"
// (unreadable), "invalid_signature" (forged), "expired", "not_found"
// (authentic token, purged permit), "not_approved" and "valid".  Only a
// valid scan is recorded; failed decodes never touch the audit trail.
func (h *VerifyHandler) Verify(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	if _, err := h.subjects.validate(ctx, uid); err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account_inactive"})
		}
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}

	var req verifyRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	claims, err := h.codec.Decode(req.Token)
	switch {
	case errors.Is(err, token.ErrExpired):
		// Claims survive an expiry failure, so the response can still say
		// which permit the stale code pointed at.
		return c.JSON(http.StatusGone, echo.Map{
			"status":     "expired",
			"permit_id":  claims.PermitID,
			"expired_at": claims.ExpiresAt,
		})
	case errors.Is(err, token.ErrInvalidSignature):
		return c.JSON(http.StatusUnauthorized, echo.Map{"status": "invalid_signature"})
	case errors.Is(err, token.ErrMalformed):
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "malformed"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}

	permit, err := h.permits.GetByID(ctx, claims.PermitID)
	if errors.Is(err, repository.ErrPermitNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{
			"status":    "not_found",
			"permit_id": claims.PermitID,
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	if permit.Status != model.PermitStatusApproved {
		return c.JSON(http.StatusConflict, echo.Map{
			"status":        "not_approved",
			"permit_id":     permit.ID,
			"permit_status": permit.Status,
		})
	}

	// Read the repeat flag before appending, so this scan does not count
	// against itself.
	alreadyScanned, err := h.scans.HasBeenScanned(ctx, permit.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}

	scan := &model.ScanEvent{
		PermitID:  permit.ID,
		ScannedBy: uid,
		Location:  req.Location,
		Notes:     req.Notes,
	}
	if err := h.scans.Create(ctx, scan); err != nil {
		c.Logger().Errorf("verify: record scan for permit %d: %v", permit.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}

	docNo := ""
	if permit.DocumentNumber != nil {
		docNo = *permit.DocumentNumber
	}
	scopes := []string{
		queue.ScopeReviewer,
		queue.ScopeApprover,
		queue.VendorScope(permit.VendorUserID),
	}
	message := fmt.Sprintf("Permit %s was scanned in the field", docNo)
	for _, scope := range scopes {
		n := &model.Notification{
			Scope:    scope,
			Type:     queue.TypeScanRecorded,
			PermitID: permit.ID,
			Message:  message,
		}
		if err := h.notifications.Create(ctx, n); err != nil {
			// The scan row is already committed; a lost notification must
			// not fail the verification.
			c.Logger().Errorf("verify: persist notification scope=%s: %v", scope, err)
		}
	}

	h.broadcastScan(scopes, permit, scan)

	return c.JSON(http.StatusOK, echo.Map{
		"status":          "valid",
		"authenticated":   claims.Authenticated,
		"already_scanned": alreadyScanned,
		"permit": permitSummary{
			ID:              permit.ID,
			DocumentNumber:  permit.DocumentNumber,
			VendorName:      permit.VendorName,
			WorkDescription: permit.WorkDescription,
			Status:          permit.Status,
		},
		"scan": scanSummary{
			ID:        scan.ID,
			ScannedBy: scan.ScannedBy,
			ScannedAt: scan.ScannedAt,
		},
	})
}

// broadcastScan fans the scan out to the dashboards after the database
// writes committed.  Fire-and-forget on a detached context: the HTTP
// response must not wait on the broker, and a broker outage only costs
// liveness (the notification rows are already durable).
func (h *VerifyHandler) broadcastScan(scopes []string, permit *model.Permit, scan *model.ScanEvent) {
	if h.publisher == nil {
		return
	}
	docNo := ""
	if permit.DocumentNumber != nil {
		docNo = *permit.DocumentNumber
	}
	payload := queue.ScanRecordedEvent{
		ScanEventID:    scan.ID,
		PermitID:       permit.ID,
		DocumentNumber: docNo,
		VendorName:     permit.VendorName,
		ScannedBy:      scan.ScannedBy,
		ScannedAt:      scan.ScannedAt.UTC().Format(time.RFC3339),
		Location:       scan.Location,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.publisher.PublishToScopes(ctx, scopes, queue.TypeScanRecorded, payload)
		h.publishUnreadCounts(ctx, scopes)
	}()
}

// publishUnreadCounts pushes the new unread badge value to each affected
// scope.  Best effort; errors were already logged by the publisher.
func (h *VerifyHandler) publishUnreadCounts(ctx context.Context, scopes []string) {
	for _, scope := range scopes {
		unread, err := h.notifications.CountUnread(ctx, []string{scope})
		if err != nil {
			continue
		}
		_ = h.publisher.Publish(ctx, scope, queue.TypeUnreadCount, queue.UnreadCountEvent{Unread: unread})
	}
}
