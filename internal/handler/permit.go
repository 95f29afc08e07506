package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/asmorodws/simlok2-sub012/internal/model"
	"github.com/asmorodws/simlok2-sub012/internal/queue"
	"github.com/asmorodws/simlok2-sub012/internal/repository"
	"github.com/asmorodws/simlok2-sub012/internal/service"
	"github.com/asmorodws/simlok2-sub012/internal/token"
)

// PermitHandler serves the approval flow and the permit read endpoints
// used by dashboards and the scanner app.
type PermitHandler struct {
	permits       *repository.PermitRepo
	counters      *repository.CounterRepo
	scans         *repository.ScanRepo
	notifications *repository.NotificationRepo
	codec         *token.Codec
	publisher     *service.EventPublisher
}

// NewPermitHandler wires the permit endpoints.
func NewPermitHandler(
	permits *repository.PermitRepo,
	counters *repository.CounterRepo,
	scans *repository.ScanRepo,
	notifications *repository.NotificationRepo,
	codec *token.Codec,
	publisher *service.EventPublisher,
) *PermitHandler {
	return &PermitHandler{
		permits:       permits,
		counters:      counters,
		scans:         scans,
		notifications: notifications,
		codec:         codec,
		publisher:     publisher,
	}
}

// permitResponse is the full permit payload for the read endpoints.
type permitResponse struct {
	ID              uint64     `json:"id"`
	VendorUserID    uint64     `json:"vendor_user_id"`
	VendorName      string     `json:"vendor_name"`
	WorkDescription string     `json:"work_description"`
	Status          string     `json:"status"`
	DocumentNumber  *string    `json:"document_number"`
	ApprovedBy      *uint64    `json:"approved_by"`
	ApprovedAt      *time.Time `json:"approved_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toPermitResponse(p *model.Permit) permitResponse {
	return permitResponse{
		ID:              p.ID,
		VendorUserID:    p.VendorUserID,
		VendorName:      p.VendorName,
		WorkDescription: p.WorkDescription,
		Status:          p.Status,
		DocumentNumber:  p.DocumentNumber,
		ApprovedBy:      p.ApprovedBy,
		ApprovedAt:      p.ApprovedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// scanEventResponse is one audit-trail row in the scan history.
type scanEventResponse struct {
	ID        uint64    `json:"id"`
	ScannedBy uint64    `json:"scanned_by"`
	ScannedAt time.Time `json:"scanned_at"`
	Location  *string   `json:"location,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
}

func permitIDParam(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid permit id")
	}
	return id, nil
}

// Approve handles POST /v1/permits/:id/approve.  Number issuance and the
// permit update commit in one transaction: if the status guard rejects the
// permit, the rollback returns the reserved number and the sequence stays
// gapless.  The QR token is only encoded after the commit succeeds.
func (h *PermitHandler) Approve(c echo.Context) error {
	approverID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := permitIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid permit id"})
	}

	ctx := c.Request().Context()
	now := time.Now().UTC()
	period := now.Year()

	// The whole issuance transaction runs on the bounded context, so a
	// stalled lock wait or commit surfaces as retryable contention
	// instead of pinning the counter row for the connection's lifetime.
	tx, txCtx, cancel, err := h.counters.BeginBoundedTx(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrCounterBusy) {
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "counter_busy"})
		}
		c.Logger().Errorf("approve: begin tx: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	defer cancel()
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	seq, err := h.counters.IssueNextTx(txCtx, tx, period)
	if err != nil {
		if errors.Is(err, repository.ErrCounterBusy) {
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "counter_busy"})
		}
		c.Logger().Errorf("approve: issue number for %d: %v", period, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	number := repository.FormatDocumentNumber(seq, period)

	if err := h.permits.AssignDocumentNumberTx(txCtx, tx, id, number, approverID, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrPermitNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "permit not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "permit is not pending"})
		case errors.Is(err, context.DeadlineExceeded):
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "counter_busy"})
		}
		c.Logger().Errorf("approve: assign number to permit %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}

	if err := tx.Commit(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "counter_busy"})
		}
		c.Logger().Errorf("approve: commit: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	committed = true

	qr := h.codec.Encode(id, now)

	permit, err := h.permits.GetByID(ctx, id)
	if err == nil {
		h.announceApproval(permit, approverID, now)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"permit_id":       id,
		"document_number": number,
		"token":           qr,
		"issued_at":       now,
		"expires_at":      now.Add(h.codec.TTL()),
	})
}

// announceApproval persists the vendor-facing notification and fans the
// approval out.  Runs after commit; failures are logged, never surfaced.
func (h *PermitHandler) announceApproval(permit *model.Permit, approverID uint64, approvedAt time.Time) {
	docNo := ""
	if permit.DocumentNumber != nil {
		docNo = *permit.DocumentNumber
	}
	scopes := []string{
		queue.VendorScope(permit.VendorUserID),
		queue.ScopeReviewer,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	message := fmt.Sprintf("Permit approved with document number %s", docNo)
	for _, scope := range scopes {
		n := &model.Notification{
			Scope:    scope,
			Type:     queue.TypePermitApproved,
			PermitID: permit.ID,
			Message:  message,
		}
		_ = h.notifications.Create(ctx, n)
	}
	cancel()

	if h.publisher == nil {
		return
	}
	payload := queue.PermitApprovedEvent{
		PermitID:       permit.ID,
		DocumentNumber: docNo,
		VendorName:     permit.VendorName,
		ApprovedBy:     approverID,
		ApprovedAt:     approvedAt.Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.publisher.PublishToScopes(ctx, scopes, queue.TypePermitApproved, payload)
	}()
}

// PreviewNumber handles GET /v1/permits/number/preview.  It shows the
// number the next approval would receive without reserving anything, so
// repeated previews are stable until an approval lands.
func (h *PermitHandler) PreviewNumber(c echo.Context) error {
	period := time.Now().UTC().Year()
	if s := c.QueryParam("period"); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil || p < 2000 || p > 9999 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid period"})
		}
		period = p
	}
	next, err := h.counters.PreviewNext(c.Request().Context(), period)
	if err != nil {
		c.Logger().Errorf("preview: period %d: %v", period, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"period":          period,
		"next_number":     next,
		"document_number": repository.FormatDocumentNumber(next, period),
	})
}

// GetByID handles GET /v1/permits/:id.  Vendors may only read their own
// permits; reviewing roles and admins may read any.
func (h *PermitHandler) GetByID(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	role, err := getRole(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := permitIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid permit id"})
	}

	permit, err := h.permits.GetByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrPermitNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "permit not found"})
	}
	if err != nil {
		c.Logger().Errorf("permit get %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	if role == model.RoleVendor && permit.VendorUserID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, toPermitResponse(permit))
}

// ListScans handles GET /v1/permits/:id/scans: the permit's audit trail,
// newest scan first, plus the aggregate "has this ever been scanned" flag.
func (h *PermitHandler) ListScans(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	role, err := getRole(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := permitIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid permit id"})
	}

	ctx := c.Request().Context()
	permit, err := h.permits.GetByID(ctx, id)
	if errors.Is(err, repository.ErrPermitNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "permit not found"})
	}
	if err != nil {
		c.Logger().Errorf("scan history %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	if role == model.RoleVendor && permit.VendorUserID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	events, err := h.scans.ListByPermit(ctx, id)
	if err != nil {
		c.Logger().Errorf("scan history %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	out := make([]scanEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, scanEventResponse{
			ID:        ev.ID,
			ScannedBy: ev.ScannedBy,
			ScannedAt: ev.ScannedAt,
			Location:  ev.Location,
			Notes:     ev.Notes,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"permit_id":        id,
		"has_been_scanned": len(out) > 0,
		"scans":            out,
	})
}
