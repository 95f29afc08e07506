package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/asmorodws/simlok2-sub012/internal/queue"
	"github.com/asmorodws/simlok2-sub012/internal/repository"
	"github.com/asmorodws/simlok2-sub012/internal/service"
)

// CounterHandler exposes administrative counter maintenance.
type CounterHandler struct {
	counters  *repository.CounterRepo
	publisher *service.EventPublisher
}

// NewCounterHandler wires the admin counter endpoints.
func NewCounterHandler(counters *repository.CounterRepo, publisher *service.EventPublisher) *CounterHandler {
	return &CounterHandler{counters: counters, publisher: publisher}
}

// Reset handles POST /v1/admin/counters/:period/reset.  Resetting makes
// the sequence reissue numbers, so the operation is audited BEFORE it is
// applied: the record must exist even if the reset itself then fails, and
// when the audit publish fails the reset is refused outright.
func (h *CounterHandler) Reset(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	period, err := strconv.Atoi(c.Param("period"))
	if err != nil || period < 2000 || period > 9999 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid period"})
	}

	ctx := c.Request().Context()

	// Capture the value being destroyed for the audit record.
	next, err := h.counters.PreviewNext(ctx, period)
	if err != nil {
		c.Logger().Errorf("counter reset: read period %d: %v", period, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	lastIssued := next - 1

	if h.publisher == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "audit trail unavailable"})
	}
	audit := queue.CounterResetEvent{
		Period:    period,
		ResetBy:   adminID,
		LastValue: lastIssued,
	}
	if err := h.publisher.Publish(ctx, queue.ScopeAuditCounter, queue.TypeCounterReset, audit); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "audit trail unavailable"})
	}

	// Same bounded transaction as issuance: the reset must not pin the
	// counter row past the configured timeout either.
	tx, txCtx, cancel, err := h.counters.BeginBoundedTx(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrCounterBusy) {
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "counter_busy"})
		}
		c.Logger().Errorf("counter reset: begin tx: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	defer cancel()
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := h.counters.ResetTx(txCtx, tx, period); err != nil {
		if errors.Is(err, repository.ErrCounterBusy) {
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "counter_busy"})
		}
		c.Logger().Errorf("counter reset: period %d: %v", period, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "counter_busy"})
		}
		c.Logger().Errorf("counter reset: commit: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	committed = true

	return c.JSON(http.StatusOK, echo.Map{
		"period":       period,
		"last_issued":  0,
		"previous_top": lastIssued,
	})
}
