package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/asmorodws/simlok2-sub012/internal/queue"
	"github.com/asmorodws/simlok2-sub012/internal/repository"
)

// NotificationHandler serves the persisted notification history and the
// unread badge.  Scope resolution happens server-side from the JWT
// identity; the client never names scopes on these endpoints.
type NotificationHandler struct {
	notifications *repository.NotificationRepo
}

// NewNotificationHandler wires the notification endpoints.
func NewNotificationHandler(n *repository.NotificationRepo) *NotificationHandler {
	return &NotificationHandler{notifications: n}
}

type notificationResponse struct {
	ID        uint64    `json:"id"`
	Scope     string    `json:"scope"`
	Type      string    `json:"type"`
	PermitID  uint64    `json:"permit_id,omitempty"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func callerScopes(c echo.Context) ([]string, error) {
	uid, err := getUserID(c)
	if err != nil {
		return nil, err
	}
	role, err := getRole(c)
	if err != nil {
		return nil, err
	}
	return queue.ScopesFor(role, uid), nil
}

// List handles GET /v1/notifications: the caller's notification history
// across all of its scopes, newest first, with the current unread count.
func (h *NotificationHandler) List(c echo.Context) error {
	scopes, err := callerScopes(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 200 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}

	ctx := c.Request().Context()
	list, err := h.notifications.ListByScopes(ctx, scopes, limit)
	if err != nil {
		c.Logger().Errorf("notifications list: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	unread, err := h.notifications.CountUnread(ctx, scopes)
	if err != nil {
		c.Logger().Errorf("notifications unread count: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}

	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, notificationResponse{
			ID:        n.ID,
			Scope:     n.Scope,
			Type:      n.Type,
			PermitID:  n.PermitID,
			Message:   n.Message,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"notifications": out,
		"unread":        unread,
	})
}

// MarkRead handles POST /v1/notifications/:id/read.  The repository guards
// the update by the caller's scopes, so acknowledging another audience's
// notification reports not-found rather than leaking its existence.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	scopes, err := callerScopes(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid notification id"})
	}

	ctx := c.Request().Context()
	if err := h.notifications.MarkRead(ctx, id, scopes); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "notification not found"})
		}
		c.Logger().Errorf("notification mark read %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}

	unread, err := h.notifications.CountUnread(ctx, scopes)
	if err != nil {
		c.Logger().Errorf("notifications unread count: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":     id,
		"unread": unread,
	})
}
