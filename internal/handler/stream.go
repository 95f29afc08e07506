package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/asmorodws/simlok2-sub012/internal/queue"
	"github.com/asmorodws/simlok2-sub012/internal/stream"
)

// StreamHandler serves the live dashboard feed over Server-Sent Events.
// Each connection gets its own broker subscription bound to exactly one
// channel scope; the subscription's lifetime is the HTTP connection's
// lifetime.
type StreamHandler struct {
	broker    *queue.Broker
	subjects  *SubjectValidator
	heartbeat time.Duration
}

// NewStreamHandler wires the SSE endpoint.  broker may be nil when the
// service started without one; connections then degrade to heartbeats
// only, which keeps dashboards connected until the broker returns and
// the client reconnects.
func NewStreamHandler(broker *queue.Broker, subjects *SubjectValidator, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &StreamHandler{broker: broker, subjects: subjects, heartbeat: heartbeat}
}

// Stream handles GET /v1/events/stream.  The scope defaults to the first
// scope the caller's identity resolves to; an explicit ?scope= must pass
// the subscription check, which is where cross-audience access dies.  On
// every heartbeat tick the subject is re-validated through the validation
// cache, so a deactivated account is cut off within one heartbeat plus
// one cache TTL.
func (h *StreamHandler) Stream(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	role, err := getRole(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx := c.Request().Context()
	if _, err := h.subjects.validate(ctx, uid); err != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	scope := c.QueryParam("scope")
	if scope == "" {
		scopes := queue.ScopesFor(role, uid)
		if len(scopes) == 0 {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		scope = scopes[0]
	}
	if !queue.CanSubscribe(role, uid, scope) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	// Ack frame first so clients can distinguish "connected, quiet
	// channel" from a hung request.
	fmt.Fprintf(res, "event: connected\ndata: {\"scope\":%q}\n\n", scope)
	res.Flush()

	var deliveries <-chan amqp.Delivery
	var sub *stream.Subscriber
	if h.broker != nil {
		sub, err = stream.Open(h.broker, scope)
		if err != nil {
			// Degraded mode: hold the connection open with heartbeats
			// instead of failing it. The client's reconnect policy will
			// re-establish the full feed once the broker is back.
			c.Logger().Warnf("stream: subscribe scope=%s degraded: %v", scope, err)
		} else {
			defer sub.Close()
			deliveries = sub.Deliveries()
		}
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				// Broker-side teardown; end the stream and let the
				// client reconnect.
				return nil
			}
			fmt.Fprintf(res, "event: message\ndata: %s\n\n", d.Body)
			res.Flush()
		case <-ticker.C:
			if _, err := h.subjects.validate(ctx, uid); err != nil {
				// Account deactivated mid-stream.
				return nil
			}
			fmt.Fprint(res, ": heartbeat\n\n")
			res.Flush()
		}
	}
}
