// Package service provides the event publisher that decouples state
// changes from dashboard delivery.  Errors are logged and returned so
// callers can ignore failures without interrupting the main request flow:
// notification delivery is best-effort relative to the database write it
// announces.
package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/asmorodws/simlok2-sub012/internal/queue"
)

// EventPublisher publishes envelope events to the topic exchange, routed
// by channel scope.  A nil *EventPublisher is a valid no-op publisher, so
// the service keeps working when the broker was unreachable at startup.
type EventPublisher struct {
	broker *q.Broker
}

// NewEventPublisher wraps the given broker.  Passing nil yields the no-op
// publisher.
func NewEventPublisher(b *q.Broker) *EventPublisher {
	if b == nil {
		return nil
	}
	return &EventPublisher{broker: b}
}

// Publish wraps payload into an event envelope and publishes it to the
// given scope.  The function never panics; any error is logged and
// returned so the caller can choose to ignore it.  Messages are marked
// persistent and publishing never blocks on subscriber count or slow
// subscribers — fan-out buffering is the broker's job.
func (p *EventPublisher) Publish(ctx context.Context, scope, eventType string, payload interface{}) error {
	if p == nil {
		return nil
	}
	ev, err := q.NewEvent(eventType, scope, payload)
	if err != nil {
		log.Printf("publisher: build event failed: %v", err)
		return err
	}

	ch, err := p.broker.Channel()
	if err != nil {
		log.Printf("publisher: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := q.DeclareExchange(ch); err != nil {
		log.Printf("publisher: exchange declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("publisher: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		q.Exchange, // exchange
		scope,      // routing key = channel scope
		false,      // mandatory
		false,      // immediate
		pub,
	); err != nil {
		log.Printf("publisher: publish to %s failed: %v", scope, err)
		return err
	}
	return nil
}

// PublishToScopes publishes the same payload once per scope.  Used when an
// event addresses several audiences (e.g. a scan goes to reviewer and
// approver dashboards plus the owning vendor's private channel).  The
// first error is returned after all scopes were attempted.
func (p *EventPublisher) PublishToScopes(ctx context.Context, scopes []string, eventType string, payload interface{}) error {
	if p == nil {
		return nil
	}
	var firstErr error
	for _, scope := range scopes {
		if err := p.Publish(ctx, scope, eventType, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
