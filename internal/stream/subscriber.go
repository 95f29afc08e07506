// Package stream gives each live dashboard connection its own broker
// subscription.  One connection, one channel, one exclusive auto-delete
// queue bound to the caller's scope: the lifecycle of the AMQP resources
// is exactly the lifecycle of the HTTP connection, and tearing one down
// can never affect another subscriber.
package stream

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/asmorodws/simlok2-sub012/internal/queue"
)

// Subscriber is a single connection's view of one channel scope.
type Subscriber struct {
	scope      string
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
	closeOnce  sync.Once
}

// Open creates the per-connection channel, declares an exclusive
// auto-delete queue, binds it to the scope on the topic exchange and
// starts consuming.  Messages are auto-acked: a dashboard that missed a
// frame reconnects and moves on, there is no replay.
func Open(b *q.Broker, scope string) (*Subscriber, error) {
	ch, err := b.Channel()
	if err != nil {
		return nil, err
	}
	if err := q.DeclareExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("stream exchange declare: %w", err)
	}
	// Server-named queue; exclusive + autoDelete ties its life to this
	// channel, so a dropped connection cleans up broker-side state even
	// if Close never runs.
	queue, err := ch.QueueDeclare(
		"",    // name (server generated)
		false, // durable
		true,  // autoDelete
		true,  // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("stream queue declare: %w", err)
	}
	if err := ch.QueueBind(queue.Name, scope, q.Exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("stream queue bind: %w", err)
	}
	deliveries, err := ch.Consume(
		queue.Name, // queue
		"",         // consumer tag
		true,       // autoAck
		true,       // exclusive
		false,      // noLocal
		false,      // noWait
		nil,        // args
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("stream consume: %w", err)
	}
	return &Subscriber{scope: scope, ch: ch, deliveries: deliveries}, nil
}

// Scope returns the channel scope this subscriber is bound to.
func (s *Subscriber) Scope() string { return s.scope }

// Deliveries returns the stream of raw messages for this subscriber.  The
// channel is closed when the subscription ends for any reason.
func (s *Subscriber) Deliveries() <-chan amqp.Delivery { return s.deliveries }

// Close releases the AMQP channel (and with it the exclusive queue).
// Idempotent: client abort and a consume error often race to trigger
// cleanup, and both may call Close.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		_ = s.ch.Close()
	})
}
