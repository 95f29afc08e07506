package queue

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the single topic exchange all domain events flow through.
// Routing keys are channel scopes (role.reviewer, vendor.42, ...), so
// publishers address audiences and subscribers bind to them without either
// side knowing about the other.
const Exchange = "simlok.events"

// Broker wraps one shared AMQP connection.  Channels are cheap and opened
// per operation; the connection is redialed lazily when it drops, so a
// broker restart degrades to transient publish errors instead of requiring
// a process restart.
type Broker struct {
	url  string
	mu   sync.Mutex
	conn *amqp.Connection
}

// Dial connects to the broker at url.  The returned Broker is safe for
// concurrent use by any number of publishers and subscribers.
func Dial(url string) (*Broker, error) {
	b := &Broker{url: url}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("broker dial: %w", err)
	}
	b.conn = conn
	return b, nil
}

// Channel returns a fresh channel on the shared connection, redialing the
// connection first when it has been closed.  Callers own the channel and
// must close it.
func (b *Broker) Channel() (*amqp.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil || b.conn.IsClosed() {
		conn, err := amqp.Dial(b.url)
		if err != nil {
			return nil, fmt.Errorf("broker redial: %w", err)
		}
		b.conn = conn
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("broker channel: %w", err)
	}
	return ch, nil
}

// Close shuts the underlying connection.  Safe to call on an already
// closed broker.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && !b.conn.IsClosed() {
		_ = b.conn.Close()
	}
}

// DeclareExchange idempotently declares the topic exchange on the given
// channel.  Durable so bindings survive broker restarts.
func DeclareExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		Exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	)
}
