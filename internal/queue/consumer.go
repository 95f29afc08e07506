package queue

// consumer.go contains the background consumer that mirrors verification
// and counter-maintenance events into logs/audit.log.  The database is the
// authoritative audit store; this file is the operator-readable trail.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const auditQueueName = "audit.trail"

// Binding patterns for the audit queue.  Every scan and approval event is
// published to exactly one vendor.* scope (the owning vendor's private
// channel), so binding vendor.* yields exactly one copy per event without
// the duplicates a catch-all binding would collect from the role-wide
// scopes.  Counter maintenance has no vendor; it publishes to audit.*.
var auditBindings = []string{"vendor.*", "audit.*"}

// StartAuditConsumer connects to RabbitMQ, declares the durable audit
// queue bound to the topic exchange, and starts consuming.  Each event is
// appended to logs/audit.log as a single human-readable line.  The
// function runs a reconnect loop with capped backoff and keeps running
// through processing errors, rejecting the offending message so the
// server continues operating.
func StartAuditConsumer(url string) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("audit-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn); err != nil {
			log.Printf("audit-consumer: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("audit-consumer: set QoS failed: %v", err)
	}

	if err := DeclareExchange(ch); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	_, err = ch.QueueDeclare(auditQueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, pattern := range auditBindings {
		if err := ch.QueueBind(auditQueueName, pattern, Exchange, false, nil); err != nil {
			return fmt.Errorf("queue bind %s: %w", pattern, err)
		}
	}

	msgs, err := ch.Consume(auditQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body); err != nil {
			log.Printf("audit-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	line, err := formatAuditLine(ev)
	if err != nil {
		return err
	}
	if line == "" {
		return nil // event type not audit-relevant
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "audit.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// formatAuditLine renders one event as a single log line.  Unknown event
// types return an empty line and are acknowledged without logging, so new
// dashboard-only event types never wedge the audit queue.
func formatAuditLine(ev Event) (string, error) {
	switch ev.Type {
	case TypeScanRecorded:
		var p ScanRecordedEvent
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", ev.Type, err)
		}
		location := "-"
		if p.Location != nil && *p.Location != "" {
			location = *p.Location
		}
		return fmt.Sprintf("[%s] Permit scanned | permit_id=%d | document=%q | vendor=%q | scanned_by=%d | location=%q\n",
			ev.OccurredAt, p.PermitID, p.DocumentNumber, p.VendorName, p.ScannedBy, location), nil
	case TypePermitApproved:
		var p PermitApprovedEvent
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", ev.Type, err)
		}
		return fmt.Sprintf("[%s] Permit approved | permit_id=%d | document=%q | vendor=%q | approved_by=%d\n",
			ev.OccurredAt, p.PermitID, p.DocumentNumber, p.VendorName, p.ApprovedBy), nil
	case TypeCounterReset:
		var p CounterResetEvent
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", ev.Type, err)
		}
		return fmt.Sprintf("[%s] Counter reset | period=%d | last_value=%d | reset_by=%d\n",
			ev.OccurredAt, p.Period, p.LastValue, p.ResetBy), nil
	}
	return "", nil
}
