// Package events publishes committed settlement records to downstream
// consumers.
//
// Publication happens after the ledger commit and is best effort: a failed
// publish is logged by the caller and never rolls back a settlement.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/roach88/fxledger/internal/ledger"
)

// Event types.
const (
	TypeSettled = "exchange.settled"
	TypeFailed  = "exchange.failed"
)

// SettlementEvent is the message published for every committed log entry.
type SettlementEvent struct {
	Type       string          `json:"type"`
	Entry      ledger.LogEntry `json:"entry"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewSettlementEvent wraps a committed log entry.
func NewSettlementEvent(entry ledger.LogEntry) SettlementEvent {
	typ := TypeSettled
	if !entry.OK {
		typ = TypeFailed
	}
	return SettlementEvent{Type: typ, Entry: entry, OccurredAt: entry.Timestamp}
}

// Publisher delivers settlement events.
type Publisher interface {
	Publish(ctx context.Context, ev SettlementEvent) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, SettlementEvent) error { return nil }
func (Nop) Close() error                                   { return nil }

// KafkaPublisher writes events to a Kafka topic, keyed by log entry id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a synchronous producer that waits for all
// in-sync replicas.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish encodes ev as JSON and writes it.
func (p *KafkaPublisher) Publish(ctx context.Context, ev SettlementEvent) error {
	msg, err := Message(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Entry.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Message builds the Kafka message for ev.
func Message(ev SettlementEvent) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %s: %w", ev.Entry.ID, err)
	}
	return kafka.Message{
		Key:   []byte(ev.Entry.ID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}, nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []SettlementEvent
	err    error
}

// NewRecorder creates a Recorder. A non-nil err is returned by every Publish
// after the event is recorded.
func NewRecorder(err error) *Recorder {
	return &Recorder{err: err}
}

func (r *Recorder) Publish(ctx context.Context, ev SettlementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *Recorder) Close() error { return nil }

// Events returns the events published so far.
func (r *Recorder) Events() []SettlementEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SettlementEvent(nil), r.events...)
}
