// Package audit writes the write-once records (feedback, interactions,
// transactions, usage). With a Kafka producer configured the records are
// published as events and persisted by the worker; otherwise, or when a
// publish fails, they go straight to the store.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/illegalcall/brainyx/internal/models"
	"github.com/illegalcall/brainyx/internal/repository"
)

// ErrUnknownKind is returned by Apply for events it cannot route.
var ErrUnknownKind = errors.New("unknown audit record kind")

// Event is the message published on the audit topic.
type Event struct {
	Kind   string          `json:"kind"`
	Record json.RawMessage `json:"record"`
}

type Recorder struct {
	store    repository.RecordStore
	producer sarama.SyncProducer
	topic    string
}

// NewRecorder returns a Recorder. A nil producer writes every record directly.
func NewRecorder(store repository.RecordStore, producer sarama.SyncProducer, topic string) *Recorder {
	return &Recorder{store: store, producer: producer, topic: topic}
}

func (r *Recorder) Feedback(ctx context.Context, rec models.Feedback) error {
	return r.record(ctx, models.RecordFeedback, rec.UserID, rec)
}

func (r *Recorder) Interaction(ctx context.Context, rec models.Interaction) error {
	return r.record(ctx, models.RecordInteraction, rec.UserID, rec)
}

func (r *Recorder) Transaction(ctx context.Context, rec models.Transaction) error {
	return r.record(ctx, models.RecordTransaction, rec.UserID, rec)
}

func (r *Recorder) Usage(ctx context.Context, rec models.Usage) error {
	return r.record(ctx, models.RecordUsage, rec.UserID, rec)
}

func (r *Recorder) record(ctx context.Context, kind, userID string, rec interface{}) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", kind, err)
	}
	ev := Event{Kind: kind, Record: payload}

	if r.producer != nil {
		err := r.publish(userID, ev)
		if err == nil {
			return nil
		}
		slog.Warn("Failed to publish audit event, writing directly", "kind", kind, "error", err)
	}

	return Apply(ctx, r.store, ev)
}

func (r *Recorder) publish(userID string, ev Event) error {
	eventBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: r.topic,
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(eventBytes),
	}
	if _, _, err := r.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Apply persists one event through the store.
func Apply(ctx context.Context, store repository.RecordStore, ev Event) error {
	switch ev.Kind {
	case models.RecordFeedback:
		var rec models.Feedback
		if err := json.Unmarshal(ev.Record, &rec); err != nil {
			return fmt.Errorf("failed to decode feedback record: %w", err)
		}
		return store.SaveFeedback(ctx, rec)

	case models.RecordInteraction:
		var rec models.Interaction
		if err := json.Unmarshal(ev.Record, &rec); err != nil {
			return fmt.Errorf("failed to decode interaction record: %w", err)
		}
		return store.SaveInteraction(ctx, rec)

	case models.RecordTransaction:
		var rec models.Transaction
		if err := json.Unmarshal(ev.Record, &rec); err != nil {
			return fmt.Errorf("failed to decode transaction record: %w", err)
		}
		return store.SaveTransaction(ctx, rec)

	case models.RecordUsage:
		var rec models.Usage
		if err := json.Unmarshal(ev.Record, &rec); err != nil {
			return fmt.Errorf("failed to decode usage record: %w", err)
		}
		return store.SaveUsage(ctx, rec)

	default:
		return fmt.Errorf("%w %q", ErrUnknownKind, ev.Kind)
	}
}
