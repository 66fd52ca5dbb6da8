// Package worker consumes the audit topic and persists each record.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/illegalcall/brainyx/internal/audit"
	"github.com/illegalcall/brainyx/internal/config"
	"github.com/illegalcall/brainyx/internal/repository"
)

// errMalformed marks events that can never be applied and are not retried.
var errMalformed = errors.New("malformed audit event")

type Worker struct {
	cfg      *config.Config
	store    repository.RecordStore
	consumer sarama.ConsumerGroup
}

func NewWorker(cfg *config.Config, store repository.RecordStore, consumer sarama.ConsumerGroup) *Worker {
	slog.Info("Initializing new Worker")
	return &Worker{
		cfg:      cfg,
		store:    store,
		consumer: consumer,
	}
}

// Start consumes until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	topics := []string{w.cfg.Kafka.Topic}
	slog.Info("Starting worker", "topics", topics, "group", w.cfg.Kafka.Group)

	go func() {
		for err := range w.consumer.Errors() {
			slog.Error("Kafka consumer error received", "error", err)
		}
	}()

	for {
		if err := w.consumer.Consume(ctx, topics, w); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			slog.Error("Error from consumer.Consume", "error", err)
		}
		if ctx.Err() != nil {
			slog.Info("Worker shutting down gracefully")
			return nil
		}
	}
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (w *Worker) Setup(sarama.ConsumerGroupSession) error {
	slog.Info("Consumer group session setup complete")
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (w *Worker) Cleanup(sarama.ConsumerGroupSession) error {
	slog.Info("Consumer group session cleanup complete")
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (w *Worker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := w.processEvent(session.Context(), message); err != nil {
				slog.Error("Failed to persist audit event", "offset", message.Offset, "partition", message.Partition, "error", err)
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (w *Worker) processEvent(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev audit.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	// Every record gets at least one write, whatever the retry setting.
	attempts := max(1, w.cfg.Kafka.RetryMax)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = w.apply(ctx, ev)
		if err == nil || errors.Is(err, errMalformed) {
			return err
		}
		slog.Warn("Audit write failed", "kind", ev.Kind, "attempt", attempt, "error", err)
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(w.cfg.Kafka.RetryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("giving up on %s record after %d attempts: %w", ev.Kind, attempts, err)
}

func (w *Worker) apply(ctx context.Context, ev audit.Event) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Store.Timeout)
	defer cancel()

	err := audit.Apply(ctx, w.store, ev)
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, audit.ErrUnknownKind) {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return err
}
