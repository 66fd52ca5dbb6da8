// Package kafka opens the sarama clients that carry audit records from the API
// to the audit worker.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/illegalcall/brainyx/internal/config"
)

const clientID = "brainyx"

var errNoBrokers = errors.New("no kafka brokers configured")

// dialer opens a throwaway client to check that the cluster answers.
type dialer func(brokers []string, cfg *sarama.Config) (sarama.Client, error)

type readiness struct {
	attempts int
	delay    time.Duration
	dial     dialer
}

var defaultReadiness = readiness{attempts: 10, delay: 3 * time.Second, dial: sarama.NewClient}

// Brokers splits a comma separated broker list, dropping blanks.
func Brokers(list string) ([]string, error) {
	var brokers []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}
	return brokers, nil
}

func (r readiness) wait(ctx context.Context, brokers []string) error {
	checkCfg := sarama.NewConfig()
	checkCfg.ClientID = clientID
	checkCfg.Net.DialTimeout = time.Second

	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		var client sarama.Client
		if client, err = r.dial(brokers, checkCfg); err == nil {
			client.Close()
			return nil
		}
		slog.Info("Waiting for Kafka", "brokers", brokers, "attempt", attempt, "error", err)

		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("kafka not reachable after %d attempts: %w", r.attempts, err)
}

// producerConfig keys messages by user so that one user's records stay
// ordered within a partition.
func producerConfig(cfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = clientID
	c.Producer.Return.Successes = true
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Producer.Retry.Max = cfg.RetryMax
	c.Producer.Retry.Backoff = cfg.RetryBackoff
	return c
}

func consumerConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = clientID
	c.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	c.Consumer.Offsets.Initial = sarama.OffsetOldest
	c.Consumer.Return.Errors = true
	return c
}

// NewProducer waits for the cluster and returns a synchronous audit producer.
func NewProducer(ctx context.Context, cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	brokers, err := Brokers(cfg.Broker)
	if err != nil {
		return nil, err
	}
	if err := defaultReadiness.wait(ctx, brokers); err != nil {
		return nil, err
	}
	return sarama.NewSyncProducer(brokers, producerConfig(cfg))
}

// NewConsumer waits for the cluster and joins the audit consumer group.
func NewConsumer(ctx context.Context, cfg config.KafkaConfig) (sarama.ConsumerGroup, error) {
	brokers, err := Brokers(cfg.Broker)
	if err != nil {
		return nil, err
	}
	if err := defaultReadiness.wait(ctx, brokers); err != nil {
		return nil, err
	}
	return sarama.NewConsumerGroup(brokers, cfg.Group, consumerConfig())
}
