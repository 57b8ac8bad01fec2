package accesssync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"privylocker/internal/confidential"
	"privylocker/internal/locker/models"
	"privylocker/internal/locker/ports"
	"privylocker/internal/platform/config"
	"privylocker/pkg/platform/circuit"
)

const (
	headerAction   = "action"
	publishTimeout = 5 * time.Second

	retryMinBackoff = 100 * time.Millisecond
	retryMaxBackoff = 30 * time.Second
)

// KafkaPublisher produces access changes to one topic, keyed by subject so all
// changes of a document or share land on one partition in order.
type KafkaPublisher struct {
	client  *kgo.Client
	topic   string
	breaker *circuit.Breaker
}

var _ ports.AccessPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher connects a producer. The breaker fails fast while brokers
// are unreachable so request latency is not held hostage to them.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RecordDeliveryTimeout(publishTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaPublisher{
		client:  client,
		topic:   cfg.Topic,
		breaker: circuit.New("kafka-access-publisher", circuit.WithFailureThreshold(3)),
	}, nil
}

// EnsureTopic creates the topic if it does not exist.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopic(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, resp.Err)
	}
	return nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, change models.AccessChange) error {
	value, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode access change: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(change.Subject),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: headerAction, Value: []byte(change.Action)},
		},
	}
	return p.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return p.client.ProduceSync(ctx, record).FirstErr()
	})
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// Syncer consumes access changes and applies them to a confidential service.
// A record that fails to apply is retried with backoff until it succeeds or the
// context ends; offsets are committed only after every record of a poll applied,
// so a crash or shutdown replays from the first unapplied record.
type Syncer struct {
	client     *kgo.Client
	svc        confidential.Service
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewSyncer(cfg config.KafkaConfig, svc confidential.Service, logger *slog.Logger) (*Syncer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID+"-syncer"),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return newSyncer(client, svc, logger), nil
}

func newSyncer(client *kgo.Client, svc confidential.Service, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		client:     client,
		svc:        svc,
		logger:     logger,
		minBackoff: retryMinBackoff,
		maxBackoff: retryMaxBackoff,
	}
}

// Run polls until ctx is done.
func (s *Syncer) Run(ctx context.Context) error {
	defer s.client.Close()
	for {
		fetches := s.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			s.logger.ErrorContext(ctx, "access sync fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			if err := s.handle(ctx, iter.Next()); err != nil {
				// shutting down mid-batch; uncommitted records are redelivered
				return nil
			}
		}
		if err := s.client.CommitUncommittedOffsets(ctx); err != nil {
			s.logger.ErrorContext(ctx, "access sync commit failed", "error", err)
		}
	}
}

// handle applies one record, retrying failed applies. It returns an error only
// when ctx ends before the change applied.
func (s *Syncer) handle(ctx context.Context, r *kgo.Record) error {
	var change models.AccessChange
	if err := json.Unmarshal(r.Value, &change); err != nil {
		// poison record: skip rather than block the partition
		s.logger.WarnContext(ctx, "dropping malformed access change", "key", string(r.Key), "error", err)
		return nil
	}

	backoff := s.minBackoff
	for attempt := 1; ; attempt++ {
		err := Apply(ctx, s.svc, change)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrUnknownAction) {
			s.logger.WarnContext(ctx, "dropping access change with unknown action", "key", string(r.Key), "error", err)
			return nil
		}
		s.logger.ErrorContext(ctx, "access sync apply failed",
			"key", string(r.Key),
			"offset", r.Offset,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}
