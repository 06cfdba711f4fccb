package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/docstream-labs/docsearch/pkg/config"
)

// KafkaSource drains candidate documents that external producers push onto a
// Kafka topic. Each cycle it reads until the batch cap or the per-source
// deadline; hitting the deadline on an idle topic is a normal empty fetch,
// not an error.
type KafkaSource struct {
	reader   *kafka.Reader
	maxBatch int
	logger   *slog.Logger
}

// NewKafkaSource creates a KafkaSource for the configured topic.
func NewKafkaSource(cfg config.KafkaConfig) *KafkaSource {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &KafkaSource{
		reader:   r,
		maxBatch: maxBatch,
		logger:   slog.Default().With("component", "kafka-source", "topic", cfg.Topic),
	}
}

// Name implements Source.
func (s *KafkaSource) Name() string {
	return "kafka:" + s.reader.Config().Topic
}

// Fetch implements Source. ReadMessage commits offsets as part of the
// consumer group, so a candidate is delivered to at most one cycle.
func (s *KafkaSource) Fetch(ctx context.Context) ([]Candidate, error) {
	candidates := make([]Candidate, 0, s.maxBatch)
	for len(candidates) < s.maxBatch {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return candidates, nil
			}
			return candidates, err
		}
		var c Candidate
		if err := json.Unmarshal(msg.Value, &c); err != nil {
			s.logger.Warn("skipping malformed candidate message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// Close closes the underlying Kafka reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
