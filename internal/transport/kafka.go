package transport

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/config"
)

const (
	defaultKafkaTopic = "print-jobs"
	defaultGroupID    = "printspool"
	kafkaBackoff      = time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes records from a topic. Offsets are committed after
// the job is enqueued, so a crash in between redelivers the record.
type KafkaSource struct {
	reader messageReader
	enq    Enqueuer
	logger *zap.Logger
}

func NewKafkaSource(cfg config.KafkaConfig, enq Enqueuer, logger *zap.Logger) *KafkaSource {
	topic := cfg.Topic
	if topic == "" {
		topic = defaultKafkaTopic
	}
	group := cfg.GroupID
	if group == "" {
		group = defaultGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		GroupID:  group,
		MaxBytes: 1e6,
	})
	return newKafkaSource(reader, enq, logger)
}

func newKafkaSource(reader messageReader, enq Enqueuer, logger *zap.Logger) *KafkaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSource{reader: reader, enq: enq, logger: logger}
}

// Run blocks until ctx is done.
func (s *KafkaSource) Run(ctx context.Context) error {
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			s.logger.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(kafkaBackoff):
			}
			continue
		}

		submit(string(m.Value), "kafka", s.enq, s.logger)

		if err := s.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			s.logger.Warn("kafka commit failed",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		}
	}
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
