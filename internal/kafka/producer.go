package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/models"
)

// Producer publishes property change events and dead letters.
type Producer struct {
	changes *kafka.Writer
	dlq     *kafka.Writer
	cfg     config.KafkaConfig
	logger  *zap.Logger
}

func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	changes := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicChanges,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxRetries,
		RequiredAcks: kafka.RequireAll,
	}
	dlq := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicDLQ,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries,
		RequiredAcks: kafka.RequireAll,
	}

	logger.Info("kafka producer created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.TopicChanges),
		zap.String("dlq_topic", cfg.TopicDLQ),
	)

	return &Producer{
		changes: changes,
		dlq:     dlq,
		cfg:     cfg,
		logger:  logger,
	}
}

// PublishBatch writes events keyed by property id, so every change to one
// property lands on the same partition in order.
func (p *Producer) PublishBatch(ctx context.Context, events []*models.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := changeMessage(event)
		if err != nil {
			return fmt.Errorf("marshaling event %d: %w", i, err)
		}
		msgs[i] = msg
	}

	if err := p.changes.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publishing batch of %d events: %w", len(events), err)
	}
	return nil
}

func changeMessage(event *models.ChangeEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.PropertyID),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

// PublishDeadLetter copies msg to the DLQ topic with its origin and the
// failure reason attached as headers.
func (p *Producer) PublishDeadLetter(ctx context.Context, msg kafka.Message, reason string) error {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "dlq_reason", Value: []byte(reason)},
			kafka.Header{Key: "original_topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		),
	}

	if err := p.dlq.WriteMessages(ctx, dlqMsg); err != nil {
		return fmt.Errorf("publishing dead letter: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	var errs []error
	if err := p.changes.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing change writer: %w", err))
	}
	if err := p.dlq.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing dlq writer: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("producer close errors: %v", errs)
	}
	return nil
}
