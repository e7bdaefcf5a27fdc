package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
	"github.com/shubhsaxena/property-search/internal/resilience"
)

type MessageHandler func(ctx context.Context, event *models.ChangeEvent) error

// DeadLetterWriter receives messages that could not be processed.
type DeadLetterWriter interface {
	PublishDeadLetter(ctx context.Context, msg kafka.Message, reason string) error
}

type Consumer struct {
	reader     *kafka.Reader
	dlq        DeadLetterWriter
	handler    MessageHandler
	cfg        config.KafkaConfig
	retryCfg   resilience.RetryConfig
	logger     *zap.Logger
	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

func NewConsumer(cfg config.KafkaConfig, handler MessageHandler, dlq DeadLetterWriter, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.TopicChanges,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	logger.Info("kafka consumer created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.TopicChanges),
		zap.String("group", cfg.ConsumerGroup),
	)

	return &Consumer{
		reader:  reader,
		dlq:     dlq,
		handler: handler,
		cfg:     cfg,
		retryCfg: resilience.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			InitialWait: 100 * time.Millisecond,
			MaxWait:     2 * time.Second,
			Multiplier:  2.0,
		},
		logger: logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeLoop(ctx)
	}()

	c.logger.Info("kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("kafka consumer shutting down")
				return
			}
			c.logger.Error("fetching kafka message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.processMessage(ctx, msg)
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	start := time.Now()

	event, err := decodeChangeEvent(msg.Value)
	if err != nil {
		c.logger.Error("rejecting kafka message",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
			zap.Int("partition", msg.Partition),
		)
		observability.IndexingEventsTotal.WithLabelValues("decode", "dlq").Inc()
		c.deadLetter(ctx, msg, err.Error())
		c.commitMessage(ctx, msg)
		return
	}

	if !event.Timestamp.IsZero() {
		observability.IndexingLag.Set(time.Since(event.Timestamp).Seconds())
	}

	err = resilience.Retry(ctx, c.retryCfg, func() error {
		return c.handler(ctx, event)
	})
	if err != nil {
		if ctx.Err() != nil {
			// Uncommitted; the group will redeliver after restart.
			return
		}
		c.logger.Error("handler failed after retries, sending to DLQ",
			zap.Error(err),
			zap.String("property_id", event.PropertyID),
		)
		observability.IndexingEventsTotal.WithLabelValues(event.Type, "dlq").Inc()
		c.deadLetter(ctx, msg, fmt.Sprintf("handler error after retries: %v", err))
	} else {
		observability.IndexingEventsTotal.WithLabelValues(event.Type, "success").Inc()
	}

	c.commitMessage(ctx, msg)

	c.logger.Debug("message processed",
		zap.String("property_id", event.PropertyID),
		zap.Duration("duration", time.Since(start)),
	)
}

// decodeChangeEvent parses and validates a change event payload.
func decodeChangeEvent(data []byte) (*models.ChangeEvent, error) {
	var event models.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	if event.PropertyID == "" {
		return nil, fmt.Errorf("missing property_id")
	}
	switch event.Type {
	case "CREATE", "UPDATE":
		if event.Property == nil {
			return nil, fmt.Errorf("%s event without property body", event.Type)
		}
	case "DELETE":
	default:
		return nil, fmt.Errorf("unknown event type: %q", event.Type)
	}
	return &event, nil
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, reason string) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.PublishDeadLetter(ctx, msg, reason); err != nil {
		c.logger.Error("failed to send to DLQ",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
	}
}

func (c *Consumer) commitMessage(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("committing kafka message",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
	}
}

func (c *Consumer) HealthCheck(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", c.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka health check dial: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("kafka health check brokers: %w", err)
	}
	return nil
}

func (c *Consumer) Stop() error {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("closing reader: %w", err)
	}
	return nil
}
