package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/automation"
	"github.com/Ramsey-B/clover/pkg/clock"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/waterfall"
)

var (
	_ waterfall.Notifier    = (*Producer)(nil)
	_ automation.Dispatcher = (*Producer)(nil)
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes tender offers, lifecycle events and outbound messages.
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	clock  clock.Clock
	topics Topics
}

func NewProducer(config ProducerConfig, logger ectologger.Logger) (*Producer, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	var compression kafka.Compression
	switch config.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "snappy":
		compression = kafka.Snappy
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	}

	// Topic stays empty on the writer so each message names its own.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              config.BatchSize,
		BatchTimeout:           config.BatchTimeout,
		MaxAttempts:            config.MaxAttempts,
		WriteTimeout:           config.WriteTimeout,
		Compression:            compression,
		RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, config.Topics, clock.Real{}, logger), nil
}

func newProducer(writer messageWriter, topics Topics, clk clock.Clock, logger ectologger.Logger) *Producer {
	return &Producer{writer: writer, topics: topics, clock: clk, logger: logger}
}

func (p *Producer) TenderOffered(ctx context.Context, tender *models.Tender) error {
	return p.publish(ctx, p.topics.Tenders, tender.ShipmentID.String(), MessageTenderOffered, TenderMessage{Tender: tender})
}

func (p *Producer) TenderCancelled(ctx context.Context, tender *models.Tender, reason string) error {
	return p.publish(ctx, p.topics.Tenders, tender.ShipmentID.String(), MessageTenderCancelled, TenderMessage{Tender: tender, Reason: reason})
}

func (p *Producer) PublishEvent(ctx context.Context, event models.LifecycleEvent) error {
	return p.publish(ctx, p.topics.Events, event.EntityID, MessageLifecycleEvent, event)
}

func (p *Producer) SendNotification(ctx context.Context, notification models.Notification) error {
	return p.publish(ctx, p.topics.Notifications, notification.EntityID, MessageNotification, notification)
}

func (p *Producer) Broadcast(ctx context.Context, broadcast models.Broadcast) error {
	return p.publish(ctx, p.topics.Notifications, broadcast.EntityID, MessageBroadcast, broadcast)
}

func (p *Producer) SendEmail(ctx context.Context, email models.Email) error {
	return p.publish(ctx, p.topics.Notifications, email.EntityID, MessageEmail, email)
}

func (p *Producer) publish(ctx context.Context, topic, key string, msgType MessageType, payload any) error {
	ctx, span := tracing.StartSpan(ctx, "Producer.Publish")
	defer span.End()

	start := time.Now()
	env, err := NewEnvelope(msgType, p.clock.Now(), payload)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	headers := MessageHeaders{
		Type:        msgType,
		TraceParent: tracing.GetTraceParent(ctx),
		TraceState:  tracing.GetTraceState(ctx),
	}
	kafkaHeaders := make([]kafka.Header, 0, 3)
	for _, h := range headers.ToKafkaHeaders() {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: h.Key, Value: h.Value})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   data,
		Headers: kafkaHeaders,
		Time:    env.OccurredAt,
	})
	if err != nil {
		metrics.RecordKafkaPublish(topic, "error", time.Since(start).Seconds())
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic": topic,
			"type":  msgType,
			"key":   key,
		}).Error("Failed to publish message")
		return fmt.Errorf("failed to publish %s: %w", msgType, err)
	}

	metrics.RecordKafkaPublish(topic, "success", time.Since(start).Seconds())
	return nil
}

func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	p.logger.Info("Kafka producer closed")
	return nil
}
