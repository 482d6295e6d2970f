package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/automation"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/waterfall"
)

// ResponseProcessor applies a carrier's reply to its tender.
type ResponseProcessor interface {
	ProcessTenderResponse(ctx context.Context, tenderID uuid.UUID, accepted bool, counterRateCents *int64) (*waterfall.ResponseResult, error)
}

// EventProcessor runs the automation rules of a lifecycle event.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event models.LifecycleEvent) ([]automation.RuleOutcome, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads carrier responses and lifecycle events and hands them to
// the engines. Messages are committed after handling, even when the handler
// fails, so a bad message never blocks its partition.
type Consumer struct {
	reader    messageReader
	responses ResponseProcessor
	events    EventProcessor
	logger    ectologger.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

func NewConsumer(config ConsumerConfig, responses ResponseProcessor, events EventProcessor, logger ectologger.Logger) (*Consumer, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if len(config.Topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	if config.GroupID == "" {
		return nil, fmt.Errorf("group ID is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           config.Brokers,
		GroupTopics:       config.Topics,
		GroupID:           config.GroupID,
		MinBytes:          config.MinBytes,
		MaxBytes:          config.MaxBytes,
		MaxWait:           config.MaxWait,
		CommitInterval:    config.CommitInterval,
		StartOffset:       config.StartOffset,
		SessionTimeout:    config.SessionTimeout,
		HeartbeatInterval: config.HeartbeatInterval,
	})
	return newConsumer(reader, responses, events, logger), nil
}

func newConsumer(reader messageReader, responses ResponseProcessor, events EventProcessor, logger ectologger.Logger) *Consumer {
	return &Consumer{reader: reader, responses: responses, events: events, logger: logger}
}

// Start begins consuming in the background.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("consumer is already running")
	}
	c.running = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("Kafka consumer started")
	return nil
}

// Stop waits for the in-flight message and closes the reader.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	c.logger.Info("Kafka consumer stopped")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.WithError(err).Error("Failed to fetch message")
			continue
		}

		if err := c.Handle(ctx, msg); err != nil {
			c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("Failed to handle message")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithError(err).Errorf("Failed to commit message at offset %d", msg.Offset)
		}
	}
}

// Handle routes one message by its envelope type. Unknown types are skipped.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	headers := make([]Header, len(msg.Headers))
	for i, h := range msg.Headers {
		headers[i] = Header{Key: h.Key, Value: h.Value}
	}
	ctx = tracing.ExtractTraceParent(ctx, ExtractHeaders(headers).TraceParent)
	ctx, span := tracing.StartSpan(ctx, "Consumer.Handle")
	defer span.End()

	err := c.route(ctx, msg)
	status := "success"
	switch {
	case err == nil:
	case repositories.IsNotFound(err), repositories.IsConflict(err), repositories.IsBadRequest(err):
		// Stale or duplicate deliveries are expected and not retried.
		status = "rejected"
		c.logger.WithContext(ctx).WithError(err).WithField("topic", msg.Topic).Warn("Message rejected")
		err = nil
	default:
		status = "error"
		tracing.RecordError(span, err)
	}
	metrics.RecordKafkaConsume(msg.Topic, status)
	return err
}

func (c *Consumer) route(ctx context.Context, msg kafka.Message) error {
	env, err := ParseEnvelope(msg.Value)
	if err != nil {
		return repositories.BadRequest("%v", err)
	}

	switch env.Type {
	case MessageTenderResponse:
		var response TenderResponse
		if err := env.Decode(&response); err != nil {
			return repositories.BadRequest("%v", err)
		}
		result, err := c.responses.ProcessTenderResponse(ctx, response.TenderID, response.Accepted, response.CounterRateCents)
		if err != nil {
			return err
		}
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"tender_id":  response.TenderID,
			"carrier_id": response.CarrierID,
			"accepted":   response.Accepted,
		}).Infof("Processed tender response: %s", result.Message)
		return nil

	case MessageLifecycleEvent:
		var event models.LifecycleEvent
		if err := env.Decode(&event); err != nil {
			return repositories.BadRequest("%v", err)
		}
		if event.EntityType == "" {
			event.EntityType = event.Trigger.EntityType()
		}
		outcomes, err := c.events.ProcessEvent(ctx, event)
		if err != nil {
			return err
		}
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"trigger":   event.Trigger,
			"entity_id": event.EntityID,
			"rules":     len(outcomes),
		}).Debug("Processed lifecycle event")
		return nil

	default:
		c.logger.WithContext(ctx).WithField("type", env.Type).Debug("Skipping message type")
		return nil
	}
}
