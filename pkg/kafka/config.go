package kafka

import (
	"strings"
	"time"
)

// Topics names the topics clover reads and writes.
type Topics struct {
	// Tenders receives tender offers and cancellations for carriers.
	Tenders string
	// Events carries entity lifecycle events that drive automation rules.
	Events string
	// Notifications receives in-app notifications, broadcasts and emails.
	Notifications string
	// Responses carries carrier accept/decline replies.
	Responses string
}

func DefaultTopics() Topics {
	return Topics{
		Tenders:       "clover.tenders",
		Events:        "clover.events",
		Notifications: "clover.notifications",
		Responses:     "clover.tender-responses",
	}
}

// ProducerConfig configures the Kafka producer
type ProducerConfig struct {
	Brokers []string
	Topics  Topics

	// BatchSize is the number of messages to batch before sending
	BatchSize int

	// BatchTimeout is the maximum time to wait before sending a batch
	BatchTimeout time.Duration

	// RequiredAcks specifies the number of acks required
	// 0 = no acks, 1 = leader only, -1 = all replicas
	RequiredAcks int

	MaxAttempts  int
	WriteTimeout time.Duration

	// Compression is one of none, gzip, snappy, lz4, zstd
	Compression string
}

func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:      []string{"localhost:9092"},
		Topics:       DefaultTopics(),
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: 1,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		Compression:  "snappy",
	}
}

// ConsumerConfig configures the Kafka consumer
type ConsumerConfig struct {
	Brokers []string

	// Topics are consumed together by one consumer group
	Topics  []string
	GroupID string

	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	CommitInterval    time.Duration
	StartOffset       int64
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	topics := DefaultTopics()
	return ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		Topics:            []string{topics.Responses, topics.Events},
		GroupID:           "clover",
		MinBytes:          1,
		MaxBytes:          10e6, // 10MB
		MaxWait:           3 * time.Second,
		CommitInterval:    time.Second,
		StartOffset:       LastOffset,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	}
}

// Offset constants
const (
	FirstOffset int64 = -2 // Start from the oldest message
	LastOffset  int64 = -1 // Start from the newest message
)

// ParseBrokers splits a comma-separated broker list.
func ParseBrokers(brokers string) []string {
	var out []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			out = append(out, broker)
		}
	}
	return out
}
