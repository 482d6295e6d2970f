// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WaterfallsTotal tracks waterfalls by lifecycle status
	WaterfallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "waterfall",
			Name:      "waterfalls_total",
			Help:      "Total number of waterfalls by status",
		},
		[]string{"status"},
	)

	// TendersTotal tracks tenders by the status they reached
	TendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "waterfall",
			Name:      "tenders_total",
			Help:      "Total number of tender transitions by status",
		},
		[]string{"status"},
	)

	// EscalationsTotal tracks waterfall escalations by reason
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "waterfall",
			Name:      "escalations_total",
			Help:      "Total number of waterfall escalations by reason",
		},
		[]string{"reason"},
	)

	// RuleEvaluationsTotal tracks automation rule evaluations
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "automation",
			Name:      "rule_evaluations_total",
			Help:      "Total number of automation rule evaluations by trigger, stage and result",
		},
		[]string{"trigger", "stage", "result"},
	)

	// AutoAssignOutcomesTotal tracks auto-assignment decisions
	AutoAssignOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "assignment",
			Name:      "outcomes_total",
			Help:      "Total number of auto-assignment decisions by outcome",
		},
		[]string{"outcome"},
	)

	// SweepRunsTotal tracks sweeper task runs
	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Total number of sweeper task runs by status",
		},
		[]string{"task", "status"},
	)

	// SweepDuration tracks sweeper task duration
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "sweeper",
			Name:      "run_duration_seconds",
			Help:      "Duration of sweeper task runs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"task"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// KafkaMessagesConsumed tracks Kafka messages handled by the consumer
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of Kafka messages consumed",
		},
		[]string{"topic", "status"},
	)
)

func RecordWaterfall(status string) {
	WaterfallsTotal.WithLabelValues(status).Inc()
}

func RecordTender(status string) {
	TendersTotal.WithLabelValues(status).Inc()
}

func RecordEscalation(reason string) {
	EscalationsTotal.WithLabelValues(reason).Inc()
}

// RecordRuleEvaluation records one automation rule evaluation
func RecordRuleEvaluation(trigger, stage, result string) {
	RuleEvaluationsTotal.WithLabelValues(trigger, stage, result).Inc()
}

func RecordAutoAssignOutcome(outcome string) {
	AutoAssignOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordSweep records a sweeper task run
func RecordSweep(task, status string, durationSeconds float64) {
	SweepRunsTotal.WithLabelValues(task, status).Inc()
	SweepDuration.WithLabelValues(task).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

func RecordKafkaConsume(topic, status string) {
	KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
}
