package sweeper

import (
	"context"
	"time"

	"github.com/Ramsey-B/clover/pkg/assignment"
	"github.com/Ramsey-B/clover/pkg/waterfall"
)

const (
	TaskExpiredTenders = "expired-tenders"
	TaskNewShipments   = "new-shipments"

	DefaultExpiredTendersInterval = time.Minute
	DefaultNewShipmentsInterval   = 5 * time.Minute
)

type ExpiryChecker interface {
	CheckExpiredTenders(ctx context.Context) (*waterfall.SweepResult, error)
}

type ShipmentProcessor interface {
	ProcessNewShipments(ctx context.Context) (*assignment.SweepResult, error)
}

// ExpiredTendersTask escalates waterfalls whose tender timed out.
func ExpiredTendersTask(checker ExpiryChecker, interval time.Duration) Task {
	if interval <= 0 {
		interval = DefaultExpiredTendersInterval
	}
	return Task{
		Name:     TaskExpiredTenders,
		Interval: interval,
		Run: func(ctx context.Context) (map[string]any, error) {
			result, err := checker.CheckExpiredTenders(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"escalated":          result.EscalatedCount,
				"expired_standalone": result.ExpiredStandalone,
			}, nil
		},
	}
}

// NewShipmentsTask auto-assigns shipments that have not been attempted yet.
func NewShipmentsTask(processor ShipmentProcessor, interval time.Duration) Task {
	if interval <= 0 {
		interval = DefaultNewShipmentsInterval
	}
	return Task{
		Name:     TaskNewShipments,
		Interval: interval,
		Run: func(ctx context.Context) (map[string]any, error) {
			result, err := processor.ProcessNewShipments(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"scanned":  result.Scanned,
				"claimed":  result.Claimed,
				"skipped":  result.Skipped,
				"failed":   result.Failed,
				"disabled": result.Disabled,
			}, nil
		},
	}
}
