package app

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
)

// logDispatcher stands in for Kafka when no brokers are configured. Outbound
// messages are logged and dropped.
type logDispatcher struct {
	logger ectologger.Logger
}

func (d logDispatcher) SendNotification(ctx context.Context, n models.Notification) error {
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"channel":   n.Channel,
		"entity_id": n.EntityID,
	}).Infof("Notification: %s", n.Message)
	return nil
}

func (d logDispatcher) Broadcast(ctx context.Context, b models.Broadcast) error {
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"severity":  b.Severity,
		"entity_id": b.EntityID,
	}).Warnf("Escalation: %s", b.Message)
	return nil
}

func (d logDispatcher) SendEmail(ctx context.Context, e models.Email) error {
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"to":        e.To,
		"entity_id": e.EntityID,
	}).Infof("Email: %s", e.Subject)
	return nil
}
