package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/assignment"
	"github.com/Ramsey-B/clover/pkg/clock"
	"github.com/Ramsey-B/clover/pkg/expressions"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/waterfall"
)

const (
	defaultTenderTimeoutMinutes = 30
	defaultSeverity             = "warning"
	defaultNotificationChannel  = "operations"
)

// Dispatcher delivers the outbound messages automation actions produce.
type Dispatcher interface {
	SendNotification(ctx context.Context, notification models.Notification) error
	Broadcast(ctx context.Context, broadcast models.Broadcast) error
	SendEmail(ctx context.Context, email models.Email) error
}

// AutoAssigner runs configured auto-assignment for a shipment.
type AutoAssigner interface {
	AutoAssignWithConfig(ctx context.Context, shipmentID uuid.UUID) (*assignment.Outcome, error)
}

// ActionResult describes what an action did, or would do in dry-run.
type ActionResult struct {
	Action      models.ActionKind `json:"action"`
	Description string            `json:"description"`
	Executed    bool              `json:"executed"`
	DryRun      bool              `json:"dry_run"`
}

type ExecutorDeps struct {
	Shipments  repositories.ShipmentRepo
	Carriers   repositories.CarrierRepo
	WorkItems  repositories.WorkItemRepo
	Assigner   AutoAssigner
	Tenderer   assignment.Tenderer
	Dispatcher Dispatcher
	Template   *expressions.Template
	Clock      clock.Clock
	Logger     ectologger.Logger
}

// ActionExecutor runs the closed set of automation actions. In dry-run every
// action renders its description and returns before any write or outbound call.
type ActionExecutor struct {
	shipments  repositories.ShipmentRepo
	carriers   repositories.CarrierRepo
	workItems  repositories.WorkItemRepo
	assigner   AutoAssigner
	tenderer   assignment.Tenderer
	dispatcher Dispatcher
	template   *expressions.Template
	clock      clock.Clock
	logger     ectologger.Logger
}

func NewActionExecutor(deps ExecutorDeps) *ActionExecutor {
	if deps.Template == nil {
		deps.Template = expressions.NewTemplate(nil)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return &ActionExecutor{
		shipments:  deps.Shipments,
		carriers:   deps.Carriers,
		workItems:  deps.WorkItems,
		assigner:   deps.Assigner,
		tenderer:   deps.Tenderer,
		dispatcher: deps.Dispatcher,
		template:   deps.Template,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Execute runs action against entity. ruleID tags outbound messages and may be nil.
func (x *ActionExecutor) Execute(ctx context.Context, action models.ActionSpec, entity *Entity, ruleID *uuid.UUID, dryRun bool) (*ActionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ActionExecutor.Execute")
	defer span.End()

	if action.Config == nil || action.Config.Kind() != action.Kind {
		return nil, repositories.BadRequest("action %q has no matching config", action.Kind)
	}

	run := actionRun{x: x, entity: entity, ruleID: ruleID, dryRun: dryRun}
	var (
		result *ActionResult
		err    error
	)
	switch config := action.Config.(type) {
	case *models.CreateWorkItemConfig:
		result, err = run.createWorkItem(ctx, config)
	case *models.SendNotificationConfig:
		result, err = run.sendNotification(ctx, config)
	case *models.UpdateStatusConfig:
		result, err = run.updateStatus(ctx, config)
	case *models.AssignCarrierConfig:
		result, err = run.assignCarrier(ctx, config)
	case *models.CreateTenderConfig:
		result, err = run.createTender(ctx, config)
	case *models.AutoApproveConfig:
		result, err = run.autoApprove(ctx, config)
	case *models.EscalateConfig:
		result, err = run.escalate(ctx, config)
	case *models.SendEmailConfig:
		result, err = run.sendEmail(ctx, config)
	default:
		err = repositories.BadRequest("unsupported action %q", action.Kind)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	result.Action = action.Kind
	result.DryRun = dryRun
	return result, nil
}

// actionRun carries one execution's entity and mode.
type actionRun struct {
	x      *ActionExecutor
	entity *Entity
	ruleID *uuid.UUID
	dryRun bool
}

func (r actionRun) render(field, template string) (string, error) {
	out, err := r.x.template.Render(template, r.entity.Snapshot)
	if err != nil {
		return "", repositories.BadRequest("failed to render %s: %v", field, err)
	}
	return out, nil
}

// simulated returns the dry-run result for description.
func simulated(description string) *ActionResult {
	return &ActionResult{Description: "would " + description}
}

func (r actionRun) createWorkItem(ctx context.Context, config *models.CreateWorkItemConfig) (*ActionResult, error) {
	title, err := r.render("title", config.Title)
	if err != nil {
		return nil, err
	}
	description, err := r.render("description", config.Description)
	if err != nil {
		return nil, err
	}
	priority := config.Priority
	if priority == "" {
		priority = models.WorkItemPriorityNormal
	}
	itemType := config.WorkItemType
	if itemType == "" {
		itemType = models.WorkItemTypeAutomation
	}

	summary := fmt.Sprintf("create %s work item %q for %s %s", priority, title, r.entity.Type, r.entity.ID)
	if r.dryRun {
		return simulated(summary), nil
	}

	item := &models.WorkItem{
		Type:        itemType,
		Priority:    priority,
		Title:       title,
		Description: description,
		EntityType:  r.entity.Type,
		EntityID:    r.entity.ID,
		CreatedAt:   r.x.clock.Now(),
	}
	if err := r.x.workItems.Create(ctx, item); err != nil {
		return nil, err
	}
	return &ActionResult{Description: fmt.Sprintf("created %s work item %s %q", priority, item.ID, title), Executed: true}, nil
}

func (r actionRun) sendNotification(ctx context.Context, config *models.SendNotificationConfig) (*ActionResult, error) {
	message, err := r.render("message", config.Message)
	if err != nil {
		return nil, err
	}
	channel := config.Channel
	if channel == "" {
		channel = defaultNotificationChannel
	}

	summary := fmt.Sprintf("notify %s: %s", channel, message)
	if r.dryRun {
		return simulated(summary), nil
	}

	err = r.x.dispatcher.SendNotification(ctx, models.Notification{
		RuleID:     r.ruleID,
		Channel:    channel,
		Message:    message,
		Recipients: config.Recipients,
		EntityType: r.entity.Type,
		EntityID:   r.entity.ID,
		SentAt:     r.x.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	return &ActionResult{Description: fmt.Sprintf("notified %s: %s", channel, message), Executed: true}, nil
}

func (r actionRun) updateStatus(ctx context.Context, config *models.UpdateStatusConfig) (*ActionResult, error) {
	id, err := uuid.Parse(r.entity.ID)
	if err != nil {
		return nil, repositories.BadRequest("invalid %s id %q", r.entity.Type, r.entity.ID)
	}

	summary := fmt.Sprintf("set %s %s status to %s", r.entity.Type, r.entity.ID, config.Status)
	switch r.entity.Type {
	case models.EntityTypeShipment:
		if r.dryRun {
			return simulated(summary), nil
		}
		err = r.x.shipments.UpdateStatus(ctx, id, models.ShipmentStatus(config.Status))
	case models.EntityTypeCarrier:
		if r.dryRun {
			return simulated(summary), nil
		}
		err = r.x.carriers.UpdateStatus(ctx, id, models.CarrierStatus(config.Status))
	default:
		return nil, repositories.BadRequest("update_status does not apply to %s", r.entity.Type)
	}
	if err != nil {
		return nil, err
	}
	return &ActionResult{Description: strings.Replace(summary, "set", "updated", 1), Executed: true}, nil
}

func (r actionRun) assignCarrier(ctx context.Context, config *models.AssignCarrierConfig) (*ActionResult, error) {
	shipmentID, ok := r.entity.ShipmentID()
	if !ok {
		return nil, repositories.BadRequest("assign_carrier needs a shipment, got %s", r.entity.Type)
	}
	if config.CarrierID == nil {
		return r.autoAssign(ctx, shipmentID)
	}

	shipment, err := r.x.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	rate := shipment.CustomerPriceCents
	if config.RateCents != nil {
		rate = *config.RateCents
	}

	summary := fmt.Sprintf("assign carrier %s to shipment %s at %d cents", *config.CarrierID, shipmentID, rate)
	if r.dryRun {
		return simulated(summary), nil
	}

	assigned, err := r.x.shipments.AssignCarrier(ctx, shipmentID, *config.CarrierID, rate)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return &ActionResult{Description: fmt.Sprintf("shipment %s already has another carrier", shipmentID)}, nil
	}
	return &ActionResult{Description: "assigned" + strings.TrimPrefix(summary, "assign"), Executed: true}, nil
}

func (r actionRun) autoAssign(ctx context.Context, shipmentID uuid.UUID) (*ActionResult, error) {
	if r.dryRun {
		return simulated(fmt.Sprintf("run auto-assignment for shipment %s", shipmentID)), nil
	}

	outcome, err := r.x.assigner.AutoAssignWithConfig(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	executed := outcome.Status == assignment.OutcomeAutoTendered ||
		outcome.Status == assignment.OutcomeWaterfallStarted ||
		outcome.Status == assignment.OutcomeTenderSent
	return &ActionResult{
		Description: fmt.Sprintf("auto-assignment for shipment %s: %s (%s)", shipmentID, outcome.Status, outcome.Message),
		Executed:    executed,
	}, nil
}

func (r actionRun) createTender(ctx context.Context, config *models.CreateTenderConfig) (*ActionResult, error) {
	shipmentID, ok := r.entity.ShipmentID()
	if !ok {
		return nil, repositories.BadRequest("create_tender needs a shipment, got %s", r.entity.Type)
	}
	if len(config.CarrierIDs) == 0 {
		return r.autoAssign(ctx, shipmentID)
	}

	shipment, err := r.x.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	rate := shipment.CustomerPriceCents
	if config.RateCents != nil {
		rate = *config.RateCents
	}
	timeout := config.TimeoutMinutes
	if timeout <= 0 {
		timeout = defaultTenderTimeoutMinutes
	}

	if len(config.CarrierIDs) == 1 {
		summary := fmt.Sprintf("tender shipment %s to carrier %s at %d cents", shipmentID, config.CarrierIDs[0], rate)
		if r.dryRun {
			return simulated(summary), nil
		}
		tender, err := r.x.tenderer.IssueTender(ctx, waterfall.TenderRequest{
			ShipmentID:     shipmentID,
			CarrierID:      config.CarrierIDs[0],
			RateCents:      rate,
			TimeoutMinutes: timeout,
		})
		if err != nil {
			return nil, err
		}
		return &ActionResult{Description: fmt.Sprintf("sent tender %s for shipment %s", tender.ID, shipmentID), Executed: true}, nil
	}

	autoEscalate := config.AutoEscalate == nil || *config.AutoEscalate
	summary := fmt.Sprintf("start waterfall for shipment %s across %d carriers at %d cents", shipmentID, len(config.CarrierIDs), rate)
	if r.dryRun {
		return simulated(summary), nil
	}
	created, err := r.x.tenderer.CreateWaterfall(ctx, waterfall.CreateRequest{
		ShipmentID:          shipmentID,
		CarrierIDs:          config.CarrierIDs,
		BaseRateCents:       rate,
		RateIncreasePercent: config.RateIncreasePercent,
		TimeoutMinutes:      timeout,
		AutoEscalate:        autoEscalate,
	})
	if err != nil {
		return nil, err
	}
	return &ActionResult{Description: fmt.Sprintf("started waterfall %s for shipment %s", created.WaterfallID, shipmentID), Executed: true}, nil
}

func (r actionRun) autoApprove(ctx context.Context, config *models.AutoApproveConfig) (*ActionResult, error) {
	shipmentID, ok := r.entity.ShipmentID()
	if !ok {
		return nil, repositories.BadRequest("auto_approve needs a shipment, got %s", r.entity.Type)
	}
	reason, err := r.render("reason", config.Reason)
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("approve shipment %s", shipmentID)
	if reason != "" {
		summary += ": " + reason
	}
	if r.dryRun {
		return simulated(summary), nil
	}

	if err := r.x.shipments.UpdateStatus(ctx, shipmentID, models.ShipmentStatusApproved); err != nil {
		return nil, err
	}
	return &ActionResult{Description: "approved" + strings.TrimPrefix(summary, "approve"), Executed: true}, nil
}

func (r actionRun) escalate(ctx context.Context, config *models.EscalateConfig) (*ActionResult, error) {
	message, err := r.render("message", config.Message)
	if err != nil {
		return nil, err
	}
	severity := config.Severity
	if severity == "" {
		severity = defaultSeverity
	}

	summary := fmt.Sprintf("broadcast %s escalation: %s", severity, message)
	if r.dryRun {
		return simulated(summary), nil
	}

	err = r.x.dispatcher.Broadcast(ctx, models.Broadcast{
		RuleID:     r.ruleID,
		Message:    message,
		Severity:   severity,
		Channel:    config.Channel,
		EntityType: r.entity.Type,
		EntityID:   r.entity.ID,
		SentAt:     r.x.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	return &ActionResult{Description: summary, Executed: true}, nil
}

func (r actionRun) sendEmail(ctx context.Context, config *models.SendEmailConfig) (*ActionResult, error) {
	subject, err := r.render("subject", config.Subject)
	if err != nil {
		return nil, err
	}
	body, err := r.render("body", config.Body)
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("email %s: %q", strings.Join(config.To, ", "), subject)
	if r.dryRun {
		return simulated(summary), nil
	}

	err = r.x.dispatcher.SendEmail(ctx, models.Email{
		RuleID:     r.ruleID,
		To:         config.To,
		Subject:    subject,
		Body:       body,
		EntityType: r.entity.Type,
		EntityID:   r.entity.ID,
		SentAt:     r.x.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	return &ActionResult{Description: "emailed" + strings.TrimPrefix(summary, "email"), Executed: true}, nil
}
