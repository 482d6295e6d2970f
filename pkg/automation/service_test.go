package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/rules"
)

const ruleFileYAML = `
rules:
  - name: Flag heavy Texas loads
    trigger: shipment_created
    priority: 20
    rollout_stage: shadow
    conditions:
      - field: origin_state
        operator: equals
        value: TX
      - field: weight_lbs
        operator: greater_than
        value: 40000
    action:
      kind: create_work_item
      config:
        title: "Heavy load {{ shipment_number }}"
        priority: high
  - name: Page on exhausted waterfalls
    trigger: waterfall_exhausted
    rollout_stage: full
    enabled: false
    action:
      kind: escalate
      config:
        message: "No carrier took {{ shipment_id }}"
        severity: critical
`

func validRule() *models.AutomationRule {
	return &models.AutomationRule{
		Name:         "approve IL",
		Trigger:      models.TriggerShipmentCreated,
		RolloutStage: models.RolloutFull,
		Enabled:      true,
		Conditions: database.NewJSONB([]rules.Condition{
			{Field: "origin_state", Operator: rules.OperatorEquals, Value: "IL"},
			{Field: "carrier.name", Operator: rules.OperatorStartsWith, Value: "Fast"},
		}),
		Action: models.NewActionSpec(&models.AutoApproveConfig{Reason: "lane {{ origin_state }}"}),
	}
}

func TestService_ValidateRule(t *testing.T) {
	f := newFixture(t)

	t.Run("should accept a valid rule", func(t *testing.T) {
		assert.NoError(t, f.service.ValidateRule(validRule()))
	})

	cases := []struct {
		name   string
		mutate func(rule *models.AutomationRule)
		want   string
	}{
		{
			name:   "should reject an unknown field",
			mutate: func(r *models.AutomationRule) { r.Conditions.Data[0].Field = "origin_zip" },
			want:   `no field "origin_zip"`,
		},
		{
			name:   "should reject a numeric operator on a text field",
			mutate: func(r *models.AutomationRule) { r.Conditions.Data[0].Operator = rules.OperatorGreaterThan },
			want:   "needs a numeric field",
		},
		{
			name:   "should reject an unknown trigger",
			mutate: func(r *models.AutomationRule) { r.Trigger = "shipment_exploded" },
			want:   "unknown trigger",
		},
		{
			name:   "should reject an out of range percentage",
			mutate: func(r *models.AutomationRule) { r.RolloutStage, r.RolloutPercentage = models.RolloutPartial, 101 },
			want:   "RolloutPercentage",
		},
		{
			name: "should reject an invalid action config",
			mutate: func(r *models.AutomationRule) {
				r.Action = models.NewActionSpec(&models.SendEmailConfig{To: []string{"not-an-email"}, Subject: "s", Body: "b"})
			},
			want: "email",
		},
		{
			name: "should reject a mismatched action kind",
			mutate: func(r *models.AutomationRule) {
				r.Action = models.ActionSpec{Kind: models.ActionEscalate, Config: &models.AutoApproveConfig{}}
			},
			want: "does not match",
		},
		{
			name: "should reject a broken template",
			mutate: func(r *models.AutomationRule) {
				r.Action = models.NewActionSpec(&models.CreateWorkItemConfig{Title: "{{ origin_state[ }}"})
			},
			want: "invalid expression",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := validRule()
			tc.mutate(rule)
			err := f.service.ValidateRule(rule)
			require.Error(t, err)
			assert.True(t, repositories.IsBadRequest(err))
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	t.Run("should check tender rules against the tender schema", func(t *testing.T) {
		rule := validRule()
		rule.Trigger = models.TriggerTenderDeclined
		rule.Conditions = database.NewJSONB([]rules.Condition{
			{Field: "offered_rate_cents", Operator: rules.OperatorGreaterThan, Value: 100000},
			{Field: "carrier.on_time_percentage", Operator: rules.OperatorLessThan, Value: 90},
		})
		rule.Action = models.NewActionSpec(&models.EscalateConfig{Message: "declined"})
		assert.NoError(t, f.service.ValidateRule(rule))
	})
}

func TestService_SaveRule(t *testing.T) {
	ctx := context.Background()

	t.Run("should assign an id and persist", func(t *testing.T) {
		f := newFixture(t)
		rule := validRule()
		require.NoError(t, f.service.SaveRule(ctx, rule))

		stored, err := f.service.GetRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, "approve IL", stored.Name)
		assert.Equal(t, models.ActionAutoApprove, stored.Action.Kind)
	})

	t.Run("should not persist an invalid rule", func(t *testing.T) {
		f := newFixture(t)
		rule := validRule()
		rule.Name = ""
		require.Error(t, f.service.SaveRule(ctx, rule))

		all, err := f.service.ListRules(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestService_ImportRules(t *testing.T) {
	ctx := context.Background()

	t.Run("should parse a yaml rule file", func(t *testing.T) {
		parsed, err := ParseRules([]byte(ruleFileYAML))
		require.NoError(t, err)
		require.Len(t, parsed, 2)

		heavy := parsed[0]
		assert.Equal(t, models.TriggerShipmentCreated, heavy.Trigger)
		assert.Equal(t, models.RolloutShadow, heavy.RolloutStage)
		assert.Equal(t, 20, heavy.Priority)
		assert.True(t, heavy.Enabled)
		require.Len(t, heavy.Conditions.Data, 2)
		assert.Equal(t, rules.OperatorGreaterThan, heavy.Conditions.Data[1].Operator)
		config, ok := heavy.Action.Config.(*models.CreateWorkItemConfig)
		require.True(t, ok)
		assert.Equal(t, "Heavy load {{ shipment_number }}", config.Title)
		assert.Equal(t, models.WorkItemPriorityHigh, config.Priority)

		assert.False(t, parsed[1].Enabled)
		assert.Equal(t, models.ActionEscalate, parsed[1].Action.Kind)
	})

	t.Run("should save every rule of a valid file", func(t *testing.T) {
		f := newFixture(t)
		saved, err := f.service.ImportRules(ctx, []byte(ruleFileYAML))
		require.NoError(t, err)
		require.Len(t, saved, 2)

		all, err := f.service.ListRules(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("should save nothing when one rule is invalid", func(t *testing.T) {
		f := newFixture(t)
		broken := ruleFileYAML + `
  - name: Broken
    trigger: shipment_created
    rollout_stage: full
    conditions:
      - field: no_such_field
        operator: equals
        value: x
    action:
      kind: auto_approve
`
		_, err := f.service.ImportRules(ctx, []byte(broken))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no_such_field")

		all, err := f.service.ListRules(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("should reject an unknown action kind", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.ImportRules(ctx, []byte("rules:\n  - name: x\n    action:\n      kind: teleport\n"))
		assert.True(t, repositories.IsBadRequest(err))
	})
}
