package registry

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiq/automata/pkg/models"
)

func validTrigger() *models.Trigger {
	return &models.Trigger{
		ID:        "trg-1",
		TenantID:  "tenant-1",
		Name:      "Notify on completion",
		Mode:      models.TriggerModeEvent,
		EventName: "task.completed",
		Actions: []models.Action{{
			Type:   models.ActionTypeNotify,
			Notify: &models.NotifyParams{Channel: "email", Template: "done"},
		}},
		Enabled: true,
	}
}

func TestValidateTrigger(t *testing.T) {
	r := NewRegistry(slog.Default())

	tests := []struct {
		name    string
		mutate  func(*models.Trigger)
		problem string
	}{
		{
			name:   "valid trigger passes",
			mutate: func(_ *models.Trigger) {},
		},
		{
			name: "notify without channel",
			mutate: func(trigger *models.Trigger) {
				trigger.Actions[0].Notify = &models.NotifyParams{Template: "done"}
			},
			problem: "action 0",
		},
		{
			name: "notify with bad channel",
			mutate: func(trigger *models.Trigger) {
				trigger.Actions[0].Notify = &models.NotifyParams{Channel: "carrier-pigeon", Template: "done"}
			},
			problem: "action 0",
		},
		{
			name: "advance_stage without stage_id",
			mutate: func(trigger *models.Trigger) {
				trigger.Actions = []models.Action{{
					Type:         models.ActionTypeAdvanceStage,
					AdvanceStage: &models.AdvanceStageParams{},
				}}
			},
			problem: "action 0",
		},
		{
			name: "action without parameters",
			mutate: func(trigger *models.Trigger) {
				trigger.Actions = []models.Action{{Type: models.ActionTypeCreateTask}}
			},
			problem: "has no parameters",
		},
		{
			name: "auto-advance without target",
			mutate: func(trigger *models.Trigger) {
				trigger.AutoAdvance = models.AutoAdvance{Enabled: true}
			},
			problem: "auto-advance enabled without a target",
		},
		{
			name: "malformed condition tree",
			mutate: func(trigger *models.Trigger) {
				trigger.Condition = &models.ConditionNode{
					Kind:     models.ConditionKindLeaf,
					Operator: models.OpEqual,
					Value:    "x",
				}
			},
			problem: "field",
		},
		{
			name: "structural failure surfaces",
			mutate: func(trigger *models.Trigger) {
				trigger.EventName = ""
			},
			problem: "event",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := validTrigger()
			tt.mutate(trigger)

			problems := r.ValidateTrigger(trigger)

			if tt.problem == "" {
				assert.Empty(t, problems)

				return
			}

			require.NotEmpty(t, problems)

			found := false

			for _, problem := range problems {
				if strings.Contains(problem.Error(), tt.problem) {
					found = true

					break
				}
			}

			assert.True(t, found, "expected a problem mentioning %q, got %v", tt.problem, problems)
		})
	}
}

func TestValidateTriggerUnknownActionPasses(t *testing.T) {
	r := NewRegistry(slog.Default())

	trigger := validTrigger()
	trigger.Actions = []models.Action{{
		Type:      models.ActionTypeUnknown,
		RawParams: []byte(`{"anything":"goes"}`),
	}}

	// Unknown action types are the executor's problem (recorded as
	// skipped), not a definition error.
	assert.Empty(t, r.ValidateTrigger(trigger))
}

func TestRegisterActionSchema(t *testing.T) {
	r := NewRegistry(slog.Default())

	// Tighten the notify schema to a single allowed template.
	r.RegisterActionSchema(models.ActionTypeNotify, `{
		"type": "object",
		"properties": {"template": {"const": "only-this"}},
		"required": ["template"]
	}`)

	trigger := validTrigger()
	assert.NotEmpty(t, r.ValidateTrigger(trigger))

	trigger.Actions[0].Notify.Template = "only-this"
	assert.Empty(t, r.ValidateTrigger(trigger))
}
