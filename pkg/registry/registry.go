// Package registry validates trigger definitions at authoring time: action
// parameter payloads against JSON schemas and condition trees against the
// evaluator's lint. Runtime components never reject a stored definition;
// anything that slips past authoring degrades to "never fires".
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/practiq/automata/pkg/condition"
	"github.com/practiq/automata/pkg/models"
)

type Registry struct {
	logger  *slog.Logger
	schemas map[models.ActionType]string
}

// NewRegistry creates a registry preloaded with the built-in action
// schemas.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		logger:  logger.With("module", "registry"),
		schemas: make(map[models.ActionType]string),
	}

	for actionType, schema := range builtinSchemas() {
		r.RegisterActionSchema(actionType, schema)
	}

	return r
}

// RegisterActionSchema adds or replaces the JSON schema for an action type.
// Plugins bringing their own action kinds register here at startup.
func (r *Registry) RegisterActionSchema(actionType models.ActionType, schema string) {
	r.schemas[actionType] = schema
}

// ValidateTrigger runs every definition-time check: structural validation,
// condition-tree lint, and the per-action schema validation. The returned
// slice is empty for a clean definition.
func (r *Registry) ValidateTrigger(trigger *models.Trigger) []error {
	var problems []error

	err := trigger.Validate()
	if err != nil {
		problems = append(problems, err)
	}

	if trigger.Condition != nil {
		problems = append(problems, condition.Lint(trigger.Condition)...)
	}

	for index, action := range trigger.Actions {
		err := r.validateAction(action)
		if err != nil {
			problems = append(problems, fmt.Errorf("action %d: %w", index, err))
		}
	}

	if trigger.AutoAdvance.Enabled && trigger.AutoAdvance.StageID == "" && trigger.AutoAdvance.StepID == "" {
		problems = append(problems, fmt.Errorf("auto-advance enabled without a target stage or step"))
	}

	return problems
}

func (r *Registry) validateAction(action models.Action) error {
	if action.Type == models.ActionTypeUnknown {
		// Forward-compatible by contract: the executor records these as
		// skipped, so an unknown type is a warning-free pass here.
		r.logger.Warn("Trigger carries an action of unknown type", "raw", string(action.RawParams))

		return nil
	}

	schema, ok := r.schemas[action.Type]
	if !ok {
		return fmt.Errorf("no schema registered for action type %s", action.Type)
	}

	payload, err := actionParams(action)
	if err != nil {
		return err
	}

	return validateAgainstSchema(schema, payload)
}

func actionParams(action models.Action) ([]byte, error) {
	var params any

	switch action.Type {
	case models.ActionTypeAdvanceStage:
		params = action.AdvanceStage
	case models.ActionTypeAdvanceStep:
		params = action.AdvanceStep
	case models.ActionTypeCreateTask:
		params = action.CreateTask
	case models.ActionTypeNotify:
		params = action.Notify
	case models.ActionTypeInvokeAgent:
		params = action.InvokeAgent
	case models.ActionTypeSetField:
		params = action.SetField
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s parameters: %w", action.Type, err)
	}

	// A nil parameter pointer marshals to null; treat it as absent rather
	// than handing null to the schema.
	if params == nil || string(payload) == "null" {
		return nil, fmt.Errorf("action %s has no parameters", action.Type)
	}

	return payload, nil
}
