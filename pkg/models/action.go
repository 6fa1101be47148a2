package models

import (
	"encoding/json"
	"fmt"
)

// ActionType discriminates the action variants a trigger can carry.
type ActionType string

const (
	ActionTypeAdvanceStage ActionType = "advance_stage"
	ActionTypeAdvanceStep  ActionType = "advance_step"
	ActionTypeCreateTask   ActionType = "create_task"
	ActionTypeNotify       ActionType = "notify"
	ActionTypeInvokeAgent  ActionType = "invoke_agent"
	ActionTypeSetField     ActionType = "set_field"

	// ActionTypeUnknown marks actions written by a newer version. The
	// executor records them as skipped instead of failing the firing.
	ActionTypeUnknown ActionType = "unknown"
)

// Action is a tagged variant: exactly one params field matching Type is set.
// The executor exhaustively switches on Type, so an action shape it does not
// know about cannot be silently misread as another kind.
type Action struct {
	Type ActionType `json:"type"`

	AdvanceStage *AdvanceStageParams `json:"advance_stage,omitempty"`
	AdvanceStep  *AdvanceStepParams  `json:"advance_step,omitempty"`
	CreateTask   *CreateTaskParams   `json:"create_task,omitempty"`
	Notify       *NotifyParams       `json:"notify,omitempty"`
	InvokeAgent  *InvokeAgentParams  `json:"invoke_agent,omitempty"`
	SetField     *SetFieldParams     `json:"set_field,omitempty"`

	// RawParams preserves the payload of unknown action types so a newer
	// reader can still interpret the definition.
	RawParams json.RawMessage `json:"raw_params,omitempty"`
}

// AdvanceStageParams moves an assignment's stage pointer forward.
type AdvanceStageParams struct {
	StageID string `json:"stage_id" validate:"required"`
}

// AdvanceStepParams moves a stage's step pointer forward.
type AdvanceStepParams struct {
	StepID string `json:"step_id" validate:"required"`
}

// CreateTaskParams describes a task to be created by the task service.
type CreateTaskParams struct {
	StepID      string         `json:"step_id"`
	Title       string         `json:"title"       validate:"required"`
	Description string         `json:"description"`
	Priority    string         `json:"priority"`
	AssigneeID  string         `json:"assignee_id"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// NotifyParams describes a notification handed to the delivery service.
type NotifyParams struct {
	Channel     string         `json:"channel"      validate:"required,oneof=email sms push"`
	RecipientID string         `json:"recipient_id"`
	Template    string         `json:"template"     validate:"required"`
	Data        map[string]any `json:"data,omitempty"`
}

// InvokeAgentParams describes an opaque AI-agent invocation.
type InvokeAgentParams struct {
	AgentID string         `json:"agent_id" validate:"required"`
	Prompt  string         `json:"prompt"`
	Input   map[string]any `json:"input,omitempty"`
}

// SetFieldParams writes a single field on the entity that caused the firing.
type SetFieldParams struct {
	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

type actionEnvelope struct {
	Type   ActionType      `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON decodes the stored {type, params} envelope into the matching
// typed variant. Unrecognized types become ActionTypeUnknown with the raw
// payload preserved.
func (a *Action) UnmarshalJSON(data []byte) error {
	var env actionEnvelope

	err := json.Unmarshal(data, &env)
	if err != nil {
		return err
	}

	*a = Action{Type: env.Type}

	switch env.Type {
	case ActionTypeAdvanceStage:
		a.AdvanceStage = &AdvanceStageParams{}

		return unmarshalParams(env.Params, a.AdvanceStage)
	case ActionTypeAdvanceStep:
		a.AdvanceStep = &AdvanceStepParams{}

		return unmarshalParams(env.Params, a.AdvanceStep)
	case ActionTypeCreateTask:
		a.CreateTask = &CreateTaskParams{}

		return unmarshalParams(env.Params, a.CreateTask)
	case ActionTypeNotify:
		a.Notify = &NotifyParams{}

		return unmarshalParams(env.Params, a.Notify)
	case ActionTypeInvokeAgent:
		a.InvokeAgent = &InvokeAgentParams{}

		return unmarshalParams(env.Params, a.InvokeAgent)
	case ActionTypeSetField:
		a.SetField = &SetFieldParams{}

		return unmarshalParams(env.Params, a.SetField)
	default:
		a.Type = ActionTypeUnknown
		a.RawParams = env.Params

		return nil
	}
}

// MarshalJSON writes the {type, params} envelope form.
func (a Action) MarshalJSON() ([]byte, error) {
	env := actionEnvelope{Type: a.Type}

	var params any

	switch a.Type {
	case ActionTypeAdvanceStage:
		params = a.AdvanceStage
	case ActionTypeAdvanceStep:
		params = a.AdvanceStep
	case ActionTypeCreateTask:
		params = a.CreateTask
	case ActionTypeNotify:
		params = a.Notify
	case ActionTypeInvokeAgent:
		params = a.InvokeAgent
	case ActionTypeSetField:
		params = a.SetField
	default:
		env.Type = ActionTypeUnknown
		env.Params = a.RawParams

		return json.Marshal(env)
	}

	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s params: %w", a.Type, err)
		}

		env.Params = payload
	}

	return json.Marshal(env)
}

func unmarshalParams(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}
