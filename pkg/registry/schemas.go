package registry

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/practiq/automata/pkg/models"
)

func builtinSchemas() map[models.ActionType]string {
	return map[models.ActionType]string{
		models.ActionTypeAdvanceStage: advanceStageSchema,
		models.ActionTypeAdvanceStep:  advanceStepSchema,
		models.ActionTypeCreateTask:   createTaskSchema,
		models.ActionTypeNotify:       notifySchema,
		models.ActionTypeInvokeAgent:  invokeAgentSchema,
		models.ActionTypeSetField:     setFieldSchema,
	}
}

// validateAgainstSchema validates an action payload against its JSON schema.
func validateAgainstSchema(schema string, payload []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	dataLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var messages []string
		for _, resultError := range result.Errors() {
			messages = append(messages, resultError.String())
		}

		return fmt.Errorf("schema validation failed: %s", strings.Join(messages, "; "))
	}

	return nil
}

const advanceStageSchema = `{
	"type": "object",
	"properties": {
		"stage_id": {"type": "string", "minLength": 1}
	},
	"required": ["stage_id"]
}`

const advanceStepSchema = `{
	"type": "object",
	"properties": {
		"step_id": {"type": "string", "minLength": 1}
	},
	"required": ["step_id"]
}`

const createTaskSchema = `{
	"type": "object",
	"properties": {
		"step_id":     {"type": "string"},
		"title":       {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"priority":    {"type": "string"},
		"assignee_id": {"type": "string"},
		"fields":      {"type": "object"}
	},
	"required": ["title"]
}`

const notifySchema = `{
	"type": "object",
	"properties": {
		"channel":      {"type": "string", "enum": ["email", "sms", "push"]},
		"recipient_id": {"type": "string"},
		"template":     {"type": "string", "minLength": 1},
		"data":         {"type": "object"}
	},
	"required": ["channel", "template"]
}`

const invokeAgentSchema = `{
	"type": "object",
	"properties": {
		"agent_id": {"type": "string", "minLength": 1},
		"prompt":   {"type": "string"},
		"input":    {"type": "object"}
	},
	"required": ["agent_id"]
}`

const setFieldSchema = `{
	"type": "object",
	"properties": {
		"field": {"type": "string", "minLength": 1},
		"value": {}
	},
	"required": ["field"]
}`
