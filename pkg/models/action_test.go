package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionUnmarshalKnownTypes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, action Action)
	}{
		{
			name:  "advance stage",
			input: `{"type":"advance_stage","params":{"stage_id":"stage-2"}}`,
			check: func(t *testing.T, action Action) {
				require.NotNil(t, action.AdvanceStage)
				assert.Equal(t, "stage-2", action.AdvanceStage.StageID)
			},
		},
		{
			name:  "create task",
			input: `{"type":"create_task","params":{"step_id":"step-1","title":"Follow up","priority":"high"}}`,
			check: func(t *testing.T, action Action) {
				require.NotNil(t, action.CreateTask)
				assert.Equal(t, "Follow up", action.CreateTask.Title)
				assert.Equal(t, "high", action.CreateTask.Priority)
			},
		},
		{
			name:  "notify",
			input: `{"type":"notify","params":{"channel":"email","recipient_id":"u-1","template":"welcome"}}`,
			check: func(t *testing.T, action Action) {
				require.NotNil(t, action.Notify)
				assert.Equal(t, "email", action.Notify.Channel)
			},
		},
		{
			name:  "set field",
			input: `{"type":"set_field","params":{"field":"stage","value":"won"}}`,
			check: func(t *testing.T, action Action) {
				require.NotNil(t, action.SetField)
				assert.Equal(t, "stage", action.SetField.Field)
				assert.Equal(t, "won", action.SetField.Value)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var action Action
			require.NoError(t, json.Unmarshal([]byte(tt.input), &action))
			tt.check(t, action)
		})
	}
}

func TestActionUnmarshalUnknownTypePreservesPayload(t *testing.T) {
	input := `{"type":"teleport","params":{"destination":"mars"}}`

	var action Action
	require.NoError(t, json.Unmarshal([]byte(input), &action))

	assert.Equal(t, ActionTypeUnknown, action.Type)
	assert.JSONEq(t, `{"destination":"mars"}`, string(action.RawParams))

	// Re-encoding keeps the raw payload so a newer reader can still use it.
	out, err := json.Marshal(action)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"unknown","params":{"destination":"mars"}}`, string(out))
}

func TestActionMarshalRoundTrip(t *testing.T) {
	action := Action{
		Type:        ActionTypeInvokeAgent,
		InvokeAgent: &InvokeAgentParams{AgentID: "agent-7", Prompt: "summarize"},
	}

	out, err := json.Marshal(action)
	require.NoError(t, err)

	var decoded Action
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.NotNil(t, decoded.InvokeAgent)
	assert.Equal(t, "agent-7", decoded.InvokeAgent.AgentID)
	assert.Equal(t, "summarize", decoded.InvokeAgent.Prompt)
}
