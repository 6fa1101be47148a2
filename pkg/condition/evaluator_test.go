package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/practiq/automata/pkg/models"
)

func leaf(field string, op models.ConditionOperator, value any) *models.ConditionNode {
	return &models.ConditionNode{
		Kind:     models.ConditionKindLeaf,
		Field:    field,
		Operator: op,
		Value:    value,
	}
}

func combinator(c models.Combinator, children ...*models.ConditionNode) *models.ConditionNode {
	return &models.ConditionNode{
		Kind:       models.ConditionKindCombinator,
		Combinator: c,
		Children:   children,
	}
}

func TestEvaluateNilTreeMatchesEverything(t *testing.T) {
	assert.True(t, Evaluate(nil, Context{}))
	assert.True(t, Evaluate(&models.ConditionNode{}, Context{}))
}

func TestEvaluateLeafOperators(t *testing.T) {
	snapshot := map[string]any{
		"status":   "completed",
		"priority": "urgent",
		"amount":   float64(1500),
		"owner":    map[string]any{"team": "sales"},
	}

	tests := []struct {
		name string
		node *models.ConditionNode
		want bool
	}{
		{"eq match", leaf("priority", models.OpEqual, "urgent"), true},
		{"eq mismatch", leaf("priority", models.OpEqual, "low"), false},
		{"neq", leaf("status", models.OpNotEqual, "pending"), true},
		{"gt true", leaf("amount", models.OpGreaterThan, 1000), true},
		{"gt false", leaf("amount", models.OpGreaterThan, 2000), false},
		{"gte boundary", leaf("amount", models.OpGreaterOrEqual, 1500), true},
		{"lt", leaf("amount", models.OpLessThan, 1501), true},
		{"lte boundary", leaf("amount", models.OpLessOrEqual, 1500), true},
		{"in match", leaf("priority", models.OpIn, []any{"high", "urgent"}), true},
		{"in mismatch", leaf("priority", models.OpIn, []any{"low", "medium"}), false},
		{"in against non-slice", leaf("priority", models.OpIn, "urgent"), false},
		{"numeric comparison on string field", leaf("priority", models.OpGreaterThan, 10), false},
		{"unknown field is non-match", leaf("no_such_field", models.OpEqual, "x"), false},
		{"unknown field neq is still non-match", leaf("no_such_field", models.OpNotEqual, "x"), false},
		{"unknown operator", leaf("status", "resembles", "completed"), false},
		{"dotted path", leaf("owner.team", models.OpEqual, "sales"), true},
		{"dotted path through non-map", leaf("status.team", models.OpEqual, "x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.node, Context{Snapshot: snapshot}))
		})
	}
}

func TestEvaluateNumericCoercion(t *testing.T) {
	// JSON decoding yields float64; stored condition values may be int or
	// numeric strings. All compare by numeric value.
	snapshot := map[string]any{"count": float64(3)}

	assert.True(t, Evaluate(leaf("count", models.OpEqual, 3), Context{Snapshot: snapshot}))
	assert.True(t, Evaluate(leaf("count", models.OpEqual, "3"), Context{Snapshot: snapshot}))
	assert.True(t, Evaluate(leaf("count", models.OpGreaterOrEqual, int64(3)), Context{Snapshot: snapshot}))
}

func TestEvaluateChangeOperators(t *testing.T) {
	evalCtx := Context{
		Snapshot:     map[string]any{"stage": "won"},
		ChangedField: "stage",
		OldValue:     "negotiation",
		NewValue:     "won",
	}

	assert.True(t, Evaluate(leaf("stage", models.OpChanged, nil), evalCtx))
	assert.False(t, Evaluate(leaf("amount", models.OpChanged, nil), evalCtx))
	assert.True(t, Evaluate(leaf("stage", models.OpChangedTo, "won"), evalCtx))
	assert.False(t, Evaluate(leaf("stage", models.OpChangedTo, "lost"), evalCtx))
	assert.True(t, Evaluate(leaf("stage", models.OpChangedFrom, "negotiation"), evalCtx))
	assert.False(t, Evaluate(leaf("stage", models.OpChangedFrom, "won"), evalCtx))

	// Change operators never match outside a field-change event.
	assert.False(t, Evaluate(leaf("stage", models.OpChanged, nil), Context{Snapshot: evalCtx.Snapshot}))

	// A change leaf without a field never matches, even against an event
	// whose ChangedField is also empty.
	noDelta := Context{Snapshot: evalCtx.Snapshot, OldValue: "negotiation", NewValue: "won"}
	assert.False(t, Evaluate(leaf("", models.OpChanged, nil), noDelta))
	assert.False(t, Evaluate(leaf("", models.OpChangedTo, "won"), noDelta))
	assert.False(t, Evaluate(leaf("", models.OpChangedFrom, "negotiation"), noDelta))
}

func TestEvaluateCombinators(t *testing.T) {
	snapshot := map[string]any{"status": "completed", "priority": "urgent"}

	and := combinator(models.CombinatorAnd,
		leaf("status", models.OpEqual, "completed"),
		leaf("priority", models.OpEqual, "urgent"),
	)
	assert.True(t, Evaluate(and, Context{Snapshot: snapshot}))

	and.Children[1] = leaf("priority", models.OpEqual, "low")
	assert.False(t, Evaluate(and, Context{Snapshot: snapshot}))

	or := combinator(models.CombinatorOr,
		leaf("status", models.OpEqual, "pending"),
		leaf("priority", models.OpEqual, "urgent"),
	)
	assert.True(t, Evaluate(or, Context{Snapshot: snapshot}))

	assert.False(t, Evaluate(combinator(models.CombinatorOr), Context{Snapshot: snapshot}))
	assert.True(t, Evaluate(combinator(models.CombinatorAnd), Context{Snapshot: snapshot}))
}

func TestEvaluateNestedTree(t *testing.T) {
	snapshot := map[string]any{"status": "completed", "priority": "low", "amount": float64(5000)}

	// status == completed AND (priority == urgent OR amount > 1000)
	tree := combinator(models.CombinatorAnd,
		leaf("status", models.OpEqual, "completed"),
		combinator(models.CombinatorOr,
			leaf("priority", models.OpEqual, "urgent"),
			leaf("amount", models.OpGreaterThan, 1000),
		),
	)

	assert.True(t, Evaluate(tree, Context{Snapshot: snapshot}))

	snapshot["amount"] = float64(500)
	assert.False(t, Evaluate(tree, Context{Snapshot: snapshot}))
}

func TestEvaluateMalformedNodes(t *testing.T) {
	snapshot := map[string]any{"status": "completed"}

	// Unknown node kind is a defined non-match.
	unknown := &models.ConditionNode{Kind: models.ConditionKindUnknown, Field: "status"}
	assert.False(t, Evaluate(unknown, Context{Snapshot: snapshot}))

	// Unknown combinator too.
	bad := &models.ConditionNode{Kind: models.ConditionKindCombinator, Combinator: "xor"}
	assert.False(t, Evaluate(bad, Context{Snapshot: snapshot}))

	// A nil child in AND fails the conjunction; in OR it is skipped.
	andNil := combinator(models.CombinatorAnd, nil, leaf("status", models.OpEqual, "completed"))
	assert.False(t, Evaluate(andNil, Context{Snapshot: snapshot}))

	orNil := combinator(models.CombinatorOr, nil, leaf("status", models.OpEqual, "completed"))
	assert.True(t, Evaluate(orNil, Context{Snapshot: snapshot}))
}
