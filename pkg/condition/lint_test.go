package condition

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/practiq/automata/pkg/models"
)

func TestLintCleanTree(t *testing.T) {
	tree := combinator(models.CombinatorAnd,
		leaf("status", models.OpEqual, "completed"),
		leaf("amount", models.OpGreaterThan, 100),
	)

	assert.Empty(t, Lint(tree))
	assert.Empty(t, Lint(nil))
}

func TestLintFindsProblems(t *testing.T) {
	tests := []struct {
		name string
		node *models.ConditionNode
		want string
	}{
		{
			name: "leaf without field",
			node: leaf("", models.OpEqual, "x"),
			want: "leaf without a field path",
		},
		{
			name: "unknown operator",
			node: leaf("status", "resembles", "x"),
			want: "unknown operator",
		},
		{
			name: "combinator without children",
			node: combinator(models.CombinatorAnd),
			want: "combinator without children",
		},
		{
			name: "unknown combinator",
			node: combinator("xor", leaf("a", models.OpEqual, 1)),
			want: "unknown combinator",
		},
		{
			name: "dangling child",
			node: combinator(models.CombinatorOr, nil),
			want: "dangling child reference",
		},
		{
			name: "unknown kind",
			node: &models.ConditionNode{Kind: models.ConditionKindUnknown, Field: "x"},
			want: "unknown node kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := Lint(tt.node)
			assert.NotEmpty(t, warnings)

			found := false

			for _, warning := range warnings {
				if strings.Contains(warning.Error(), tt.want) {
					found = true

					break
				}
			}

			assert.True(t, found, "expected a warning containing %q, got %v", tt.want, warnings)
		})
	}
}
