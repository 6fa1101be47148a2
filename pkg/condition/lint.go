package condition

import (
	"fmt"

	"github.com/practiq/automata/pkg/models"
)

// Lint reports structural problems in a condition tree as authoring-time
// warnings. A tree with warnings still evaluates (to a non-match at the
// broken nodes); rejecting it outright is the authoring layer's call.
func Lint(node *models.ConditionNode) []error {
	var warnings []error

	lint(node, "$", &warnings)

	return warnings
}

func lint(node *models.ConditionNode, path string, warnings *[]error) {
	if node.IsZero() {
		return
	}

	switch node.Kind {
	case models.ConditionKindLeaf:
		if node.Field == "" {
			*warnings = append(*warnings, fmt.Errorf("%s: leaf without a field path", path))
		}

		switch node.Operator {
		case models.OpEqual, models.OpNotEqual,
			models.OpGreaterThan, models.OpGreaterOrEqual,
			models.OpLessThan, models.OpLessOrEqual,
			models.OpIn,
			models.OpChanged, models.OpChangedTo, models.OpChangedFrom:
		default:
			*warnings = append(*warnings, fmt.Errorf("%s: unknown operator %q", path, node.Operator))
		}

		if len(node.Children) > 0 {
			*warnings = append(*warnings, fmt.Errorf("%s: leaf must not have children", path))
		}
	case models.ConditionKindCombinator:
		if node.Combinator != models.CombinatorAnd && node.Combinator != models.CombinatorOr {
			*warnings = append(*warnings, fmt.Errorf("%s: unknown combinator %q", path, node.Combinator))
		}

		if len(node.Children) == 0 {
			*warnings = append(*warnings, fmt.Errorf("%s: combinator without children", path))
		}

		for i, child := range node.Children {
			childPath := fmt.Sprintf("%s.children[%d]", path, i)

			if child == nil {
				*warnings = append(*warnings, fmt.Errorf("%s: dangling child reference", childPath))

				continue
			}

			lint(child, childPath, warnings)
		}
	default:
		*warnings = append(*warnings, fmt.Errorf("%s: unknown node kind %q", path, node.Kind))
	}
}
