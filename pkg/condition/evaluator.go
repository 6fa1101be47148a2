// Package condition evaluates boolean expression trees against entity
// snapshots. Evaluation is pure and total: unknown fields, operators and
// node kinds evaluate to a non-match instead of failing, so automation can
// never crash the transaction that triggered it.
package condition

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/practiq/automata/pkg/models"
)

// Context bundles what a tree is evaluated against: the entity's current
// field snapshot and, for event-mode firings, the field delta.
type Context struct {
	Snapshot map[string]any

	// Delta of a field-change event. ChangedField is empty for events that
	// are not field changes.
	ChangedField string
	OldValue     any
	NewValue     any
}

// Evaluate walks the tree and returns whether it matches the context. A nil
// or empty tree matches everything. Combinators short-circuit; and stops at
// the first false child, or at the first true one.
func Evaluate(node *models.ConditionNode, evalCtx Context) bool {
	if node.IsZero() {
		return true
	}

	switch node.Kind {
	case models.ConditionKindLeaf:
		return evaluateLeaf(node, evalCtx)
	case models.ConditionKindCombinator:
		return evaluateCombinator(node, evalCtx)
	default:
		return false
	}
}

func evaluateCombinator(node *models.ConditionNode, evalCtx Context) bool {
	switch node.Combinator {
	case models.CombinatorAnd:
		for _, child := range node.Children {
			if child == nil {
				// Dangling child reference: defined non-match.
				return false
			}

			if !Evaluate(child, evalCtx) {
				return false
			}
		}

		return true
	case models.CombinatorOr:
		for _, child := range node.Children {
			if child == nil {
				continue
			}

			if Evaluate(child, evalCtx) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func evaluateLeaf(node *models.ConditionNode, evalCtx Context) bool {
	switch node.Operator {
	case models.OpChanged:
		return changeMatches(node, evalCtx)
	case models.OpChangedTo:
		return changeMatches(node, evalCtx) && looseEqual(evalCtx.NewValue, node.Value)
	case models.OpChangedFrom:
		return changeMatches(node, evalCtx) && looseEqual(evalCtx.OldValue, node.Value)
	}

	actual, found := lookupField(evalCtx.Snapshot, node.Field)
	if !found {
		return false
	}

	switch node.Operator {
	case models.OpEqual:
		return looseEqual(actual, node.Value)
	case models.OpNotEqual:
		return !looseEqual(actual, node.Value)
	case models.OpGreaterThan, models.OpGreaterOrEqual, models.OpLessThan, models.OpLessOrEqual:
		return compareNumeric(node.Operator, actual, node.Value)
	case models.OpIn:
		return evaluateIn(actual, node.Value)
	default:
		return false
	}
}

// changeMatches reports whether the leaf names the field that changed. A
// leaf without a field never matches: an empty field would otherwise match
// every event that carries no delta at all.
func changeMatches(node *models.ConditionNode, evalCtx Context) bool {
	return node.Field != "" && evalCtx.ChangedField == node.Field
}

// lookupField resolves a dotted field path through nested maps.
func lookupField(snapshot map[string]any, path string) (any, bool) {
	if snapshot == nil || path == "" {
		return nil, false
	}

	parts := strings.Split(path, ".")
	current := any(snapshot)

	for _, part := range parts {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func evaluateIn(actual, expected any) bool {
	value := reflect.ValueOf(expected)
	if value.Kind() != reflect.Slice && value.Kind() != reflect.Array {
		return false
	}

	for i := range value.Len() {
		if looseEqual(actual, value.Index(i).Interface()) {
			return true
		}
	}

	return false
}

// looseEqual compares values the way JSON-sourced data needs: numbers
// compare by value regardless of concrete type, everything else by deep
// equality.
func looseEqual(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)

	if aNum && bNum {
		return fa == fb
	}

	return reflect.DeepEqual(a, b)
}

func compareNumeric(op models.ConditionOperator, actual, expected any) bool {
	fa, ok := toFloat(actual)
	if !ok {
		return false
	}

	fb, ok := toFloat(expected)
	if !ok {
		return false
	}

	switch op {
	case models.OpGreaterThan:
		return fa > fb
	case models.OpGreaterOrEqual:
		return fa >= fb
	case models.OpLessThan:
		return fa < fb
	case models.OpLessOrEqual:
		return fa <= fb
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
