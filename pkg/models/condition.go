package models

import "encoding/json"

// ConditionKind discriminates the variants of a ConditionNode.
type ConditionKind string

const (
	ConditionKindLeaf       ConditionKind = "leaf"
	ConditionKindCombinator ConditionKind = "combinator"

	// ConditionKindUnknown is assigned to nodes whose kind this version does
	// not recognize. Unknown nodes never match, so definitions written by a
	// newer version degrade to "does not fire" instead of failing.
	ConditionKindUnknown ConditionKind = "unknown"
)

// ConditionOperator is the comparison applied by a leaf node.
type ConditionOperator string

const (
	OpEqual          ConditionOperator = "eq"
	OpNotEqual       ConditionOperator = "neq"
	OpGreaterThan    ConditionOperator = "gt"
	OpGreaterOrEqual ConditionOperator = "gte"
	OpLessThan       ConditionOperator = "lt"
	OpLessOrEqual    ConditionOperator = "lte"
	OpIn             ConditionOperator = "in"
	OpChanged        ConditionOperator = "changed"
	OpChangedTo      ConditionOperator = "changed_to"
	OpChangedFrom    ConditionOperator = "changed_from"
)

// Combinator joins child conditions in a combinator node.
type Combinator string

const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// ConditionNode is one node of a boolean expression tree over entity fields.
// A leaf compares a field path against a value; a combinator joins children
// with and/or. Trees gate trigger firings and stage/step auto-progress.
type ConditionNode struct {
	Kind ConditionKind `json:"kind"`

	// Leaf fields.
	Field    string            `json:"field,omitempty"`
	Operator ConditionOperator `json:"operator,omitempty"`
	Value    any               `json:"value,omitempty"`

	// Combinator fields.
	Combinator Combinator       `json:"combinator,omitempty"`
	Children   []*ConditionNode `json:"children,omitempty"`
}

type conditionNodeAlias ConditionNode

// UnmarshalJSON maps unrecognized kinds to ConditionKindUnknown so the
// evaluator can treat them as a defined non-match.
func (n *ConditionNode) UnmarshalJSON(data []byte) error {
	var raw conditionNodeAlias

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	switch raw.Kind {
	case ConditionKindLeaf, ConditionKindCombinator:
	default:
		raw.Kind = ConditionKindUnknown
	}

	*n = ConditionNode(raw)

	return nil
}

// IsZero reports whether the node is empty, meaning no condition is set.
func (n *ConditionNode) IsZero() bool {
	return n == nil || (n.Kind == "" && n.Field == "" && len(n.Children) == 0)
}
