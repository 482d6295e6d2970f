// Package rules evaluates field conditions against entity snapshots.
//
// A snapshot is a map[string]any whose nested maps are addressed with dotted
// paths ("carrier.name"). Evaluation never fails: a condition that cannot be
// checked is reported as a non-match with a reason.
package rules

type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorContains    Operator = "contains"
	OperatorIn          Operator = "in"
	OperatorStartsWith  Operator = "starts_with"
)

// Operators lists every supported operator.
var Operators = []Operator{
	OperatorEquals,
	OperatorNotEquals,
	OperatorGreaterThan,
	OperatorLessThan,
	OperatorContains,
	OperatorIn,
	OperatorStartsWith,
}

func (o Operator) IsValid() bool {
	for _, op := range Operators {
		if op == o {
			return true
		}
	}
	return false
}

// IsNumeric reports whether the operator casts both sides to numbers.
func (o Operator) IsNumeric() bool {
	return o == OperatorGreaterThan || o == OperatorLessThan
}

type Condition struct {
	Field    string   `json:"field" yaml:"field" validate:"required"`
	Operator Operator `json:"operator" yaml:"operator" validate:"required"`
	Value    any      `json:"value" yaml:"value"`
}

// ConditionResult explains how a single condition evaluated.
type ConditionResult struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Expected any      `json:"expected"`
	Actual   any      `json:"actual"`
	Matched  bool     `json:"matched"`
	Reason   string   `json:"reason,omitempty"`
}
