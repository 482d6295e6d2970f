package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EvaluateConditions ANDs every condition. An empty list matches.
func EvaluateConditions(conditions []Condition, entity map[string]any) (bool, []ConditionResult) {
	results := make([]ConditionResult, 0, len(conditions))
	matched := true
	for _, condition := range conditions {
		result := EvaluateCondition(condition, entity)
		if !result.Matched {
			matched = false
		}
		results = append(results, result)
	}
	return matched, results
}

// EvaluateCondition checks one condition against entity.
func EvaluateCondition(condition Condition, entity map[string]any) ConditionResult {
	result := ConditionResult{
		Field:    condition.Field,
		Operator: condition.Operator,
		Expected: condition.Value,
	}

	if !condition.Operator.IsValid() {
		result.Reason = fmt.Sprintf("unknown operator %q", condition.Operator)
		return result
	}

	actual, ok := Resolve(entity, condition.Field)
	if !ok {
		result.Reason = fmt.Sprintf("field %q not found", condition.Field)
		return result
	}
	result.Actual = actual

	switch condition.Operator {
	case OperatorEquals:
		result.Matched = Stringify(actual) == Stringify(condition.Value)
	case OperatorNotEquals:
		result.Matched = Stringify(actual) != Stringify(condition.Value)
	case OperatorGreaterThan, OperatorLessThan:
		left, lok := ToNumber(actual)
		right, rok := ToNumber(condition.Value)
		if !lok || !rok {
			result.Reason = fmt.Sprintf("non-numeric operand: actual=%q, expected=%q", Stringify(actual), Stringify(condition.Value))
			return result
		}
		if condition.Operator == OperatorGreaterThan {
			result.Matched = left > right
		} else {
			result.Matched = left < right
		}
	case OperatorContains:
		result.Matched = strings.Contains(strings.ToLower(Stringify(actual)), strings.ToLower(Stringify(condition.Value)))
	case OperatorStartsWith:
		result.Matched = strings.HasPrefix(strings.ToLower(Stringify(actual)), strings.ToLower(Stringify(condition.Value)))
	case OperatorIn:
		needle := strings.TrimSpace(Stringify(actual))
		for _, candidate := range listValues(condition.Value) {
			if candidate == needle {
				result.Matched = true
				break
			}
		}
	}

	if !result.Matched {
		result.Reason = fmt.Sprintf("actual=%q, expected=%q", Stringify(actual), Stringify(condition.Value))
	}
	return result
}

// Stringify renders a snapshot value the way conditions compare it.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case json.Number:
		return val.String()
	case []any, []string:
		return strings.Join(listValues(val), ",")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// ToNumber casts numbers and numeric strings to float64. NaN and infinities
// are not numbers for comparison purposes.
func ToNumber(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case int32:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// listValues accepts a list or a comma separated string.
func listValues(v any) []string {
	var raw []string
	switch val := v.(type) {
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			raw = append(raw, Stringify(item))
		}
	case string:
		raw = strings.Split(val, ",")
	case nil:
		return nil
	default:
		raw = []string{Stringify(val)}
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, strings.TrimSpace(item))
	}
	return out
}
