package rules

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShipment() map[string]any {
	return map[string]any{
		"origin_state":         "IL",
		"destination_state":    "TX",
		"equipment_type":       "Dry Van",
		"customer_price_cents": float64(250000),
		"weight_lbs":           "42000",
		"status":               "pending",
		"carrier": map[string]any{
			"name":               "Acme Freight",
			"on_time_percentage": 97.5,
		},
	}
}

func TestResolve(t *testing.T) {
	entity := testShipment()

	t.Run("should resolve top level field", func(t *testing.T) {
		v, ok := Resolve(entity, "origin_state")
		require.True(t, ok)
		assert.Equal(t, "IL", v)
	})

	t.Run("should resolve nested field", func(t *testing.T) {
		v, ok := Resolve(entity, "carrier.name")
		require.True(t, ok)
		assert.Equal(t, "Acme Freight", v)
	})

	t.Run("should return false for missing segment", func(t *testing.T) {
		_, ok := Resolve(entity, "carrier.mc_number")
		assert.False(t, ok)
	})

	t.Run("should return false when walking through a non-map", func(t *testing.T) {
		_, ok := Resolve(entity, "origin_state.code")
		assert.False(t, ok)
	})

	t.Run("should return false for empty path or nil entity", func(t *testing.T) {
		_, ok := Resolve(entity, "")
		assert.False(t, ok)
		_, ok = Resolve(nil, "origin_state")
		assert.False(t, ok)
	})
}

func TestEvaluateCondition(t *testing.T) {
	entity := testShipment()

	tests := []struct {
		name      string
		condition Condition
		matched   bool
	}{
		{"equals string", Condition{Field: "origin_state", Operator: OperatorEquals, Value: "IL"}, true},
		{"equals is case sensitive", Condition{Field: "origin_state", Operator: OperatorEquals, Value: "il"}, false},
		{"equals number against int", Condition{Field: "customer_price_cents", Operator: OperatorEquals, Value: 250000}, true},
		{"not equals", Condition{Field: "origin_state", Operator: OperatorNotEquals, Value: "TX"}, true},
		{"greater than", Condition{Field: "customer_price_cents", Operator: OperatorGreaterThan, Value: 100000}, true},
		{"greater than numeric string", Condition{Field: "weight_lbs", Operator: OperatorGreaterThan, Value: "40000"}, true},
		{"less than", Condition{Field: "carrier.on_time_percentage", Operator: OperatorLessThan, Value: 90}, false},
		{"contains ignores case", Condition{Field: "equipment_type", Operator: OperatorContains, Value: "van"}, true},
		{"starts with ignores case", Condition{Field: "carrier.name", Operator: OperatorStartsWith, Value: "acme"}, true},
		{"in list", Condition{Field: "status", Operator: OperatorIn, Value: []any{"pending", "booked"}}, true},
		{"in comma string", Condition{Field: "destination_state", Operator: OperatorIn, Value: "CA, TX ,NV"}, true},
		{"not in list", Condition{Field: "destination_state", Operator: OperatorIn, Value: []string{"CA", "NV"}}, false},
	}

	for _, tt := range tests {
		t.Run("should evaluate "+tt.name, func(t *testing.T) {
			result := EvaluateCondition(tt.condition, entity)
			assert.Equal(t, tt.matched, result.Matched)
			if !tt.matched {
				assert.NotEmpty(t, result.Reason)
			}
		})
	}

	t.Run("should report actual and expected on mismatch", func(t *testing.T) {
		result := EvaluateCondition(Condition{Field: "origin_state", Operator: OperatorEquals, Value: "TX"}, entity)
		assert.False(t, result.Matched)
		assert.Equal(t, "IL", result.Actual)
		assert.Equal(t, "TX", result.Expected)
		assert.Equal(t, `actual="IL", expected="TX"`, result.Reason)
	})

	t.Run("should fail closed on non-numeric operands", func(t *testing.T) {
		result := EvaluateCondition(Condition{Field: "origin_state", Operator: OperatorGreaterThan, Value: 10}, entity)
		assert.False(t, result.Matched)
		assert.Contains(t, result.Reason, "non-numeric")
	})

	t.Run("should treat NaN and infinity strings as non-numeric", func(t *testing.T) {
		for _, raw := range []string{"NaN", "Inf", "-infinity"} {
			result := EvaluateCondition(Condition{Field: "weight_lbs", Operator: OperatorLessThan, Value: raw}, entity)
			assert.False(t, result.Matched, raw)
			assert.Contains(t, result.Reason, "non-numeric", raw)
		}
	})

	t.Run("should not match unknown field", func(t *testing.T) {
		result := EvaluateCondition(Condition{Field: "missing", Operator: OperatorNotEquals, Value: "x"}, entity)
		assert.False(t, result.Matched)
		assert.Contains(t, result.Reason, "not found")
	})

	t.Run("should not match unknown operator", func(t *testing.T) {
		result := EvaluateCondition(Condition{Field: "origin_state", Operator: "regex", Value: ".*"}, entity)
		assert.False(t, result.Matched)
		assert.Contains(t, result.Reason, "unknown operator")
	})
}

func TestEvaluateConditions(t *testing.T) {
	entity := testShipment()

	t.Run("should match an empty condition list", func(t *testing.T) {
		matched, results := EvaluateConditions(nil, entity)
		assert.True(t, matched)
		assert.Empty(t, results)
	})

	t.Run("should AND every condition", func(t *testing.T) {
		matched, results := EvaluateConditions([]Condition{
			{Field: "origin_state", Operator: OperatorEquals, Value: "IL"},
			{Field: "destination_state", Operator: OperatorEquals, Value: "CA"},
		}, entity)
		assert.False(t, matched)
		require.Len(t, results, 2)
		assert.True(t, results[0].Matched)
		assert.False(t, results[1].Matched)
	})
}

func TestToNumber(t *testing.T) {
	t.Run("should parse numeric strings", func(t *testing.T) {
		f, ok := ToNumber(" 42000 ")
		require.True(t, ok)
		assert.Equal(t, 42000.0, f)
	})

	t.Run("should reject values that are not finite", func(t *testing.T) {
		for _, v := range []any{"NaN", "+Inf", math.NaN(), math.Inf(-1), json.Number("Infinity")} {
			_, ok := ToNumber(v)
			assert.False(t, ok, "%v", v)
		}
	})
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "150000", Stringify(float64(150000)))
	assert.Equal(t, "97.5", Stringify(97.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "a,b", Stringify([]any{"a", "b"}))
}
