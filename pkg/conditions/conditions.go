// Package conditions evaluates conditional-node expressions and preset
// predicates over an execution's variable snapshot.
package conditions

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/voxflow/voxflow/pkg/models"
)

// Supported comparison operators for explicit expressions.
const (
	OperatorEquals      = "equals"
	OperatorNotEquals   = "not_equals"
	OperatorContains    = "contains"
	OperatorGreaterThan = "greater_than"
	OperatorLessThan    = "less_than"
	OperatorExists      = "exists"
)

// Named preset predicates evaluable without a user-authored expression.
const (
	PresetBusinessHours   = "business_hours"
	PresetCallerKnown     = "caller_known"
	PresetPremiumCustomer = "premium_customer"
)

// Input is the snapshot a conditional node is evaluated against. Now is
// injectable so business-hours checks stay deterministic under test.
type Input struct {
	Variables map[string]any
	Caller    string
	Now       time.Time
}

// Evaluate resolves a conditional payload to a branch. The same payload and
// snapshot always yield the same result.
func Evaluate(data models.ConditionalData, in Input) (bool, error) {
	if data.Preset != "" {
		return evaluatePreset(data, in)
	}

	return evaluateExpression(data, in)
}

func evaluateExpression(data models.ConditionalData, in Input) (bool, error) {
	value, exists := in.Variables[data.Variable]

	switch data.Operator {
	case OperatorExists:
		return exists, nil
	case OperatorEquals:
		return asString(value) == data.Value, nil
	case OperatorNotEquals:
		return asString(value) != data.Value, nil
	case OperatorContains:
		return strings.Contains(asString(value), data.Value), nil
	case OperatorGreaterThan, OperatorLessThan:
		left, err := asNumber(value)
		if err != nil {
			return false, fmt.Errorf("variable %q: %w", data.Variable, err)
		}

		right, err := strconv.ParseFloat(data.Value, 64)
		if err != nil {
			return false, fmt.Errorf("comparison value %q is not numeric: %w", data.Value, err)
		}

		if data.Operator == OperatorGreaterThan {
			return left > right, nil
		}

		return left < right, nil
	default:
		return false, fmt.Errorf("unknown operator %q", data.Operator)
	}
}

func evaluatePreset(data models.ConditionalData, in Input) (bool, error) {
	switch data.Preset {
	case PresetBusinessHours:
		return evaluateBusinessHours(data, in.Now)
	case PresetCallerKnown:
		// Anonymous and withheld caller ids arrive as empty or sentinel values.
		caller := strings.ToLower(strings.TrimSpace(in.Caller))

		return caller != "" && caller != "anonymous" && caller != "unknown" && caller != "restricted", nil
	case PresetPremiumCustomer:
		tier := asString(in.Variables["customer_tier"])
		if data.Tier != "" {
			return strings.EqualFold(tier, data.Tier), nil
		}

		if flag, ok := in.Variables["premium_customer"]; ok {
			return asBool(flag), nil
		}

		return strings.EqualFold(tier, "premium"), nil
	default:
		return false, fmt.Errorf("unknown preset %q", data.Preset)
	}
}

func evaluateBusinessHours(data models.ConditionalData, now time.Time) (bool, error) {
	tz := data.Timezone
	if tz == "" {
		tz = "UTC"
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	local := now.In(loc)

	if len(data.Days) > 0 {
		day := strings.ToLower(local.Weekday().String())
		match := false

		for _, d := range data.Days {
			d = strings.ToLower(strings.TrimSpace(d))
			if d == day || (len(d) >= 3 && strings.HasPrefix(day, d[:3])) {
				match = true

				break
			}
		}

		if !match {
			return false, nil
		}
	}

	open, close := data.OpenHour, data.CloseHour
	if open == 0 && close == 0 {
		open, close = 9, 17
	}

	hour := local.Hour()

	return hour >= open && hour < close, nil
}

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}

		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", v)
		}

		return n, nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", value)
	}
}

func asBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)

		return err == nil && b
	case float64:
		return v != 0
	default:
		return false
	}
}
