// Package pricing implements the mortgage-insurance and title-premium
// engines over installed rate cards.
package pricing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hermes-intel/hermes/internal/resilience"
)

// Attributes carries the quote inputs a condition can test. Values are
// float64 for numeric fields and string for categorical ones.
type Attributes map[string]any

// predicate is one parsed condition clause.
type predicate struct {
	field string
	op    string // min | max | eq | in
	num   float64
	str   string
	isNum bool
	set   []string
}

// ConditionSet is a conjunction of predicates parsed from an adjustment's
// condition object. An empty set always matches.
type ConditionSet []predicate

// ParseCondition parses a condition object like
//
//	{"fico_min": 700, "ltv_max": 95, "occupancy_eq": "primary", "state_in": ["TX","FL"]}
//
// into a predicate set. Keys end in _min, _max, _eq, or _in; anything else is
// rejected so a typo in a rate card fails at install, not silently at quote
// time.
func ParseCondition(raw json.RawMessage) (ConditionSet, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, resilience.WithKind(resilience.KindValidation,
			eris.Wrap(err, "pricing: condition is not a JSON object"))
	}

	var set ConditionSet
	for key, val := range obj {
		field, op, ok := splitConditionKey(key)
		if !ok {
			return nil, resilience.WithKind(resilience.KindValidation,
				eris.Errorf("pricing: condition key %q has no recognized suffix", key))
		}

		p := predicate{field: field, op: op}
		switch op {
		case "min", "max":
			if err := json.Unmarshal(val, &p.num); err != nil {
				return nil, resilience.WithKind(resilience.KindValidation,
					eris.Errorf("pricing: condition %q needs a numeric value", key))
			}
			p.isNum = true
		case "eq":
			if err := json.Unmarshal(val, &p.num); err == nil {
				p.isNum = true
			} else if err := json.Unmarshal(val, &p.str); err != nil {
				return nil, resilience.WithKind(resilience.KindValidation,
					eris.Errorf("pricing: condition %q needs a number or string", key))
			}
		case "in":
			if err := json.Unmarshal(val, &p.set); err != nil {
				return nil, resilience.WithKind(resilience.KindValidation,
					eris.Errorf("pricing: condition %q needs a string array", key))
			}
		}
		set = append(set, p)
	}
	return set, nil
}

func splitConditionKey(key string) (field, op string, ok bool) {
	for _, suffix := range []string{"_min", "_max", "_eq", "_in"} {
		if strings.HasSuffix(key, suffix) && len(key) > len(suffix) {
			return strings.TrimSuffix(key, suffix), suffix[1:], true
		}
	}
	return "", "", false
}

// Matches evaluates the conjunction against the quote attributes. A predicate
// over a missing attribute fails closed: the adjustment does not apply.
func (cs ConditionSet) Matches(attrs Attributes) bool {
	for _, p := range cs {
		val, ok := attrs[p.field]
		if !ok {
			return false
		}
		if !p.matches(val) {
			return false
		}
	}
	return true
}

func (p predicate) matches(val any) bool {
	switch p.op {
	case "min":
		n, ok := toFloat(val)
		return ok && n >= p.num
	case "max":
		n, ok := toFloat(val)
		return ok && n <= p.num
	case "eq":
		if p.isNum {
			n, ok := toFloat(val)
			return ok && n == p.num
		}
		return fmt.Sprint(val) == p.str
	case "in":
		s := fmt.Sprint(val)
		for _, candidate := range p.set {
			if s == candidate {
				return true
			}
		}
	}
	return false
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
