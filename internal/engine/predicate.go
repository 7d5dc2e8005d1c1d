package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devblac/counter-watch/internal/counter"
)

// Predicate evaluates whether a normalized event satisfies a condition.
type Predicate func(ev counter.NormalizedEvent) bool

// Fields usable on the left-hand side of a rule expression.
var fieldNames = []string{"reason", "old_value", "new_value", "running_value", "caller", "tx_hash", "height"}

// CompilePredicates parses simple expressions into executable predicates.
// Supported operators: ==, !=, >, <, >=, <=, in, contains.
// Examples:
//
//	"reason == Reset"
//	"new_value > 100"
//	"caller in 0xabc,0xdef"
func CompilePredicates(exprs []string) ([]Predicate, error) {
	var preds []Predicate
	for _, raw := range exprs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := compile(raw)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// Match reports whether ev satisfies every predicate.
func Match(preds []Predicate, ev counter.NormalizedEvent) bool {
	for _, p := range preds {
		if !p(ev) {
			return false
		}
	}
	return true
}

// field returns the value of a named event field; ok is false when the event
// does not carry it.
func field(ev counter.NormalizedEvent, name string) (any, bool) {
	switch name {
	case "reason":
		return ev.Reason.String(), true
	case "old_value":
		if ev.OldValue == nil {
			return nil, false
		}
		return *ev.OldValue, true
	case "new_value":
		if ev.NewValue == nil {
			return nil, false
		}
		return *ev.NewValue, true
	case "running_value":
		return ev.Running, true
	case "caller":
		return ev.Caller, ev.Caller != ""
	case "tx_hash":
		return ev.TxHash, true
	case "height":
		return int64(ev.Height), true
	}
	return nil, false
}

func checkField(name, expr string) error {
	for _, f := range fieldNames {
		if f == name {
			return nil
		}
	}
	return fmt.Errorf("unknown field %q in expression: %s", name, expr)
}

func compile(expr string) (Predicate, error) {
	if strings.Contains(expr, " in ") {
		parts := strings.SplitN(expr, " in ", 2)
		name := strings.TrimSpace(parts[0])
		if err := checkField(name, expr); err != nil {
			return nil, err
		}
		values := map[string]struct{}{}
		for _, v := range strings.Split(parts[1], ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			values[strings.ToLower(v)] = struct{}{}
		}
		return func(ev counter.NormalizedEvent) bool {
			val, ok := field(ev, name)
			if !ok {
				return false
			}
			_, hit := values[strings.ToLower(fmt.Sprint(val))]
			return hit
		}, nil
	}

	if strings.Contains(expr, " contains ") {
		parts := strings.SplitN(expr, " contains ", 2)
		name := strings.TrimSpace(parts[0])
		if err := checkField(name, expr); err != nil {
			return nil, err
		}
		needle := strings.ToLower(strings.TrimSpace(parts[1]))
		return func(ev counter.NormalizedEvent) bool {
			val, ok := field(ev, name)
			if !ok {
				return false
			}
			return strings.Contains(strings.ToLower(fmt.Sprint(val)), needle)
		}, nil
	}

	var op string
	for _, candidate := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if strings.Contains(expr, candidate) {
			op = candidate
			break
		}
	}
	if op == "" {
		return nil, fmt.Errorf("unsupported expression: %s", expr)
	}

	parts := strings.SplitN(expr, op, 2)
	name := strings.TrimSpace(parts[0])
	if err := checkField(name, expr); err != nil {
		return nil, err
	}
	rhs := strings.TrimSpace(parts[1])
	if rhs == "" {
		return nil, fmt.Errorf("invalid expression: %s", expr)
	}
	if name == "reason" && op != "==" && op != "!=" {
		return nil, fmt.Errorf("reason only supports == and !=: %s", expr)
	}

	num, rhsIsNum := parseNumber(rhs)

	return func(ev counter.NormalizedEvent) bool {
		val, ok := field(ev, name)
		if !ok {
			return false
		}

		if lhs, isNum := val.(int64); isNum {
			if !rhsIsNum {
				return false
			}
			switch op {
			case "==":
				return lhs == num
			case "!=":
				return lhs != num
			case ">":
				return lhs > num
			case "<":
				return lhs < num
			case ">=":
				return lhs >= num
			case "<=":
				return lhs <= num
			}
		}

		// String comparisons
		s := fmt.Sprint(val)
		switch op {
		case "==":
			return strings.EqualFold(s, rhs)
		case "!=":
			return !strings.EqualFold(s, rhs)
		default:
			return false
		}
	}, nil
}

// parseNumber accepts integers with optional "_" separators.
func parseNumber(s string) (int64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
