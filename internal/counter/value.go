package counter

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
)

// IntValue coerces a numeric-like event field into an int64. Integers of any
// width, integral floats, json.Number, big.Int and decimal or 0x-prefixed hex
// strings are accepted; values outside the int64 range or of any other type
// report false.
func IntValue(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case *big.Int:
		if n == nil || !n.IsInt64() {
			return 0, false
		}
		return n.Int64(), true
	case big.Int:
		if !n.IsInt64() {
			return 0, false
		}
		return n.Int64(), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case string:
		return parseIntString(n)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return 0, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		return floatToInt(rv.Float())
	case reflect.String:
		return parseIntString(rv.String())
	}
	return 0, false
}

func optionalInt(v any) *int64 {
	n, ok := IntValue(v)
	if !ok {
		return nil
	}
	return &n
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func parseIntString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	b, ok := new(big.Int).SetString(digits, base)
	if !ok || !b.IsInt64() {
		return 0, false
	}
	return b.Int64(), true
}

// AddressValue renders an address-like caller as a string; empty means absent.
func AddressValue(v any) string {
	if isNil(v) {
		return ""
	}
	switch a := v.(type) {
	case string:
		return strings.TrimSpace(a)
	case fmt.Stringer:
		return strings.TrimSpace(a.String())
	case []byte:
		if len(a) == 0 {
			return ""
		}
		return fmt.Sprintf("0x%x", a)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprint(v)
	}
	return ""
}
