package counter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// maxDepth bounds recursion through nested variant wrappers.
const maxDepth = 4

// Field is one key of an Object.
type Field struct {
	Key   string
	Value any
}

// Object is an ordered key/value record. Sources that care about key order
// (the last-resort fallback in Decode picks the first variant key in object
// order) hand reasons over as an Object rather than a Go map.
type Object []Field

// Get returns the first value stored under key.
func (o Object) Get(key string) (any, bool) {
	for _, f := range o {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Decode resolves a loosely typed reason payload into a Reason.
//
// Accepted shapes: a variant name string; an object carrying a "variant"
// field; or a tagged union with one key per variant name. Anything else, and
// any panic while inspecting the value, yields Unknown.
func Decode(raw any) (r Reason) {
	defer func() {
		if recover() != nil {
			r = Unknown
		}
	}()
	return decode(raw, 0)
}

func decode(raw any, depth int) Reason {
	if depth > maxDepth || isNil(raw) {
		return Unknown
	}
	switch v := raw.(type) {
	case Reason:
		if v.Known() {
			return v
		}
		return Unknown
	case string:
		return ParseReason(v)
	case *string:
		return ParseReason(*v)
	}

	obj, ok := asObject(raw)
	if !ok {
		return Unknown
	}

	if variant, ok := lookupVariant(obj); ok && !isNil(variant) {
		switch v := variant.(type) {
		case string:
			if v != "" {
				return ParseReason(v)
			}
		default:
			// CairoCustomEnum keeps the union one level down.
			if r := decode(v, depth+1); r != Unknown {
				return r
			}
		}
	}

	return decodeUnion(obj)
}

// decodeUnion implements the tagged-union rules. With several variant keys
// present the first active one in Increase>Decrease>Reset>Set order wins.
// That rule is a heuristic: a well-formed union never carries two keys.
func decodeUnion(obj Object) Reason {
	var present []Reason
	for _, r := range variantOrder {
		if _, ok := obj.Get(r.String()); ok {
			present = append(present, r)
		}
	}
	if len(present) == 1 {
		return present[0]
	}

	for _, r := range present {
		v, _ := obj.Get(r.String())
		if active(v) {
			return r
		}
	}

	for _, f := range obj {
		if r := ParseReason(f.Key); r != Unknown {
			return r
		}
	}
	return Unknown
}

func lookupVariant(obj Object) (any, bool) {
	if v, ok := obj.Get("variant"); ok {
		return v, true
	}
	return obj.Get("Variant")
}

// asObject views maps with string keys and structs as an Object. Map keys are
// ordered with the variant names first (fixed priority) and the rest sorted,
// so the result does not depend on map iteration order. Struct fields keep
// their declaration order.
func asObject(raw any) (Object, bool) {
	switch v := raw.(type) {
	case Object:
		return v, true
	case map[string]any:
		return fromMap(v), true
	}

	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return fromMap(m), true
	case reflect.Struct:
		t := rv.Type()
		obj := make(Object, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, ok := fieldName(f)
			if !ok {
				continue
			}
			obj = append(obj, Field{Key: name, Value: rv.Field(i).Interface()})
		}
		return obj, true
	}
	return nil, false
}

// fieldName is the json tag name of f, or its Go name without one. Fields
// tagged "-" are skipped.
func fieldName(f reflect.StructField) (string, bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return f.Name, true
	}
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return f.Name, true
}

func fromMap(m map[string]any) Object {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := ParseReason(keys[i]), ParseReason(keys[j])
		switch {
		case ri != Unknown && rj != Unknown:
			return ri < rj
		case ri != Unknown:
			return true
		case rj != Unknown:
			return false
		}
		return keys[i] < keys[j]
	})
	obj := make(Object, 0, len(keys))
	for _, k := range keys {
		obj = append(obj, Field{Key: k, Value: m[k]})
	}
	return obj
}

// active reports whether a union slot holds the "selected" marker: present,
// and either an empty container or not one of false, 0 and "".
func active(v any) bool {
	if isNil(v) {
		return false
	}
	if isEmptyContainer(v) {
		return true
	}
	return !isFalsy(v)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func isEmptyContainer(v any) bool {
	if o, ok := v.(Object); ok {
		return len(o) == 0
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Struct:
		return rv.NumField() == 0
	}
	return false
}

func isFalsy(v any) bool {
	switch n := v.(type) {
	case *big.Int:
		return n.Sign() == 0
	case big.Int:
		return n.Sign() == 0
	case json.Number:
		f, err := n.Float64()
		return err == nil && f == 0
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.String:
		return rv.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	}
	return false
}

// DecodeJSON parses a JSON document keeping object key order: objects become
// Object, arrays []any, numbers json.Number.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readJSON(dec)
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

func readJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := Object{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is not a string", kt)
			}
			val, err := readJSON(dec)
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", strconv.Quote(key), err)
			}
			obj = append(obj, Field{Key: key, Value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := readJSON(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}
