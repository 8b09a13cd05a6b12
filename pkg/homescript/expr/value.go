// Package expr evaluates HomeScript expressions against a variable scope.
//
// Runtime values are the JSON kinds: nil, float64, string, bool, []any and
// map[string]any. Coercion between kinds happens only at operator
// boundaries, via the functions in this file. Evaluation is a pure function
// of the expression and the scope: no I/O, no global state.
package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the runtime type tag of a value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// KindOf classifies a runtime value. Integer Go types produced by callers
// (e.g. decoded query parameters) are treated as numbers.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case float64, float32, int, int32, int64:
		return KindNumber
	case string:
		return KindString
	case bool:
		return KindBool
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	default:
		return KindNull
	}
}

// AsNumber coerces v to a float64. Numeric strings coerce; booleans map to
// 0/1. Anything else fails.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Stringify renders a value the way PRINT and interpolation show it.
// Numbers drop trailing zeros, booleans are "true"/"false", nil is the
// empty string, arrays and objects render as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(t)
	case float32:
		return formatNumber(float64(t))
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprintf("%v", f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Truthy reports whether a value counts as true in a boolean context:
// booleans are themselves, numbers are non-zero, strings are non-empty and
// not "false", collections are non-empty, nil is false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64, float32, int, int32, int64:
		n, _ := AsNumber(t)
		return n != 0
	case string:
		return t != "" && !strings.EqualFold(t, "false")
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return false
	}
}

// Equal compares two values for the = / != operators. Numbers (including
// numeric strings) compare numerically, booleans as booleans, everything
// else by string form.
func Equal(a, b any) bool {
	if KindOf(a) == KindNumber || KindOf(b) == KindNumber {
		an, aok := AsNumber(a)
		bn, bok := AsNumber(b)
		if aok && bok {
			return an == bn
		}
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	return Stringify(a) == Stringify(b)
}

// Contains implements the IN operator. x IN y is true when y is an array
// with an element whose string form equals x's, a string containing x's
// string form as a substring, or an object with a key equal to x's string
// form. Any other container kind yields false.
func Contains(x, y any) bool {
	switch c := y.(type) {
	case []any:
		needle := Stringify(x)
		for _, el := range c {
			if Stringify(el) == needle {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(c, Stringify(x))
	case map[string]any:
		_, ok := c[Stringify(x)]
		return ok
	default:
		return false
	}
}

// Resolve walks a dotted path through nested objects starting from scope.
// A missing intermediate or leaf yields nil, never an error.
func Resolve(scope map[string]any, path []string) any {
	if len(path) == 0 {
		return nil
	}
	cur, ok := scope[path[0]]
	if !ok {
		return nil
	}
	for _, seg := range path[1:] {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[seg]
		if !ok {
			return nil
		}
	}
	return cur
}
