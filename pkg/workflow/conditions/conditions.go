// SPDX-License-Identifier: Apache-2.0

// Package conditions evaluates predicate strings against nested data maps.
//
// The predicate mini-language is a single comparison:
//
//	<path> <op> <literal>
//
// where path is a dot-separated key into the data map, op is one of
// ===, !==, ==, !=, >, <, >=, <= and literal is an optionally quoted
// string, a number, a boolean, or null. A dot-path miss yields null,
// which compares false except against null itself.
//
// Predicates prefixed with "cel:" are delegated to a CEL program with the
// data map bound as the variable "data"; see [EvaluateCEL].
//
// Evaluate is a pure function: callers decide how to treat errors. The
// engine treats an unparseable transition condition as false (do not
// follow the edge) and an unparseable step condition as true (do not
// spuriously block the step).
package conditions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// operators in match order. Three-character operators come first so that
// "!==" is not tokenized as "!=".
var operators = []string{"===", "!==", ">=", "<=", "==", "!=", ">", "<"}

// Evaluate evaluates a predicate against the data map.
//
// It returns an error for predicates that do not fit the grammar; the
// result is false in that case.
func Evaluate(predicate string, data map[string]any) (bool, error) {
	predicate = strings.TrimSpace(predicate)
	if predicate == "" {
		return false, fmt.Errorf("empty predicate")
	}

	if expr, ok := strings.CutPrefix(predicate, celPrefix); ok {
		return EvaluateCEL(expr, data)
	}

	path, op, lit, err := splitPredicate(predicate)
	if err != nil {
		return false, err
	}

	left := lookup(data, path)
	right := parseLiteral(lit)

	return compare(left, op, right)
}

// splitPredicate tokenizes `<path> <op> <literal>`. The split happens at
// the leftmost operator outside quotes, so literals like "a>=b" do not
// shift the comparison.
func splitPredicate(predicate string) (path, op, literal string, err error) {
	var quote byte
	for i := 0; i < len(predicate); i++ {
		c := predicate[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		for _, candidate := range operators {
			if !strings.HasPrefix(predicate[i:], candidate) {
				continue
			}
			path = strings.TrimSpace(predicate[:i])
			literal = strings.TrimSpace(predicate[i+len(candidate):])
			if path == "" || literal == "" {
				return "", "", "", fmt.Errorf("predicate %q: missing path or literal", predicate)
			}
			return path, candidate, literal, nil
		}
	}
	return "", "", "", fmt.Errorf("predicate %q: no comparison operator", predicate)
}

// operand is a typed value on one side of a comparison.
type operand struct {
	kind operandKind
	num  float64
	str  string
	b    bool
}

type operandKind int

const (
	kindNull operandKind = iota
	kindBool
	kindNumber
	kindString
)

// lookup resolves a dot-path against the data map. The map is serialized
// to JSON and resolved with gjson, which gives the comparison stable JSON
// typing regardless of the Go types stored in the map. Misses yield null.
func lookup(data map[string]any, path string) operand {
	raw, err := json.Marshal(data)
	if err != nil {
		return operand{kind: kindNull}
	}

	res := gjson.GetBytes(raw, path)
	switch res.Type {
	case gjson.Null:
		return operand{kind: kindNull}
	case gjson.True:
		return operand{kind: kindBool, b: true}
	case gjson.False:
		return operand{kind: kindBool, b: false}
	case gjson.Number:
		return operand{kind: kindNumber, num: res.Num, str: res.Raw}
	case gjson.String:
		return operand{kind: kindString, str: res.Str}
	default:
		if !res.Exists() {
			return operand{kind: kindNull}
		}
		// Arrays and objects compare by their raw JSON text.
		return operand{kind: kindString, str: res.Raw}
	}
}

// parseLiteral types the right-hand side of a comparison.
func parseLiteral(lit string) operand {
	if len(lit) >= 2 {
		if (lit[0] == '"' && lit[len(lit)-1] == '"') || (lit[0] == '\'' && lit[len(lit)-1] == '\'') {
			return operand{kind: kindString, str: lit[1 : len(lit)-1]}
		}
	}

	switch lit {
	case "null":
		return operand{kind: kindNull}
	case "true":
		return operand{kind: kindBool, b: true}
	case "false":
		return operand{kind: kindBool, b: false}
	}

	if n, err := strconv.ParseFloat(lit, 64); err == nil {
		return operand{kind: kindNumber, num: n, str: lit}
	}

	return operand{kind: kindString, str: lit}
}

// compare applies op to the two operands.
func compare(left operand, op string, right operand) (bool, error) {
	switch op {
	case "===":
		return strictEquals(left, right), nil
	case "!==":
		return !strictEquals(left, right), nil
	case "==":
		return looseEquals(left, right), nil
	case "!=":
		return !looseEquals(left, right), nil
	case ">", "<", ">=", "<=":
		return ordered(left, op, right), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

// strictEquals requires matching types and values.
func strictEquals(l, r operand) bool {
	if l.kind != r.kind {
		return false
	}
	switch l.kind {
	case kindNull:
		return true
	case kindBool:
		return l.b == r.b
	case kindNumber:
		return l.num == r.num
	default:
		return l.str == r.str
	}
}

// looseEquals coerces numeric-looking strings to numbers before comparing.
// Null equals only null.
func looseEquals(l, r operand) bool {
	if l.kind == kindNull || r.kind == kindNull {
		return l.kind == r.kind
	}
	if l.kind == r.kind {
		return strictEquals(l, r)
	}

	ln, lok := asNumber(l)
	rn, rok := asNumber(r)
	if lok && rok {
		return ln == rn
	}

	return asString(l) == asString(r)
}

// ordered applies a relational operator. Only numeric operands order;
// anything else compares false.
func ordered(l operand, op string, r operand) bool {
	ln, lok := asNumber(l)
	rn, rok := asNumber(r)
	if !lok || !rok {
		return false
	}

	switch op {
	case ">":
		return ln > rn
	case "<":
		return ln < rn
	case ">=":
		return ln >= rn
	default:
		return ln <= rn
	}
}

func asNumber(o operand) (float64, bool) {
	switch o.kind {
	case kindNumber:
		return o.num, true
	case kindString:
		n, err := strconv.ParseFloat(o.str, 64)
		return n, err == nil
	case kindBool:
		if o.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func asString(o operand) string {
	switch o.kind {
	case kindString:
		return o.str
	case kindNumber:
		return strconv.FormatFloat(o.num, 'f', -1, 64)
	case kindBool:
		return strconv.FormatBool(o.b)
	default:
		return "null"
	}
}
