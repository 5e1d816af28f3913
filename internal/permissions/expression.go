package permissions

import (
	"fmt"
	"strings"
)

// Operator is a permission check operator.
type Operator struct {
	// Kind names the operator.
	Kind string
	// Lexical is the join token used in the string encoding.
	Lexical string
}

var (
	// Any evaluates like logical OR.
	Any = Operator{Kind: "Any", Lexical: "or"}
	// All evaluates like logical AND.
	All = Operator{Kind: "All", Lexical: "and"}
)

// Operators lists the known operators in parse scan order. The order is
// load-bearing: ParseExpression tries Any before All.
var Operators = []Operator{Any, All}

// Expression is a flat boolean expression over permission kinds: one
// operator applied to a non-empty list of values. There is no nesting and
// no precedence; this is intentionally not a general boolean grammar.
type Expression struct {
	Operator Operator
	Values   []string
}

// NewExpression builds an expression, deduplicating values while keeping
// their first-seen order.
func NewExpression(op Operator, values []string) (Expression, error) {
	seen := make(map[string]struct{}, len(values))
	deduped := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		deduped = append(deduped, v)
	}
	if len(deduped) == 0 {
		return Expression{}, fmt.Errorf("permissions: %w: expression requires at least one value", ErrInvalidArgument)
	}
	return Expression{Operator: op, Values: deduped}, nil
}

// Lexical renders the expression as a single string, joining values with
// the operator token. A single value renders without any token and parses
// back as an implicit Any.
func (e Expression) Lexical() string {
	return strings.Join(e.Values, " "+e.Operator.Lexical+" ")
}

// Evaluate reports whether the granted permission set satisfies the
// expression.
func (e Expression) Evaluate(granted map[string]struct{}) bool {
	switch e.Operator.Kind {
	case Any.Kind:
		for _, v := range e.Values {
			if _, ok := granted[v]; ok {
				return true
			}
		}
		return false
	case All.Kind:
		for _, v := range e.Values {
			if _, ok := granted[v]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EvaluateList is Evaluate over a permission slice.
func (e Expression) EvaluateList(granted []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[p] = struct{}{}
	}
	return e.Evaluate(set)
}

// ParseExpression parses the lexical encoding. A string without spaces is
// a single-value Any expression. Otherwise the first operator (in
// Operators order) whose join token occurs in the string wins, and the
// string is split on every occurrence of that token.
//
// Known limitation: a string containing both "or" and "and" tokens is
// ambiguous under this grammar and resolves to Any by scan order, keeping
// the unsplit remainder inside a value. Callers own their policy strings;
// mixing operators in one of them is a caller bug, not a parse error.
func ParseExpression(value string) (Expression, error) {
	if strings.TrimSpace(value) == "" {
		return Expression{}, fmt.Errorf("permissions: %w: empty lexical value", ErrMalformedExpression)
	}

	if !strings.Contains(value, " ") {
		return NewExpression(Any, []string{value})
	}

	for _, op := range Operators {
		join := " " + op.Lexical + " "
		if !strings.Contains(value, join) {
			continue
		}
		var values []string
		for _, piece := range strings.Split(value, join) {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			values = append(values, piece)
		}
		if len(values) == 0 {
			return Expression{}, fmt.Errorf("permissions: %w: %q", ErrMalformedExpression, value)
		}
		return NewExpression(op, values)
	}

	return Expression{}, fmt.Errorf("permissions: %w: %q", ErrMalformedExpression, value)
}

// MustParseExpression is ParseExpression for statically known strings.
func MustParseExpression(value string) Expression {
	expr, err := ParseExpression(value)
	if err != nil {
		panic(err)
	}
	return expr
}
