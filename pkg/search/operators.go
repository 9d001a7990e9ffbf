package search

import (
	"fmt"
	"strings"
)

type Operator string

const (
	OpEq        Operator = "eq"
	OpNeq       Operator = "neq"
	OpGt        Operator = "gt"
	OpLt        Operator = "lt"
	OpGte       Operator = "gte"
	OpLte       Operator = "lte"
	OpLike      Operator = "like"
	OpILike     Operator = "ilike"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
	OpHas       Operator = "has"
	OpAny       Operator = "any"
)

var operators = map[string]Operator{
	"eq": OpEq, "==": OpEq, "equals": OpEq, "equals_to": OpEq,
	"neq": OpNeq, "!=": OpNeq, "does_not_equal": OpNeq, "not_equal_to": OpNeq,
	"gt": OpGt, ">": OpGt,
	"lt": OpLt, "<": OpLt,
	"gte": OpGte, ">=": OpGte, "ge": OpGte, "geq": OpGte,
	"lte": OpLte, "<=": OpLte, "le": OpLte, "leq": OpLte,
	"like":        OpLike,
	"ilike":       OpILike,
	"in":          OpIn,
	"not_in":      OpNotIn,
	"is_null":     OpIsNull,
	"is_not_null": OpIsNotNull,
	"has":         OpHas,
	"any":         OpAny,
}

// comparison operators and their SQL, usable between two columns
var comparisons = map[Operator]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpLt:  "<",
	OpGte: ">=",
	OpLte: "<=",
}

type UnsupportedOperatorError struct {
	Op string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %q", e.Op)
}

// ParseOperator resolves an operator name or alias, case-insensitively.
func ParseOperator(op string) (Operator, error) {
	if o, ok := operators[strings.ToLower(strings.TrimSpace(op))]; ok {
		return o, nil
	}
	return "", &UnsupportedOperatorError{Op: op}
}
