// Package search compiles JSON search specifications (filters, ordering,
// pagination and aggregate functions) into SQL over an entity's table.
package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

var (
	ErrDecode          = errors.New("unable to decode data")
	ErrNoResult        = errors.New("no result found")
	ErrMultipleResults = errors.New("multiple results found")
)

// Spec is a decoded search request.
type Spec struct {
	Filters   []Filter   `json:"filters,omitempty"`
	OrderBy   []OrderBy  `json:"order_by,omitempty"`
	Limit     *int       `json:"limit,omitempty"`
	Offset    *int       `json:"offset,omitempty"`
	Single    Flag       `json:"single,omitempty"`
	Functions []Function `json:"functions,omitempty"`
}

// Filter is one predicate or a boolean group. Exactly one of Name, Or, And
// or Not is expected to be set.
type Filter struct {
	Name string `json:"name,omitempty" mapstructure:"name"`
	Op   string `json:"op,omitempty" mapstructure:"op"`
	Val  any    `json:"val,omitempty" mapstructure:"val"`
	// Field compares Name against another column instead of Val.
	Field string   `json:"field,omitempty" mapstructure:"field"`
	Or    []Filter `json:"or,omitempty" mapstructure:"or"`
	And   []Filter `json:"and,omitempty" mapstructure:"and"`
	Not   *Filter  `json:"not,omitempty" mapstructure:"not"`
}

type OrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"`
	Nulls     string `json:"nulls,omitempty"`
}

// Function names an aggregate over a field, e.g. {"name": "sum", "field": "age"}.
type Function struct {
	Name  string `json:"name"`
	Field string `json:"field"`
}

// Flag is a bool that also accepts "true", "1", 0 and friends.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v == nil {
		*f = false
		return nil
	}
	parsed, err := cast.ToBoolE(v)
	if err != nil {
		return err
	}
	*f = Flag(parsed)
	return nil
}

// DecodeJSON unmarshals one JSON value from data into v. Numbers in untyped
// positions stay json.Number so large integers keep their precision.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

// Decode parses a JSON search specification. Empty input is an empty spec.
func Decode(data []byte) (Spec, error) {
	var spec Spec
	if len(strings.TrimSpace(string(data))) == 0 {
		return spec, nil
	}
	if err := DecodeJSON(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return spec, nil
}

// Reserved body keys that carry a search specification on bulk updates.
var reservedKeys = []string{"filters", "order_by", "limit", "offset", "single", "functions"}

// FromBody splits the search keys out of a request body. The remaining keys
// are returned unchanged.
func FromBody(body map[string]any) (Spec, map[string]any, error) {
	searchPart := make(map[string]any)
	rest := make(map[string]any, len(body))
	for k, v := range body {
		if isReserved(k) {
			searchPart[k] = v
			continue
		}
		rest[k] = v
	}
	if len(searchPart) == 0 {
		return Spec{}, rest, nil
	}

	data, err := json.Marshal(searchPart)
	if err != nil {
		return Spec{}, nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	spec, err := Decode(data)
	return spec, rest, err
}

func isReserved(key string) bool {
	return slices.Contains(reservedKeys, key)
}

// Query-string parameters understood next to q.
const (
	paramQuery  = "q"
	paramOrder  = "order"
	paramLimit  = "limit"
	paramOffset = "offset"
)

// FromQuery decodes the q parameter and merges the order, limit and offset
// shorthands when q leaves them unset. Any other parameter is a
// column filter in the form column=op.value, e.g. age=gte.18.
func FromQuery(values url.Values) (Spec, error) {
	spec, err := Decode([]byte(values.Get(paramQuery)))
	if err != nil {
		return Spec{}, err
	}

	if order := values.Get(paramOrder); order != "" && len(spec.OrderBy) == 0 {
		if spec.OrderBy, err = ParseOrder(order); err != nil {
			return Spec{}, err
		}
	}
	if spec.Limit == nil {
		if spec.Limit, err = intParam(values, paramLimit); err != nil {
			return Spec{}, err
		}
	}
	if spec.Offset == nil {
		if spec.Offset, err = intParam(values, paramOffset); err != nil {
			return Spec{}, err
		}
	}

	for key, vs := range values {
		switch key {
		case paramQuery, paramOrder, paramLimit, paramOffset:
			continue
		}
		for _, v := range vs {
			f, err := parseColumnFilter(key, v)
			if err != nil {
				return Spec{}, err
			}
			spec.Filters = append(spec.Filters, f)
		}
	}
	return spec, nil
}

func intParam(values url.Values, key string) (*int, error) {
	raw := values.Get(key)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, key, err)
	}
	return &n, nil
}

// parseColumnFilter reads PostgREST style values: eq.5, in.(1,2), is.null,
// like.*foo*. A bare value means equality.
func parseColumnFilter(column, value string) (Filter, error) {
	op, val, ok := strings.Cut(value, ".")
	if !ok {
		return Filter{Name: column, Op: "eq", Val: value}, nil
	}

	switch op {
	case "is":
		switch strings.ToLower(val) {
		case "null":
			return Filter{Name: column, Op: "is_null"}, nil
		case "not.null":
			return Filter{Name: column, Op: "is_not_null"}, nil
		}
		return Filter{}, fmt.Errorf("%w: %s=%s", ErrDecode, column, value)
	case "in":
		inner := strings.TrimSuffix(strings.TrimPrefix(val, "("), ")")
		items := []any{}
		if inner != "" {
			for _, s := range strings.Split(inner, ",") {
				items = append(items, strings.TrimSpace(s))
			}
		}
		return Filter{Name: column, Op: "in", Val: items}, nil
	case "like", "ilike":
		return Filter{Name: column, Op: op, Val: strings.ReplaceAll(val, "*", "%")}, nil
	}

	if _, err := ParseOperator(op); err != nil {
		// not an operator prefix, e.g. a decimal "1.5"
		return Filter{Name: column, Op: "eq", Val: value}, nil
	}
	if val == "null" && (op == "eq" || op == "neq") {
		return Filter{Name: column, Op: op, Val: nil}, nil
	}
	return Filter{Name: column, Op: op, Val: val}, nil
}

// decodeNested converts the val of has/any, decoded as a generic map, into a Filter.
func decodeNested(v any) (*Filter, error) {
	if v == nil {
		return nil, nil
	}
	var f Filter
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &f,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("%w: nested filter: %v", ErrDecode, err)
	}
	return &f, nil
}
