package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/edgeflare/restless/pkg/schema"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Coerce converts a decoded JSON value into the Go type the column expects.
// Date and datetime strings are parsed; nil stays nil.
func Coerce(col schema.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if n, ok := v.(json.Number); ok {
		v = number(n)
	}

	switch col.Kind() {
	case schema.KindInteger:
		if f, ok := v.(float64); ok && f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", f)
		}
		return cast.ToInt64E(v)
	case schema.KindFloat:
		return cast.ToFloat64E(v)
	case schema.KindBool:
		return cast.ToBoolE(v)
	case schema.KindDate:
		t, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case schema.KindDateTime:
		return parseTime(v)
	case schema.KindUUID:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case schema.KindJSON:
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("unexpected %T", v)
		}
		return v, nil
	}
}

// number converts a JSON number to int64 when it is integral and fits,
// else to float64.
func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// parseTime accepts anything cast understands plus "now".
func parseTime(v any) (time.Time, error) {
	if s, ok := v.(string); ok && strings.EqualFold(strings.TrimSpace(s), "now") {
		return time.Now().UTC(), nil
	}
	return cast.ToTimeE(v)
}

// CoerceValues coerces every value of a column map. Problems are collected
// per field into a *ValidationError.
func CoerceValues(e *schema.Entity, values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	verr := &ValidationError{}
	for name, v := range values {
		col, ok := e.Column(name)
		if !ok {
			return nil, &schema.UnknownFieldError{Entity: e.Name, Field: name}
		}
		if s, ok := v.(string); ok && s == "" && col.IsTemporal() {
			out[name] = nil
			continue
		}
		c, err := Coerce(col, v)
		if err != nil {
			verr.Add(name, "invalid value: "+err.Error())
			continue
		}
		out[name] = c
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
