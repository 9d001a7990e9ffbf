package search

import (
	"fmt"
	"strings"
)

const (
	Asc  = "asc"
	Desc = "desc"
)

// ParseOrder reads the order shorthand: a comma separated list of
// column[.asc|.desc][.nullsfirst|.nullslast], e.g. "age.desc.nullslast,name".
func ParseOrder(order string) ([]OrderBy, error) {
	var result []OrderBy
	for _, part := range strings.Split(order, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		o := OrderBy{Direction: Asc}
		if trimmed, ok := strings.CutSuffix(part, ".nullsfirst"); ok {
			part, o.Nulls = trimmed, "first"
		} else if trimmed, ok := strings.CutSuffix(part, ".nullslast"); ok {
			part, o.Nulls = trimmed, "last"
		}
		if trimmed, ok := strings.CutSuffix(part, ".desc"); ok {
			part, o.Direction = trimmed, Desc
		} else if trimmed, ok := strings.CutSuffix(part, ".asc"); ok {
			part = trimmed
		}

		if part == "" || strings.Contains(part, ".") {
			return nil, fmt.Errorf("%w: order %q", ErrDecode, order)
		}
		o.Field = part
		result = append(result, o)
	}
	return result, nil
}

func (o OrderBy) sql() (dir, nulls string, err error) {
	switch strings.ToLower(o.Direction) {
	case "", Asc:
		dir = "ASC"
	case Desc:
		dir = "DESC"
	default:
		return "", "", fmt.Errorf("%w: direction %q", ErrDecode, o.Direction)
	}

	switch strings.ToLower(o.Nulls) {
	case "":
	case "first":
		nulls = " NULLS FIRST"
	case "last":
		nulls = " NULLS LAST"
	default:
		return "", "", fmt.Errorf("%w: nulls %q", ErrDecode, o.Nulls)
	}
	return dir, nulls, nil
}
