package schema

import "strings"

// ValueKind classifies a declared column type.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInteger
	KindFloat
	KindBool
	KindDate
	KindDateTime
	KindUUID
	KindJSON
)

// Kind maps Postgres data types and SQLite declared types to a ValueKind.
// SQLite affinity rules are followed for anything unrecognised.
func (c Column) Kind() ValueKind {
	t := strings.ToLower(c.DataType)
	switch {
	case t == "date":
		return KindDate
	case strings.Contains(t, "timestamp"), strings.Contains(t, "datetime"):
		return KindDateTime
	case strings.Contains(t, "interval"), strings.Contains(t, "point"):
		return KindString
	case strings.Contains(t, "int"), strings.Contains(t, "serial"):
		return KindInteger
	case strings.Contains(t, "numeric"), strings.Contains(t, "decimal"),
		strings.Contains(t, "real"), strings.Contains(t, "double"), strings.Contains(t, "float"):
		return KindFloat
	case strings.Contains(t, "bool"):
		return KindBool
	case t == "uuid":
		return KindUUID
	case strings.Contains(t, "json"):
		return KindJSON
	default:
		return KindString
	}
}
