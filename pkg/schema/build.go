package schema

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
)

type Options struct {
	// Schemas are the database schemas to expose. Tables of the first one are
	// named by table name, the others as <schema>_<table>.
	Schemas []string
	// Include, when set, limits the exposed entities to these names.
	Include []string
	Exclude []string
	// Renames maps entity, then relation, to a new relation name.
	Renames map[string]map[string]string
	Logger  *zap.Logger
}

func (o Options) primarySchema() string {
	if len(o.Schemas) == 0 {
		return ""
	}
	return o.Schemas[0]
}

func (o Options) exposed(name string) bool {
	if len(o.Include) > 0 && !slices.Contains(o.Include, name) {
		return false
	}
	return !slices.Contains(o.Exclude, name)
}

// Build turns reflected tables into entities and derives their relations.
// Tables without a single-column primary key are skipped.
func Build(tables []Table, opts Options) (map[string]*Entity, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	primary := opts.primarySchema()
	entities := make(map[string]*Entity)
	byTable := make(map[string]*Entity)

	for _, t := range tables {
		name := t.Name
		if primary != "" && t.Schema != primary {
			name = t.Schema + "_" + t.Name
		}
		if !opts.exposed(name) {
			continue
		}
		if len(t.PrimaryKeys) != 1 {
			logger.Debug("skipping table without single-column primary key", zap.String("table", t.fullName()))
			continue
		}
		if _, dup := entities[name]; dup {
			return nil, fmt.Errorf("duplicate entity name %q", name)
		}
		e := &Entity{Name: name, Table: t, PrimaryKey: t.PrimaryKeys[0]}
		e.index()
		entities[name] = e
		byTable[t.fullName()] = e
	}

	for _, tableName := range sortedKeys(byTable) {
		e := byTable[tableName]
		for _, fk := range e.ForeignKeys {
			target, ok := byTable[fk.ReferencedSchema+"."+fk.ReferencedTable]
			if !ok {
				continue
			}
			remote := fk.ReferencedColumn
			if remote == "" {
				remote = target.PrimaryKey
			}

			forward := Relation{
				Kind:         ManyToOne,
				Target:       target.Name,
				LocalColumn:  fk.Column,
				RemoteColumn: remote,
			}
			addRelation(e, forward, manyToOneNames(fk.Column, target.Table.Name), logger)

			backward := Relation{
				Kind:         OneToMany,
				Target:       e.Name,
				LocalColumn:  remote,
				RemoteColumn: fk.Column,
			}
			addRelation(target, backward, oneToManyNames(e.Table.Name, fk.Column), logger)
		}
	}

	for _, e := range entities {
		for i, rel := range e.Relations {
			if renamed, ok := opts.Renames[e.Name][rel.Name]; ok {
				e.Relations[i].Name = renamed
			}
		}
		slices.SortFunc(e.Relations, func(a, b Relation) int { return strings.Compare(a.Name, b.Name) })
		e.index()
	}
	return entities, nil
}

// addRelation attaches rel under the first candidate name that clashes with
// neither a column nor an existing relation.
func addRelation(e *Entity, rel Relation, candidates []string, logger *zap.Logger) {
	for _, name := range candidates {
		if name == "" || e.HasColumn(name) {
			continue
		}
		if slices.ContainsFunc(e.Relations, func(r Relation) bool { return r.Name == name }) {
			continue
		}
		rel.Name = name
		e.Relations = append(e.Relations, rel)
		return
	}
	logger.Warn("no free name for relation",
		zap.String("entity", e.Name), zap.String("target", rel.Target), zap.Strings("tried", candidates))
}

// computer.owner_id -> owner; falls back to the referenced table name.
func manyToOneNames(column, table string) []string {
	names := []string{}
	if trimmed := strings.TrimSuffix(column, "_id"); trimmed != column {
		names = append(names, trimmed)
	}
	return append(names, table, table+"_"+column)
}

// computer.owner_id seen from person -> computers, then computers_owner.
func oneToManyNames(table, column string) []string {
	plural := pluralize(table)
	return []string{plural, plural + "_" + strings.TrimSuffix(column, "_id")}
}

func pluralize(s string) string {
	switch {
	case strings.HasSuffix(s, "s"):
		return s
	case strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])):
		return s[:len(s)-1] + "ies"
	default:
		return s + "s"
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
