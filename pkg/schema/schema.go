// Package schema reflects database tables into entity metadata: columns,
// primary keys, temporal columns and the relations derived from foreign keys.
// The Registry holds an immutable snapshot of the exposed entities and can be
// reloaded at runtime; requests keep the snapshot they started with.
package schema

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"

	"github.com/edgeflare/restless/pkg/httputil"
	"github.com/edgeflare/restless/pkg/metrics"
	"go.uber.org/zap"
)

type TableType string

const (
	TypeTable TableType = "TABLE"
	TypeView  TableType = "VIEW"
)

type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Type        TableType    `json:"type"`
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

func (t Table) fullName() string {
	return t.Schema + "." + t.Name
}

type Column struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsNullable   bool   `json:"is_nullable"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	HasDefault   bool   `json:"has_default"`
}

// IsTemporal reports whether the column holds a date or a datetime.
func (c Column) IsTemporal() bool {
	k := c.Kind()
	return k == KindDate || k == KindDateTime
}

// IsDate reports whether the column holds a calendar date without a time part.
func (c Column) IsDate() bool {
	return c.Kind() == KindDate
}

type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedSchema string `json:"referenced_schema"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type RelationKind string

const (
	OneToMany RelationKind = "one-to-many"
	ManyToOne RelationKind = "many-to-one"
)

// Relation links an entity to another through a foreign key.
// LocalColumn lives on the owning entity, RemoteColumn on Target.
type Relation struct {
	Name         string       `json:"name"`
	Kind         RelationKind `json:"kind"`
	Target       string       `json:"target"`
	LocalColumn  string       `json:"local_column"`
	RemoteColumn string       `json:"remote_column"`
}

// Entity is an exposed table with a single-column primary key.
type Entity struct {
	Name string `json:"entity"`
	Table
	PrimaryKey string     `json:"primary_key"`
	Relations  []Relation `json:"relations"`

	columns   map[string]int
	relations map[string]int
}

// UnknownFieldError is returned when a name is neither a column nor a relation.
type UnknownFieldError struct {
	Entity string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("no such field %q on %s", e.Field, e.Entity)
}

func (e *Entity) index() {
	e.columns = make(map[string]int, len(e.Columns))
	for i, c := range e.Columns {
		e.columns[c.Name] = i
	}
	e.relations = make(map[string]int, len(e.Relations))
	for i, r := range e.Relations {
		e.relations[r.Name] = i
	}
}

func (e *Entity) Column(name string) (Column, bool) {
	i, ok := e.columns[name]
	if !ok {
		return Column{}, false
	}
	return e.Columns[i], true
}

func (e *Entity) HasColumn(name string) bool {
	_, ok := e.columns[name]
	return ok
}

func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

func (e *Entity) Relation(name string) (Relation, bool) {
	i, ok := e.relations[name]
	if !ok {
		return Relation{}, false
	}
	return e.Relations[i], true
}

func (e *Entity) RelationNames() []string {
	names := make([]string, len(e.Relations))
	for i, r := range e.Relations {
		names[i] = r.Name
	}
	return names
}

// Field checks that name is a column or a relation of e.
func (e *Entity) Field(name string) error {
	if e.HasColumn(name) {
		return nil
	}
	if _, ok := e.relations[name]; ok {
		return nil
	}
	return &UnknownFieldError{Entity: e.Name, Field: name}
}

func (e *Entity) IsTemporal(name string) bool {
	c, ok := e.Column(name)
	return ok && c.IsTemporal()
}

func (e *Entity) IsDate(name string) bool {
	c, ok := e.Column(name)
	return ok && c.IsDate()
}

// LoadFunc reads the raw table metadata of a database.
type LoadFunc func(ctx context.Context) ([]Table, error)

type Registry struct {
	load     LoadFunc
	opts     Options
	entities map[string]*Entity
	mu       sync.RWMutex
}

func NewRegistry(load LoadFunc, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Registry{
		load:     load,
		opts:     opts,
		entities: make(map[string]*Entity),
	}
}

// Load reflects the database and swaps in the new snapshot.
func (r *Registry) Load(ctx context.Context) error {
	tables, err := r.load(ctx)
	if err != nil {
		metrics.SchemaReloads.WithLabelValues("error").Inc()
		return fmt.Errorf("load tables: %w", err)
	}

	entities, err := Build(tables, r.opts)
	if err != nil {
		metrics.SchemaReloads.WithLabelValues("error").Inc()
		return err
	}
	metrics.SchemaReloads.WithLabelValues("ok").Inc()

	r.mu.Lock()
	r.entities = entities
	r.mu.Unlock()

	r.opts.Logger.Info("schema loaded", zap.Int("entities", len(entities)))
	return nil
}

func (r *Registry) Lookup(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	return e, ok
}

// Names returns the sorted entity names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entities))
}

func (r *Registry) Snapshot() map[string]*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]*Entity, len(r.entities))
	maps.Copy(snap, r.entities)
	return snap
}

// ServeHTTP writes the current snapshot as JSON.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, r.Snapshot())
}
