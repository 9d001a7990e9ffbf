// Package relation adds and removes related rows on a set of target rows,
// staging every change on the caller's transaction.
package relation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/edgeflare/restless/pkg/metrics"
	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/search"
	"github.com/edgeflare/restless/pkg/store"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// DeleteKey in a remove entry deletes the related row after detaching it.
const DeleteKey = "__delete__"

// Edit lists the related rows to attach and detach, each given by primary key
// or by attributes.
type Edit struct {
	Add    []map[string]any `mapstructure:"add" json:"add,omitempty"`
	Remove []map[string]any `mapstructure:"remove" json:"remove,omitempty"`
}

// NotFoundError reports an add or remove entry that matched no row.
type NotFoundError struct {
	Relation string
	Attrs    map[string]any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no related row matching %v", e.Relation, e.Attrs)
}

func (e *NotFoundError) Unwrap() error { return store.ErrNotFound }

type Mutator struct {
	st  *store.Store
	reg search.Resolver
}

func New(st *store.Store, reg search.Resolver) *Mutator {
	return &Mutator{st: st, reg: reg}
}

type edge struct {
	owner   *store.Model
	related *store.Model
	rel     schema.Relation
}

func (m *Mutator) edge(e *schema.Entity, name string) (*edge, error) {
	rel, ok := e.Relation(name)
	if !ok {
		return nil, &schema.UnknownFieldError{Entity: e.Name, Field: name}
	}
	target, ok := m.reg.Lookup(rel.Target)
	if !ok {
		return nil, &schema.UnknownFieldError{Entity: e.Name, Field: name}
	}
	return &edge{owner: m.st.Model(e), related: m.st.Model(target), rel: rel}, nil
}

// Resolve returns the row of relation name that attrs designate: by primary
// key when attrs carries one, else the first row matching every attribute.
// With create set, a missing attribute match is inserted.
func (m *Mutator) Resolve(ctx context.Context, conn store.Conn, e *schema.Entity, name string, attrs map[string]any, create bool) (store.Record, error) {
	ed, err := m.edge(e, name)
	if err != nil {
		return nil, err
	}
	return ed.resolve(ctx, conn, attrs, create)
}

// plain drops the keys of attrs naming relations of the related entity.
func (ed *edge) plain(attrs map[string]any) map[string]any {
	attrs = maps.Clone(attrs)
	maps.DeleteFunc(attrs, func(k string, _ any) bool {
		_, ok := ed.related.Entity.Relation(k)
		return ok
	})
	return attrs
}

func (ed *edge) resolve(ctx context.Context, conn store.Conn, attrs map[string]any, create bool) (store.Record, error) {
	related := ed.related
	pk := related.Entity.PrimaryKey
	attrs = ed.plain(attrs)

	var (
		rec store.Record
		err error
	)
	switch raw, ok := attrs[pk]; {
	case ok:
		var id any
		if id, err = related.CoerceID(raw); err == nil {
			rec, err = related.Get(ctx, conn, id)
		}
	case create:
		var id any
		if id, _, err = related.GetOrCreate(ctx, conn, attrs); err == nil {
			rec, err = related.Get(ctx, conn, id)
		}
	default:
		rec, err = related.Find(ctx, conn, attrs)
	}

	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Relation: ed.rel.Name, Attrs: attrs}
	}
	return rec, err
}

// linked returns the row attrs designate among the rows currently related to
// owners, trying owners in order. A row related to none of them is a
// NotFoundError.
func (ed *edge) linked(ctx context.Context, conn store.Conn, owners []store.Record, attrs map[string]any) (store.Record, error) {
	local, remote := ed.rel.LocalColumn, ed.rel.RemoteColumn
	attrs = ed.plain(attrs)
	col, _ := ed.related.Entity.Column(remote)

	var want any
	if raw, ok := attrs[remote]; ok {
		var err error
		if want, err = store.Coerce(col, raw); err != nil {
			return nil, &NotFoundError{Relation: ed.rel.Name, Attrs: attrs}
		}
	}

	for _, owner := range owners {
		key := owner[local]
		if key == nil || (want != nil && fmt.Sprint(want) != fmt.Sprint(key)) {
			continue
		}
		where := maps.Clone(attrs)
		where[remote] = key
		rec, err := ed.related.Find(ctx, conn, where)
		switch {
		case err == nil:
			return rec, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	return nil, &NotFoundError{Relation: ed.rel.Name, Attrs: attrs}
}

// Apply performs edit on relation name of every target row of e. Add entries
// are looked up or created anywhere; remove entries only match rows related
// to one of the targets.
func (m *Mutator) Apply(ctx context.Context, conn store.Conn, e *schema.Entity, targets []any, name string, edit Edit) error {
	ed, err := m.edge(e, name)
	if err != nil {
		return err
	}
	owners, err := ed.owner.SelectIn(ctx, conn, e.PrimaryKey, targets)
	if err != nil {
		return err
	}

	for _, attrs := range edit.Add {
		rec, err := ed.resolve(ctx, conn, attrs, true)
		if err != nil {
			return err
		}
		if err := ed.attach(ctx, conn, owners, rec); err != nil {
			return err
		}
		metrics.RelationEdits.WithLabelValues(e.Name, name, "add").Inc()
	}

	for _, entry := range edit.Remove {
		attrs := maps.Clone(entry)
		del := cast.ToBool(attrs[DeleteKey])
		delete(attrs, DeleteKey)

		rec, err := ed.linked(ctx, conn, owners, attrs)
		if err != nil {
			return err
		}
		if err := ed.detach(ctx, conn, owners, rec); err != nil {
			return err
		}
		metrics.RelationEdits.WithLabelValues(e.Name, name, "remove").Inc()

		if del {
			if _, err := ed.related.Delete(ctx, conn, rec[ed.related.Entity.PrimaryKey]); err != nil {
				return err
			}
			metrics.RelationEdits.WithLabelValues(e.Name, name, "delete").Inc()
		}
	}
	return nil
}

func (ed *edge) attach(ctx context.Context, conn store.Conn, owners []store.Record, rec store.Record) error {
	local, remote := ed.rel.LocalColumn, ed.rel.RemoteColumn
	switch ed.rel.Kind {
	case schema.OneToMany:
		// a child has one parent, so the last owner wins
		pk := ed.related.Entity.PrimaryKey
		for _, owner := range owners {
			_, err := ed.related.UpdateWhere(ctx, conn,
				map[string]any{remote: owner[local]},
				map[string]any{pk: rec[pk]})
			if err != nil {
				return err
			}
		}
	case schema.ManyToOne:
		ids := make([]any, len(owners))
		for i, owner := range owners {
			ids[i] = owner[ed.owner.Entity.PrimaryKey]
		}
		if _, err := ed.owner.UpdateIDs(ctx, conn, ids, map[string]any{local: rec[remote]}); err != nil {
			return err
		}
	}
	return nil
}

// detach clears the foreign key only where it points at the owner.
func (ed *edge) detach(ctx context.Context, conn store.Conn, owners []store.Record, rec store.Record) error {
	local, remote := ed.rel.LocalColumn, ed.rel.RemoteColumn
	for _, owner := range owners {
		var err error
		switch ed.rel.Kind {
		case schema.OneToMany:
			if owner[local] == nil {
				continue
			}
			pk := ed.related.Entity.PrimaryKey
			_, err = ed.related.UpdateWhere(ctx, conn,
				map[string]any{remote: nil},
				map[string]any{pk: rec[pk], remote: owner[local]})
		case schema.ManyToOne:
			if rec[remote] == nil {
				continue
			}
			pk := ed.owner.Entity.PrimaryKey
			_, err = ed.owner.UpdateWhere(ctx, conn,
				map[string]any{local: nil},
				map[string]any{pk: owner[pk], local: rec[remote]})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyAll applies every relation edit found in body, keyed by relation
// name, and returns the names of the relations it touched. Keys that are not
// relations are ignored.
func (m *Mutator) ApplyAll(ctx context.Context, conn store.Conn, e *schema.Entity, targets []any, body map[string]any) ([]string, error) {
	var touched []string
	for _, name := range slices.Sorted(maps.Keys(body)) {
		if _, ok := e.Relation(name); !ok {
			continue
		}
		edit, err := DecodeEdit(body[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := m.Apply(ctx, conn, e, targets, name, edit); err != nil {
			return nil, err
		}
		touched = append(touched, name)
	}
	return touched, nil
}

// DecodeEdit reads {"add": [...], "remove": [...]} from a decoded JSON value.
func DecodeEdit(v any) (Edit, error) {
	var edit Edit
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &edit,
		ErrorUnused: true,
	})
	if err != nil {
		return Edit{}, err
	}
	if err := dec.Decode(v); err != nil {
		return Edit{}, fmt.Errorf("%w: relation edit: %v", search.ErrDecode, err)
	}
	return edit, nil
}
