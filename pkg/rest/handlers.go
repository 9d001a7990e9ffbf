package rest

import (
	"database/sql"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"

	"github.com/edgeflare/restless/pkg/events"
	"github.com/edgeflare/restless/pkg/httputil"
	"github.com/edgeflare/restless/pkg/relation"
	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/search"
	"github.com/edgeflare/restless/pkg/store"
	"go.uber.org/zap"
)

const maxBodyBytes = 10 << 20

// ObjectsResponse is the envelope of a search result.
type ObjectsResponse struct {
	Objects []map[string]any `json:"objects"`
}

// ModifiedResponse reports the outcome of a bulk update.
type ModifiedResponse struct {
	NumModified int64 `json:"num_modified"`
}

// decodeBody reads a JSON object. An empty body decodes to an empty map.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", search.ErrDecode, err)
	}
	body := make(map[string]any)
	if len(data) == 0 {
		return body, nil
	}
	if err := search.DecodeJSON(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", search.ErrDecode, err)
	}
	return body, nil
}

// fields splits a body into column values and relation values. Unknown keys
// are dropped, or rejected when strict fields are on.
func (s *Server) fields(r *http.Request, e *schema.Entity, body map[string]any) (cols, rels map[string]any, err error) {
	cols, rels = make(map[string]any), make(map[string]any)
	for _, k := range slices.Sorted(maps.Keys(body)) {
		switch {
		case e.HasColumn(k):
			cols[k] = body[k]
		case isRelation(e, k):
			rels[k] = body[k]
		case s.strictFields:
			return nil, nil, &schema.UnknownFieldError{Entity: e.Name, Field: k}
		default:
			s.logger.Debug("dropping unknown field",
				zap.String("req_id", httputil.RequestID(r)),
				zap.String("entity", e.Name),
				zap.String("field", k))
		}
	}
	return cols, rels, nil
}

func isRelation(e *schema.Entity, name string) bool {
	_, ok := e.Relation(name)
	return ok
}

// handleSearch serves GET /{entity}: every object matching the q search,
// or a single bare object when the search asks for one.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, e *schema.Entity) {
	spec, err := search.FromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := search.Build(s.registry, s.st, e, spec, search.WithMaxLimit(s.maxLimit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	prefer := parsePrefer(r)

	var (
		objects []map[string]any
		total   int64
	)
	err = s.tx(r.Context(), func(tx *sql.Tx) error {
		var (
			recs []store.Record
			err  error
		)
		if q.Single() {
			var rec store.Record
			if rec, err = q.One(r.Context(), tx); err != nil {
				return err
			}
			recs = []store.Record{rec}
		} else if recs, err = q.All(r.Context(), tx); err != nil {
			return err
		}

		if prefer.WantsCountExact() {
			if total, err = q.Count(r.Context(), tx); err != nil {
				return err
			}
		}
		objects, err = s.represent(r.Context(), tx, e, recs)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if prefer.WantsCountExact() {
		w.Header().Set("Content-Range", contentRange(q.Offset(), len(objects), total))
	}
	if q.Single() {
		httputil.JSON(w, http.StatusOK, objects[0])
		return
	}
	httputil.JSON(w, http.StatusOK, ObjectsResponse{Objects: objects})
}

// handleGet serves GET /{entity}/{id}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, e *schema.Entity) {
	model := s.st.Model(e)
	id, err := model.CoerceID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var obj map[string]any
	err = s.tx(r.Context(), func(tx *sql.Tx) error {
		rec, err := model.Get(r.Context(), tx, id)
		if err != nil {
			return err
		}
		obj, err = s.representOne(r.Context(), tx, e, rec)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, obj)
}

// handlePost serves POST /{entity}. Many-to-one relations given as objects
// are resolved or created before the insert; one-to-many relations given as
// lists are attached after it.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request, e *schema.Entity) {
	body, err := decodeBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cols, rels, err := s.fields(r, e, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	model := s.st.Model(e)
	var id any
	err = s.tx(r.Context(), func(tx *sql.Tx) error {
		values := maps.Clone(cols)
		edits := make(map[string]relation.Edit)

		for _, name := range slices.Sorted(maps.Keys(rels)) {
			rel, _ := e.Relation(name)
			switch v := rels[name].(type) {
			case nil:
				if rel.Kind == schema.ManyToOne {
					values[rel.LocalColumn] = nil
				}
			case map[string]any:
				if rel.Kind == schema.ManyToOne {
					related, err := s.mutator.Resolve(r.Context(), tx, e, name, v, true)
					if err != nil {
						return err
					}
					values[rel.LocalColumn] = related[rel.RemoteColumn]
					continue
				}
				edit, err := relation.DecodeEdit(v)
				if err != nil {
					return err
				}
				edits[name] = edit
			case []any:
				edit, err := relation.DecodeEdit(map[string]any{"add": v})
				if err != nil {
					return err
				}
				edits[name] = edit
			default:
				return fmt.Errorf("%w: relation %s", search.ErrDecode, name)
			}
		}

		var err error
		if id, err = model.Create(r.Context(), tx, values); err != nil {
			return err
		}
		for _, name := range slices.Sorted(maps.Keys(edits)) {
			if err := s.mutator.Apply(r.Context(), tx, e, []any{id}, name, edits[name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(r, events.Event{Entity: e.Name, Op: events.OpCreate, IDs: []any{id}, Relations: slices.Sorted(maps.Keys(rels))})
	httputil.JSON(w, http.StatusCreated, map[string]any{e.PrimaryKey: id})
}

// handlePatch serves PATCH and PUT /{entity}/{id}: relation edits first, then
// one UPDATE of the plain columns. The refreshed object is returned unless
// Prefer: return=minimal is set.
func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request, e *schema.Entity) {
	model := s.st.Model(e)
	id, err := model.CoerceID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := decodeBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cols, rels, err := s.fields(r, e, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	prefer := parsePrefer(r)

	var (
		obj     map[string]any
		touched []string
	)
	err = s.tx(r.Context(), func(tx *sql.Tx) error {
		n, err := model.Count(r.Context(), tx, map[string]any{e.PrimaryKey: id})
		switch {
		case err != nil:
			return err
		case n == 0:
			return fmt.Errorf("%s %v: %w", e.Name, id, store.ErrNotFound)
		case n > 1:
			return fmt.Errorf("%w: %d %s rows with %s %v", store.ErrInvariant, n, e.Name, e.PrimaryKey, id)
		}

		if touched, _, err = s.update(r, tx, model, []any{id}, cols, rels); err != nil {
			return err
		}
		if prefer.WantsMinimal() {
			return nil
		}
		rec, err := model.Get(r.Context(), tx, id)
		if err != nil {
			return err
		}
		obj, err = s.representOne(r.Context(), tx, e, rec)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(r, events.Event{Entity: e.Name, Op: events.OpUpdate, IDs: []any{id}, Relations: touched})
	if prefer.WantsMinimal() {
		httputil.NoContent(w)
		return
	}
	httputil.JSON(w, http.StatusOK, obj)
}

// handlePatchMany serves PATCH and PUT /{entity}: the search keys of the body
// select the rows, every other key is applied to all of them. Relation edits
// run first; plain columns are then written by one UPDATE over the search.
func (s *Server) handlePatchMany(w http.ResponseWriter, r *http.Request, e *schema.Entity) {
	body, err := decodeBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spec, rest, err := search.FromBody(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cols, rels, err := s.fields(r, e, rest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := search.Build(s.registry, s.st, e, spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		ids     []any
		touched []string
		n       int64
	)
	err = s.tx(r.Context(), func(tx *sql.Tx) error {
		var err error
		// a plain column update without subscribers never lists the rows
		if len(cols) == 0 || len(rels) > 0 || s.publishing() {
			if ids, err = q.IDs(r.Context(), tx); err != nil {
				return err
			}
			n = int64(len(ids))
		}
		if touched, err = s.mutator.ApplyAll(r.Context(), tx, e, ids, rels); err != nil {
			return err
		}
		if len(cols) == 0 {
			return nil
		}

		values, err := store.CoerceValues(e, cols)
		if err != nil {
			return err
		}
		model := s.st.Model(e)
		if err := model.Validate(r.Context(), store.OpUpdate, values); err != nil {
			return err
		}
		if len(rels) > 0 {
			// relation edits may change what the search matches
			n, err = model.UpdateIDs(r.Context(), tx, ids, values)
			return err
		}
		n, err = q.UpdateAll(r.Context(), tx, values)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if len(ids) > 0 {
		s.publish(r, events.Event{Entity: e.Name, Op: events.OpUpdate, IDs: ids, Relations: touched})
	}
	httputil.JSON(w, http.StatusOK, ModifiedResponse{NumModified: n})
}

// update applies relation edits to the rows ids, then validates cols and
// writes them in one UPDATE. It returns the touched relations and the number
// of rows modified, which is every target when only relations changed.
func (s *Server) update(r *http.Request, tx *sql.Tx, model *store.Model, ids []any, cols, rels map[string]any) ([]string, int64, error) {
	touched, err := s.mutator.ApplyAll(r.Context(), tx, model.Entity, ids, rels)
	if err != nil {
		return nil, 0, err
	}
	if len(cols) == 0 {
		return touched, int64(len(ids)), nil
	}

	values, err := store.CoerceValues(model.Entity, cols)
	if err != nil {
		return nil, 0, err
	}
	if err := model.Validate(r.Context(), store.OpUpdate, values); err != nil {
		return nil, 0, err
	}
	n, err := model.UpdateIDs(r.Context(), tx, ids, values)
	return touched, n, err
}

// handleDelete serves DELETE /{entity}/{id}. Deleting a missing row succeeds.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, e *schema.Entity) {
	model := s.st.Model(e)
	id, err := model.CoerceID(r.PathValue("id"))
	if err != nil {
		httputil.NoContent(w)
		return
	}

	var deleted bool
	err = s.tx(r.Context(), func(tx *sql.Tx) error {
		var err error
		deleted, err = model.Delete(r.Context(), tx, id)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if deleted {
		s.publish(r, events.Event{Entity: e.Name, Op: events.OpDelete, IDs: []any{id}})
	}
	httputil.NoContent(w)
}

// handleEval serves GET /eval/{entity}. Functions come from the body or the
// q parameter; filters in q restrict the rows they run over.
func (s *Server) handleEval(w http.ResponseWriter, r *http.Request, e *schema.Entity) {
	body, err := decodeBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spec, _, err := search.FromBody(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(spec.Functions) == 0 {
		if spec, err = search.FromQuery(r.URL.Query()); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if e == nil || len(spec.Functions) == 0 {
		httputil.NoContent(w)
		return
	}

	var scope *search.Query
	if len(spec.Filters) > 0 {
		if scope, err = search.Build(s.registry, s.st, e, search.Spec{Filters: spec.Filters}); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	var result map[string]any
	err = s.tx(r.Context(), func(tx *sql.Tx) error {
		var err error
		result, err = search.Evaluate(r.Context(), tx, s.st, e, spec.Functions, scope)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(result) == 0 {
		httputil.NoContent(w)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}
