package rest_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/edgeflare/restless/internal/testutil"
	"github.com/edgeflare/restless/pkg/events"
	"github.com/edgeflare/restless/pkg/rest"
	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type api struct {
	db *sql.DB
	h  http.Handler
}

func newAPI(t *testing.T, st *store.Store, opts ...rest.Option) api {
	t.Helper()
	db := testutil.SQLite(t, testutil.PeopleSchema...)
	reg := schema.NewRegistry(schema.SQLite(db), schema.Options{})
	require.NoError(t, reg.Load(context.Background()))

	if st == nil {
		st = store.New(store.SQLite)
	}
	srv, err := rest.NewServer(db, st, reg, opts...)
	require.NoError(t, err)
	return api{db: db, h: srv.Handler()}
}

func (a api) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func search(q string) string {
	return "/api/person?q=" + url.QueryEscape(q)
}

func TestPersonComputerScenario(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/api/person",
		`{"name": "Mary", "age": 30, "birth_date": "1990-05-01", "computers": [{"name": "MacBook", "vendor": "Apple"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"id": float64(1)}, decode(t, rec))

	rec = a.do(t, http.MethodGet, "/api/person/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	mary := decode(t, rec)
	assert.Equal(t, "Mary", mary["name"])
	assert.Equal(t, "1990-05-01", mary["birth_date"])
	require.Len(t, mary["computers"], 1)
	macbook := mary["computers"].([]any)[0].(map[string]any)
	assert.Equal(t, "MacBook", macbook["name"])
	assert.Equal(t, float64(1), macbook["owner_id"])

	rec = a.do(t, http.MethodGet, "/api/computer/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	owner := decode(t, rec)["owner"].(map[string]any)
	assert.Equal(t, "Mary", owner["name"])
	assert.NotContains(t, owner, "computers", "relations are one level deep")

	// a many-to-one object is looked up or created before the insert
	rec = a.do(t, http.MethodPost, "/api/computer", `{"name": "Pi", "vendor": "Raspberry", "owner": {"name": "Lucy"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, testutil.Count(t, a.db, "person", "name = 'Lucy'"))
	assert.Equal(t, 1, testutil.Count(t, a.db, "computer", "name = 'Pi' AND owner_id = 2"))

	rec = a.do(t, http.MethodPatch, "/api/person/1",
		`{"age": 31, "computers": {"add": [{"id": 2}], "remove": [{"name": "MacBook", "__delete__": true}]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mary = decode(t, rec)
	assert.Equal(t, float64(31), mary["age"])
	require.Len(t, mary["computers"], 1)
	assert.Equal(t, "Pi", mary["computers"].([]any)[0].(map[string]any)["name"])
	assert.Equal(t, 1, testutil.Count(t, a.db, "computer", ""))

	rec = a.do(t, http.MethodPatch, "/api/person", `{"filters": [{"name": "age", "op": "lt", "val": 100}], "age": 50}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"num_modified": float64(1)}, decode(t, rec))

	rec = a.do(t, http.MethodGet, search(`{"filters": [{"name": "age", "op": "eq", "val": 50}]}`), "")
	require.Equal(t, http.StatusOK, rec.Code)
	objects := decode(t, rec)["objects"].([]any)
	require.Len(t, objects, 1)
	assert.Equal(t, "Mary", objects[0].(map[string]any)["name"])

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/person/2", "").Code)
	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/person/2", "").Code, "delete is idempotent")
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/person/2", "").Code)
}

func TestListAndSearch(t *testing.T) {
	a := newAPI(t, nil)
	testutil.Seed(t, a.db, "person",
		map[string]any{"name": "Mary", "age": 30},
		map[string]any{"name": "Lincoln", "age": 20},
		map[string]any{"name": "Lucy", "age": 25},
	)

	rec := a.do(t, http.MethodGet, "/api/person", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["objects"], 3)

	rec = a.do(t, http.MethodGet, search(`{"filters": [{"name": "age", "op": "gt", "val": 21}], "order_by": [{"field": "age", "direction": "desc"}]}`), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	for _, o := range decode(t, rec)["objects"].([]any) {
		names = append(names, o.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"Mary", "Lucy"}, names)

	rec = a.do(t, http.MethodGet, "/api/person?age=lt.25&order=name", "")
	require.Equal(t, http.StatusOK, rec.Code)
	objects := decode(t, rec)["objects"].([]any)
	require.Len(t, objects, 1)
	assert.Equal(t, "Lincoln", objects[0].(map[string]any)["name"])
	assert.Equal(t, []any{}, objects[0].(map[string]any)["computers"])
}

func TestSearchSingle(t *testing.T) {
	a := newAPI(t, nil)
	testutil.Seed(t, a.db, "person",
		map[string]any{"name": "Mary", "age": 30},
		map[string]any{"name": "Lucy", "age": 30},
	)

	rec := a.do(t, http.MethodGet, search(`{"filters": [{"name": "name", "op": "eq", "val": "Mary"}], "single": true}`), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mary", decode(t, rec)["name"])

	rec = a.do(t, http.MethodGet, search(`{"filters": [{"name": "age", "op": "gt", "val": 50}], "single": true}`), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"message": "No result found"}, decode(t, rec))

	rec = a.do(t, http.MethodGet, search(`{"filters": [{"name": "age", "op": "eq", "val": 30}], "single": true}`), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"message": "Multiple results found"}, decode(t, rec))
}

func TestBulkPatch(t *testing.T) {
	a := newAPI(t, nil)
	testutil.Seed(t, a.db, "person",
		map[string]any{"name": "Mary", "age": 30},
		map[string]any{"name": "Lincoln", "age": 20},
		map[string]any{"name": "Lucy", "age": 25},
	)
	testutil.Seed(t, a.db, "computer", map[string]any{"name": "Pi"})

	rec := a.do(t, http.MethodPatch, "/api/person",
		`{"filters": [{"name": "age", "op": "lt", "val": 30}], "age": 29, "birth_date": "1995-01-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"num_modified": float64(2)}, decode(t, rec))
	assert.Equal(t, 2, testutil.Count(t, a.db, "person", "age = 29 AND birth_date IS NOT NULL"))
	assert.Equal(t, 1, testutil.Count(t, a.db, "person", "age = 30"))

	rec = a.do(t, http.MethodPut, "/api/person",
		`{"filters": [{"name": "age", "op": "eq", "val": 29}], "computers": {"add": [{"name": "Pi"}]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"num_modified": float64(2)}, decode(t, rec))
	assert.Equal(t, 1, testutil.Count(t, a.db, "computer", "owner_id IS NOT NULL"))

	rec = a.do(t, http.MethodPatch, "/api/person", `{"filters": [{"name": "age", "op": "gt", "val": 99}], "age": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"num_modified": float64(0)}, decode(t, rec))
}

func TestBulkPatchBeyondParameterLimit(t *testing.T) {
	for name, opts := range map[string][]rest.Option{
		"plain":     nil,
		"publisher": {rest.WithPublisher(&recorder{})},
	} {
		t.Run(name, func(t *testing.T) {
			a := newAPI(t, nil, opts...)
			testutil.SeedPeople(t, a.db, 40000, 1)

			rec := a.do(t, http.MethodPatch, "/api/person", `{"age": 2}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, map[string]any{"num_modified": float64(40000)}, decode(t, rec))
			assert.Equal(t, 40000, testutil.Count(t, a.db, "person", "age = 2"))
		})
	}
}

func TestRemoveUnrelatedRow(t *testing.T) {
	a := newAPI(t, nil)
	people := testutil.Seed(t, a.db, "person", map[string]any{"name": "Mary"}, map[string]any{"name": "Lucy"})
	testutil.Seed(t, a.db, "computer", map[string]any{"name": "Pi", "owner_id": people[1]})

	rec := a.do(t, http.MethodPatch, "/api/person/1", `{"age": 40, "computers": {"remove": [{"id": 1, "__delete__": true}]}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, decode(t, rec)["message"], "No related computers")
	assert.Equal(t, 1, testutil.Count(t, a.db, "computer", "owner_id = ?", people[1]))
	assert.Equal(t, 0, testutil.Count(t, a.db, "person", "age = 40"), "the whole request rolls back")
}

func TestLargeIntegerIDs(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/api/person", `{"id": 9007199254740993, "name": "Mary"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":9007199254740993`)
	assert.Equal(t, 1, testutil.Count(t, a.db, "person", "id = 9007199254740993"))

	rec = a.do(t, http.MethodGet, search(`{"filters": [{"name": "id", "op": "eq", "val": 9007199254740993}], "single": true}`), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mary", decode(t, rec)["name"])
}

func TestClientErrors(t *testing.T) {
	a := newAPI(t, nil)

	tests := []struct {
		name, method, path, body string
		code                     int
		message                  string
	}{
		{"malformed q", http.MethodGet, search(`{"filters": [`), "", http.StatusBadRequest, "Unable to decode data"},
		{"malformed body", http.MethodPost, "/api/person", `{"name": `, http.StatusBadRequest, "Unable to decode data"},
		{"unknown field", http.MethodGet, search(`{"filters": [{"name": "bogus", "op": "eq", "val": 1}]}`), "", http.StatusBadRequest, `No such field "bogus"`},
		{"unknown operator", http.MethodGet, search(`{"filters": [{"name": "age", "op": "approx", "val": 1}]}`), "", http.StatusBadRequest, `No such operator "approx"`},
		{"unknown entity", http.MethodGet, "/api/nothing", "", http.StatusNotFound, `No such entity "nothing"`},
		{"uncoercible id", http.MethodGet, "/api/person/abc", "", http.StatusNotFound, "No result found"},
		{"missing id", http.MethodGet, "/api/person/42", "", http.StatusNotFound, "No result found"},
		{"patch missing id", http.MethodPatch, "/api/person/42", `{"age": 1}`, http.StatusNotFound, "No result found"},
		{"missing related row", http.MethodPost, "/api/computer", `{"name": "Pi", "owner": {"id": 42}}`, http.StatusBadRequest, "No related owner matching map[id:42]"},
		{"bad relation edit", http.MethodPost, "/api/person", `{"name": "Mary", "computers": 3}`, http.StatusBadRequest, "Unable to decode data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec)["message"])
		})
	}

	rec := a.do(t, http.MethodOptions, "/api/person", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestValidationErrorsRollBack(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/api/person", `{"age": 3}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["validation_errors"], "name")

	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/person", `{"name": "Mary"}`).Code)
	rec = a.do(t, http.MethodPost, "/api/person", `{"name": "Mary"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["validation_errors"], "name")

	// the computer lacks its required name, so the person is not created either
	rec = a.do(t, http.MethodPost, "/api/person", `{"name": "Lucy", "computers": [{"vendor": "Dell"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["validation_errors"], "name")
	assert.Equal(t, 0, testutil.Count(t, a.db, "person", "name = 'Lucy'"))

	rec = a.do(t, http.MethodPatch, "/api/person/1", `{"age": "old"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["validation_errors"], "age")
}

func TestValidators(t *testing.T) {
	positive := store.ValidatorFunc(func(_ context.Context, _ *schema.Entity, _ store.Operation, values map[string]any) error {
		if age, ok := values["age"].(int64); ok && age < 0 {
			verr := &store.ValidationError{}
			verr.Add("age", "must not be negative")
			return verr
		}
		return nil
	})
	a := newAPI(t, store.New(store.SQLite, store.WithValidator("person", positive)))
	testutil.Seed(t, a.db, "person", map[string]any{"name": "Mary", "age": 30})

	for _, req := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/person", `{"name": "Lucy", "age": -1}`},
		{http.MethodPatch, "/api/person/1", `{"age": -1}`},
		{http.MethodPatch, "/api/person", `{"age": -1}`},
	} {
		rec := a.do(t, req.method, req.path, req.body)
		require.Equal(t, http.StatusBadRequest, rec.Code, req)
		assert.Equal(t, map[string]any{"validation_errors": map[string]any{"age": "must not be negative"}}, decode(t, rec))
	}
	assert.Equal(t, 1, testutil.Count(t, a.db, "person", "age = 30"))
}

func TestAuthentication(t *testing.T) {
	var calls int
	deny := func(context.Context) bool { calls++; return false }
	a := newAPI(t, nil, rest.WithAuth(deny, "post", "Delete"))

	rec := a.do(t, http.MethodPost, "/api/person", `{not json`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "authentication runs before decoding")
	assert.Equal(t, "Unauthorized", decode(t, rec)["message"])
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodDelete, "/api/person/1", "").Code)
	assert.Equal(t, 2, calls)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/person", "").Code)
	assert.Equal(t, 2, calls)

	_, err := rest.NewServer(a.db, store.New(store.SQLite), schema.NewRegistry(schema.SQLite(a.db), schema.Options{}),
		rest.WithAuth(nil, "POST"))
	assert.ErrorIs(t, err, rest.ErrAuthFuncRequired)
}

func TestEntityMethods(t *testing.T) {
	a := newAPI(t, nil, rest.WithMethods("computer", "get", "patch"))

	rec := a.do(t, http.MethodPost, "/api/computer", `{"name": "Pi"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, PATCH", rec.Header().Get("Allow"))
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/computer", "").Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/api/computer", `{}`).Code, "PUT follows PATCH")
	assert.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/person", `{"name": "Mary"}`).Code)
}

func TestEval(t *testing.T) {
	a := newAPI(t, nil)
	testutil.Seed(t, a.db, "person",
		map[string]any{"name": "Mary", "age": 30},
		map[string]any{"name": "Lincoln", "age": 20},
		map[string]any{"name": "Lucy", "age": 25},
	)

	rec := a.do(t, http.MethodGet, "/api/eval/person", `{"functions": [{"name": "sum", "field": "age"}, {"name": "count", "field": "id"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"sum__age": float64(75), "count__id": float64(3)}, decode(t, rec))

	q := url.QueryEscape(`{"functions": [{"name": "max", "field": "age"}], "filters": [{"name": "age", "op": "lt", "val": 30}]}`)
	rec = a.do(t, http.MethodGet, "/api/eval/person?q="+q, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"max__age": float64(25)}, decode(t, rec))

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodGet, "/api/eval/person", "").Code)
	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodGet, "/api/eval/nothing", `{"functions": [{"name": "sum", "field": "age"}]}`).Code)

	rec = a.do(t, http.MethodGet, "/api/eval/person", `{"functions": [{"name": "median", "field": "age"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `No such function "median"`, decode(t, rec)["message"])

	rec = a.do(t, http.MethodGet, "/api/eval/person", `{"functions": [{"name": "sum", "field": "bogus"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `No such field "bogus"`, decode(t, rec)["message"])
}

func TestPreferHeaders(t *testing.T) {
	a := newAPI(t, nil, rest.WithMaxLimit(10))
	testutil.Seed(t, a.db, "person",
		map[string]any{"name": "Mary", "age": 30},
		map[string]any{"name": "Lincoln", "age": 20},
		map[string]any{"name": "Lucy", "age": 25},
	)

	rec := a.do(t, http.MethodGet, "/api/person?limit=2&offset=1", "", "Prefer", "count=exact")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1-2/3", rec.Header().Get("Content-Range"))
	assert.Len(t, decode(t, rec)["objects"], 2)

	rec = a.do(t, http.MethodGet, "/api/person?name=Nobody", "", "Prefer", "count=exact")
	assert.Equal(t, "*/0", rec.Header().Get("Content-Range"))

	rec = a.do(t, http.MethodPatch, "/api/person/1", `{"age": 31}`, "Prefer", "return=minimal")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, 1, testutil.Count(t, a.db, "person", "age = 31"))
}

func TestStrictFields(t *testing.T) {
	lenient := newAPI(t, nil)
	assert.Equal(t, http.StatusCreated, lenient.do(t, http.MethodPost, "/api/person", `{"name": "Mary", "bogus": 1}`).Code)

	strict := newAPI(t, nil, rest.WithStrictFields(true))
	rec := strict.do(t, http.MethodPost, "/api/person", `{"name": "Mary", "bogus": 1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `No such field "bogus"`, decode(t, rec)["message"])
}

func TestInternalErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	a := newAPI(t, nil, rest.WithLogger(zap.New(core)))

	// the registry still knows the table
	_, err := a.db.Exec(`DROP TABLE computer`)
	require.NoError(t, err)

	rec := a.do(t, http.MethodGet, "/api/computer", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decode(t, rec)["message"])
	require.Equal(t, 1, logs.FilterMessage("internal error").Len())
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error { return nil }

func TestEventsAfterCommit(t *testing.T) {
	pub := &recorder{}
	a := newAPI(t, nil, rest.WithPublisher(pub))

	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/person", `{"name": "Mary", "computers": [{"name": "Pi"}]}`).Code)
	require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/person", `{"name": "Mary"}`).Code)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPatch, "/api/person", `{"age": 3}`).Code)
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/computer/1", "").Code)
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/computer/1", "").Code)

	require.Len(t, pub.events, 3)
	assert.Equal(t, events.OpCreate, pub.events[0].Op)
	assert.Equal(t, []any{int64(1)}, pub.events[0].IDs)
	assert.Equal(t, []string{"computers"}, pub.events[0].Relations)
	assert.Equal(t, events.OpUpdate, pub.events[1].Op)
	assert.Equal(t, events.Event{Entity: "computer", Op: events.OpDelete, IDs: []any{int64(1)}, Time: pub.events[2].Time}, pub.events[2])
}

func TestSchemaAndOpenAPI(t *testing.T) {
	a := newAPI(t, nil, rest.WithOpenAPI(schema.OpenAPIInfo{Title: "people", Version: "1"}))

	rec := a.do(t, http.MethodGet, "/api/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec), "person")

	rec = a.do(t, http.MethodGet, "/api/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	assert.Equal(t, "3.1.0", doc["openapi"])
	assert.Contains(t, doc["paths"], "/computer/{id}")
}
