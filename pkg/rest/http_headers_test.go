package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeflare/restless/pkg/relation"
	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/search"
	"github.com/edgeflare/restless/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParsePrefer(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		minimal bool
		exact   bool
	}{
		{"absent", nil, false, false},
		{"minimal", []string{"return=minimal"}, true, false},
		{"representation", []string{"return=representation"}, false, false},
		{"combined", []string{`return="minimal", count=exact`}, true, true},
		{"repeated header", []string{"count=exact", "return=minimal"}, true, true},
		{"case insensitive", []string{"Count=EXACT"}, false, true},
		{"unknown value", []string{"count=planned", "return=everything"}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for _, h := range tt.headers {
				r.Header.Add("Prefer", h)
			}
			p := parsePrefer(r)
			assert.Equal(t, tt.minimal, p.WantsMinimal())
			assert.Equal(t, tt.exact, p.WantsCountExact())
		})
	}
}

func TestContentRange(t *testing.T) {
	assert.Equal(t, "0-24/3573", contentRange(0, 25, 3573))
	assert.Equal(t, "10-10/11", contentRange(10, 1, 11))
	assert.Equal(t, "*/0", contentRange(0, 0, 0))
	assert.Equal(t, "*/5", contentRange(5, 0, 5))
}

func TestWriteError(t *testing.T) {
	s := &Server{logger: zap.NewNop()}

	tests := []struct {
		err  error
		code int
		body string
	}{
		{&store.ValidationError{Errors: map[string]string{"name": "required"}}, http.StatusBadRequest, `{"validation_errors":{"name":"required"}}`},
		{fmt.Errorf("wrapped: %w", search.ErrDecode), http.StatusBadRequest, `{"message":"Unable to decode data"}`},
		{&schema.UnknownFieldError{Entity: "person", Field: "x"}, http.StatusBadRequest, `{"message":"No such field \"x\""}`},
		{&search.UnsupportedOperatorError{Op: "approx"}, http.StatusBadRequest, `{"message":"No such operator \"approx\""}`},
		{&search.UnsupportedFunctionError{Name: "median"}, http.StatusBadRequest, `{"message":"No such function \"median\""}`},
		{&relation.NotFoundError{Relation: "owner", Attrs: map[string]any{"id": 1}}, http.StatusBadRequest, `{"message":"No related owner matching map[id:1]"}`},
		{store.ErrNotFound, http.StatusNotFound, `{"message":"No result found"}`},
		{search.ErrNoResult, http.StatusOK, `{"message":"No result found"}`},
		{search.ErrMultipleResults, http.StatusOK, `{"message":"Multiple results found"}`},
		{fmt.Errorf("%w: two rows", store.ErrInvariant), http.StatusInternalServerError, `{"message":"Internal server error"}`},
		{errors.New("boom"), http.StatusInternalServerError, `{"message":"Internal server error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			s.writeError(w, httptest.NewRequest(http.MethodGet, "/api/person", nil), tt.err)
			assert.Equal(t, tt.code, w.Code)
			require.True(t, json.Valid(w.Body.Bytes()))
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}
