package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgeflare/restless/pkg/httputil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestLoggerFromContext(t *testing.T) {
	logger, logs := newTestLogger()
	ctx := context.WithValue(context.Background(), httputil.LogEntryCtxKey, logger)
	Logger(ctx).Info("hello")
	assert.Equal(t, 1, logs.Len())

	assert.NotNil(t, Logger(context.Background()))
}

func TestLoggerWithOptions(t *testing.T) {
	logger, logs := newTestLogger()
	options := &LoggerOptions{
		Logger: logger,
		Format: func(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field {
			return []zap.Field{zap.String("test", "log")}
		},
	}

	handler := LoggerWithOptions(options)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "response", logs.All()[0].Message)
	assert.Equal(t, "log", logs.All()[0].ContextMap()["test"])
}

func TestLoggerWithDefaultOptions(t *testing.T) {
	logger, logs := newTestLogger()
	prev := defaultLogger
	defaultLogger = logger
	t.Cleanup(func() { defaultLogger = prev })

	r := httputil.NewRouter()
	r.Use(RequestID, LoggerWithOptions(nil))
	r.HandleFunc("DELETE /api/{entity}/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodDelete, "http://example.com/api/person/1", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "DELETE", fields["method"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status"])
	assert.Equal(t, "person", fields["entity"])
	assert.Equal(t, "abc", fields["req_id"])
}

func TestLoggerWithoutRequestID(t *testing.T) {
	logger, logs := newTestLogger()
	handler := LoggerWithOptions(&LoggerOptions{Logger: logger})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Logger(r.Context()).Debug("inside")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "inside", logs.All()[0].Message)
	assert.Equal(t, uuid.Nil.String(), logs.All()[0].ContextMap()["req_id"])
	assert.Equal(t, uuid.Nil.String(), logs.All()[1].ContextMap()["req_id"])
}

func TestLoggerSkipsNestedLoggers(t *testing.T) {
	logger, logs := newTestLogger()
	mw := LoggerWithOptions(&LoggerOptions{Logger: logger})
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), mw, mw)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil))
	assert.Equal(t, 1, logs.Len())
}

func TestResponseRecorderKeepsFirstStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	rec := NewResponseRecorder(rr)
	rec.WriteHeader(http.StatusCreated)
	rec.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusCreated, rec.StatusCode)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Same(t, http.ResponseWriter(rr), rec.Unwrap())
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httputil.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }), mw("a"), mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}
