package restless

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edgeflare/restless/internal/testutil"
	"github.com/edgeflare/restless/pkg/config"
	"github.com/edgeflare/restless/pkg/httputil/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// peopleDB creates a SQLite file holding the person/computer tables.
func peopleDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range testutil.PeopleSchema {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSchemaCommand(t *testing.T) {
	path := peopleDB(t)
	db := []string{"--database.driver", "sqlite", "--database.dsn", path}

	out, err := run(t, append([]string{"schema", "-o", "json"}, db...)...)
	require.NoError(t, err)
	var entities []entityView
	require.NoError(t, json.Unmarshal([]byte(out), &entities))
	require.Len(t, entities, 2)
	assert.Equal(t, "computer", entities[0].Entity)
	assert.Equal(t, "main.person", entities[1].Table)
	assert.Equal(t, "id", entities[1].PrimaryKey)
	require.Len(t, entities[1].Relations, 1)
	assert.Equal(t, relationView{Name: "computers", Kind: "one-to-many", Target: "computer", On: "person.id = computer.owner_id"}, entities[1].Relations[0])

	out, err = run(t, append([]string{"schema", "-o", "yaml"}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "- entity: computer")
	assert.Contains(t, out, "kind: many-to-one")

	out, err = run(t, append([]string{"schema", "--rest.exclude", "computer"}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "person")
	assert.NotContains(t, out, "computers")

	cfgFile := filepath.Join(t.TempDir(), "restless.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("rest:\n  renames:\n    person:\n      computers: machines\n"), 0o600))
	out, err = run(t, append([]string{"schema", "-o", "json", "--config", cfgFile}, db...)...)
	require.NoError(t, err)
	entities = nil
	require.NoError(t, json.Unmarshal([]byte(out), &entities))
	require.Len(t, entities[1].Relations, 1)
	assert.Equal(t, "machines", entities[1].Relations[0].Name)

	_, err = run(t, append([]string{"schema", "-o", "xml"}, db...)...)
	assert.ErrorContains(t, err, `unknown output format "xml"`)
}

func TestCommandsValidateConfig(t *testing.T) {
	_, err := run(t, "serve", "--database.driver", "sqlite")
	assert.ErrorIs(t, err, config.ErrNoDSN)

	_, err = run(t, "schema", "--database.driver", "oracle", "--database.dsn", "x")
	assert.ErrorContains(t, err, "unsupported driver")
}

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = peopleDB(t)
	cfg.REST.BaseURL = "/api"
	cfg.REST.OpenAPI = true
	cfg.REST.AuthRequiredFor = []string{"POST"}
	cfg.REST.BasicAuth = map[string]string{"admin": "secret"}
	cfg.REST.CORS = *middleware.DefaultCORSOptions()
	cfg.REST.Entities = map[string]config.EntityConfig{"computer": {Methods: []string{"GET"}}}
	return cfg
}

func TestAppHandler(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	do := func(method, path, body string, auth bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if auth {
			req.SetBasicAuth("admin", "secret")
		}
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/api/person", `{"name": "Mary"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	assert.Equal(t, http.StatusCreated, do(http.MethodPost, "/api/person", `{"name": "Mary"}`, true).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(http.MethodPost, "/api/computer", `{"name": "Pi"}`, true).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/person/1", "", false).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/openapi.json", "", false).Code)

	rec = do(http.MethodGet, "/healthz", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok", "entities": 2}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/api/person/1", nil)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeShutsDownWithContext(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := testConfig(t)
	cfg.REST.ListenAddr = addr
	cfg.REST.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
