package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const sample = `
database:
  driver: sqlite
  dsn: file:people.db
  schemas: [main]
rest:
  baseURL: /v1
  maxLimit: 100
  authRequiredFor: [POST, DELETE]
  basicAuth:
    admin: secret
  include: [person, computer]
  entities:
    computer:
      methods: [GET]
  renames:
    person:
      computers: machines
  oidc:
    cacheTTL: 30s
metrics:
  enabled: true
events:
  nats:
    servers: [nats://localhost:4222]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restless.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample), nil)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:people.db", cfg.Database.DSN)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, []string{"main"}, cfg.Database.Schemas)

	assert.Equal(t, ":8080", cfg.REST.ListenAddr)
	assert.Equal(t, "/v1", cfg.REST.BaseURL)
	assert.Equal(t, 100, cfg.REST.MaxLimit)
	assert.True(t, cfg.REST.OpenAPI)
	assert.Equal(t, []string{"POST", "DELETE"}, cfg.REST.AuthRequiredFor)
	assert.Equal(t, map[string]string{"admin": "secret"}, cfg.REST.BasicAuth)
	assert.Equal(t, []string{"GET"}, cfg.REST.Entities["computer"].Methods)
	assert.Equal(t, map[string]map[string]string{"person": {"computers": "machines"}}, cfg.REST.Renames)
	assert.Equal(t, 30*time.Second, cfg.REST.OIDC.CacheTTL)
	assert.Equal(t, []string{"*"}, cfg.REST.CORS.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.REST.ShutdownTimeout)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.Events.NATS.Servers)
	assert.Equal(t, "restless", cfg.Events.NATS.SubjectPrefix)

	require.NoError(t, cfg.Validate())
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("RESTLESS_DATABASE_DSN", "file:env.db")
	t.Setenv("RESTLESS_REST_MAXLIMIT", "5")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("rest.listenAddr", ":8080", "")
	fs.Int("rest.maxLimit", 0, "")
	require.NoError(t, fs.Parse([]string{"--rest.listenAddr=:9999"}))

	cfg, err := Load(writeConfig(t, sample), fs)
	require.NoError(t, err)

	assert.Equal(t, "file:env.db", cfg.Database.DSN, "environment beats the file")
	assert.Equal(t, 5, cfg.REST.MaxLimit, "unset flags do not override")
	assert.Equal(t, ":9999", cfg.REST.ListenAddr, "set flags beat everything")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "database: [unclosed"), nil)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err, "an explicit file must exist")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = ":memory:"
		return cfg
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Database.DSN = ""
	assert.ErrorIs(t, cfg.Validate(), ErrNoDSN)

	cfg = valid()
	cfg.REST.AuthRequiredFor = []string{"POST"}
	assert.ErrorIs(t, cfg.Validate(), ErrAuthBackend)
	cfg.REST.OIDC.Issuer = "https://issuer.example"
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = NewLogger("none")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))

	_, err = NewLogger("loud")
	assert.Error(t, err)
}
