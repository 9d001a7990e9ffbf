// Package config loads restless settings from restless.yaml, RESTLESS_*
// environment variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/restless/pkg/events"
	"github.com/edgeflare/restless/pkg/httputil/middleware"
	"github.com/edgeflare/restless/pkg/store"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time with -ldflags "-X .../pkg/config.Version=...".
var Version = "dev"

const EnvPrefix = "RESTLESS"

// Config holds application-wide configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	REST     RESTConfig     `mapstructure:"rest"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Events   EventsConfig   `mapstructure:"events"`
}

type DatabaseConfig struct {
	store.Config `mapstructure:",squash"`
	Schemas      []string `mapstructure:"schemas"`
	// Watch reloads the schema on NOTIFY restless, 'reload schema'. Postgres only.
	Watch bool `mapstructure:"watch"`
}

type RESTConfig struct {
	ListenAddr      string   `mapstructure:"listenAddr"`
	BaseURL         string   `mapstructure:"baseURL"`
	MaxLimit        int      `mapstructure:"maxLimit"`
	StrictFields    bool     `mapstructure:"strictFields"`
	OpenAPI         bool     `mapstructure:"openAPI"`
	AuthRequiredFor []string `mapstructure:"authRequiredFor"`
	// BasicAuth maps user to password. Usernames are lowercased by viper.
	BasicAuth map[string]string             `mapstructure:"basicAuth"`
	OIDC      middleware.OIDCProviderConfig `mapstructure:"oidc"`
	CORS      middleware.CORSOptions        `mapstructure:"cors"`
	Include   []string                      `mapstructure:"include"`
	Exclude   []string                      `mapstructure:"exclude"`
	// Renames maps entity, then relation, to the name the API uses.
	Renames  map[string]map[string]string `mapstructure:"renames"`
	Entities map[string]EntityConfig      `mapstructure:"entities"`
	// ShutdownTimeout bounds graceful shutdown of the listeners.
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type EntityConfig struct {
	Methods []string `mapstructure:"methods"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

type EventsConfig struct {
	NATS events.NATSConfig `mapstructure:"nats"`
}

var (
	ErrNoDSN       = errors.New("database.dsn is required")
	ErrAuthBackend = errors.New("rest.authRequiredFor needs rest.basicAuth or rest.oidc")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.schemas", []string{})
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.watch", false)

	v.SetDefault("rest.listenAddr", ":8080")
	v.SetDefault("rest.baseURL", "/api")
	v.SetDefault("rest.maxLimit", 0)
	v.SetDefault("rest.strictFields", false)
	v.SetDefault("rest.openAPI", true)
	v.SetDefault("rest.authRequiredFor", []string{})
	v.SetDefault("rest.oidc.issuer", "")
	v.SetDefault("rest.oidc.clientID", "")
	v.SetDefault("rest.oidc.clientSecret", "")
	v.SetDefault("rest.oidc.cacheTTL", time.Minute)
	v.SetDefault("rest.cors.allowedOrigins", middleware.DefaultCORSOptions().AllowedOrigins)
	v.SetDefault("rest.cors.allowedMethods", middleware.DefaultCORSOptions().AllowedMethods)
	v.SetDefault("rest.cors.allowedHeaders", middleware.DefaultCORSOptions().AllowedHeaders)
	v.SetDefault("rest.cors.exposedHeaders", middleware.DefaultCORSOptions().ExposedHeaders)
	v.SetDefault("rest.shutdownTimeout", 10*time.Second)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("events.nats.servers", []string{})
	v.SetDefault("events.nats.subjectPrefix", "restless")
	v.SetDefault("events.nats.username", "")
	v.SetDefault("events.nats.password", "")
}

// Load reads config from cfgFile, or restless.yaml in $HOME/.config or the
// working directory, then overlays RESTLESS_* variables (e.g.
// RESTLESS_DATABASE_DSN) and the flags of fs that were set.
func Load(cfgFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("restless")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if _, err := store.DialectFor(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return ErrNoDSN
	}
	if len(c.REST.AuthRequiredFor) > 0 && len(c.REST.BasicAuth) == 0 && c.REST.OIDC.Issuer == "" {
		return ErrAuthBackend
	}
	return nil
}

// NewLogger builds a production zap logger at level. "none" returns a no-op
// logger.
func NewLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "none") {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
