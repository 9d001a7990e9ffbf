package restless

import (
	"context"
	"fmt"
	"net/http"

	"github.com/edgeflare/restless/pkg/config"
	"github.com/edgeflare/restless/pkg/events"
	"github.com/edgeflare/restless/pkg/httputil"
	"github.com/edgeflare/restless/pkg/httputil/middleware"
	"github.com/edgeflare/restless/pkg/rest"
	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/store"
	"go.uber.org/zap"
)

// openRegistry connects to the database and reflects its entities.
func openRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.DB, *schema.Registry, error) {
	db, err := store.Open(ctx, cfg.Database.Config)
	if err != nil {
		return nil, nil, err
	}

	load := schema.SQLite(db.DB)
	if db.Dialect == store.Postgres {
		load = schema.Postgres(db.DB, cfg.Database.Schemas...)
	}
	registry := schema.NewRegistry(load, schema.Options{
		Schemas: cfg.Database.Schemas,
		Include: cfg.REST.Include,
		Exclude: cfg.REST.Exclude,
		Renames: cfg.REST.Renames,
		Logger:  logger,
	})
	if err := registry.Load(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, registry, nil
}

// app is a configured API: the database, its registry and the HTTP handler
// serving it.
type app struct {
	db        *store.DB
	registry  *schema.Registry
	api       *rest.Server
	handler   http.Handler
	publisher events.Publisher
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, registry, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{db: db, registry: registry, publisher: events.Nop{}}
	if len(cfg.Events.NATS.Servers) > 0 {
		pub, err := events.NewNATS(cfg.Events.NATS)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.publisher = pub
	}

	opts := []rest.Option{
		rest.WithBaseURL(cfg.REST.BaseURL),
		rest.WithMaxLimit(cfg.REST.MaxLimit),
		rest.WithStrictFields(cfg.REST.StrictFields),
		rest.WithLogger(logger),
		rest.WithPublisher(a.publisher),
	}
	if cfg.REST.OpenAPI {
		opts = append(opts, rest.WithOpenAPI(schema.OpenAPIInfo{Title: "restless", Version: config.Version}))
	}
	if len(cfg.REST.AuthRequiredFor) > 0 {
		opts = append(opts, rest.WithAuth(middleware.Authenticated, cfg.REST.AuthRequiredFor...))
	}
	for name, ec := range cfg.REST.Entities {
		if len(ec.Methods) > 0 {
			opts = append(opts, rest.WithMethods(name, ec.Methods...))
		}
	}

	if a.api, err = rest.NewServer(db.DB, store.New(db.Dialect), registry, opts...); err != nil {
		a.Close()
		return nil, err
	}

	r := httputil.NewRouter()
	r.Use(middleware.RequestID, middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: logger}))
	if len(cfg.REST.BasicAuth) > 0 {
		r.Use(middleware.VerifyBasicAuth(middleware.BasicAuthCreds(cfg.REST.BasicAuth), false))
	}
	if cfg.REST.OIDC.Issuer != "" {
		provider, err := middleware.NewOIDCProvider(ctx, cfg.REST.OIDC)
		if err != nil {
			a.Close()
			return nil, err
		}
		r.Use(middleware.VerifyOIDCToken(provider, false))
	}

	r.HandleFunc("GET /healthz", a.health)
	a.api.Register(r)
	a.handler = middleware.CORSWithOptions(&cfg.REST.CORS)(r)
	return a, nil
}

func (a *app) health(w http.ResponseWriter, r *http.Request) {
	if err := a.db.PingContext(r.Context()); err != nil {
		httputil.Error(w, http.StatusServiceUnavailable, fmt.Sprintf("database: %v", err))
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"status": "ok", "entities": len(a.registry.Names())})
}

func (a *app) Close() error {
	err := a.publisher.Close()
	if cerr := a.db.Close(); err == nil {
		err = cerr
	}
	return err
}
