package restless

import (
	"cmp"
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgeflare/restless/pkg/config"
	"github.com/edgeflare/restless/pkg/metrics"
	"github.com/edgeflare/restless/pkg/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(load loadFunc, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long:  `Starts a REST API server exposing every reflected table under the base URL`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(*logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringP("rest.listenAddr", "l", ":8080", "REST server listen address")
	f.String("rest.baseURL", "/api", "base URL for API endpoints")
	f.Int("rest.maxLimit", 0, "maximum number of objects a search returns, 0 for no limit")
	f.Bool("rest.strictFields", false, "reject request bodies with unknown fields")
	f.StringSlice("rest.authRequiredFor", nil, "HTTP methods that require authentication")
	f.String("rest.oidc.issuer", "", "OIDC issuer URL")
	f.String("rest.oidc.clientID", "", "OIDC client ID")
	f.String("rest.oidc.clientSecret", "", "OIDC client secret")
	f.Bool("metrics.enabled", false, "serve Prometheus metrics")
	f.String("metrics.addr", ":9100", "metrics listen address")
	f.Bool("database.watch", false, "reload the schema on NOTIFY restless, 'reload schema' (postgres)")
	f.StringSlice("events.nats.servers", nil, "NATS servers to publish change events to")
	return cmd
}

// serve runs the API, and the metrics listener and schema watch when
// enabled, until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Database.Watch {
		if a.db.Dialect != store.Postgres {
			logger.Warn("schema watch needs postgres, ignoring database.watch")
		} else if err := a.registry.Watch(ctx, cfg.Database.DSN); err != nil {
			return err
		}
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              cfg.REST.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return egctx
		},
	}

	eg.Go(func() error {
		logger.Info("serving REST API",
			zap.String("addr", cfg.REST.ListenAddr),
			zap.String("baseURL", cfg.REST.BaseURL),
			zap.Strings("entities", a.registry.Names()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cmp.Or(cfg.REST.ShutdownTimeout, 10*time.Second))
		defer cancel()
		logger.Info("shutting down REST API")
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Metrics.Enabled {
		eg.Go(func() error {
			return metrics.Serve(egctx, &metrics.PromServerOpts{
				Addr:   cfg.Metrics.Addr,
				Path:   cfg.Metrics.Path,
				Logger: logger,
			})
		})
	}

	return eg.Wait()
}
