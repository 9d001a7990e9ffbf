package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	// PostgREST's notification convention
	// https://docs.postgrest.org/en/stable/references/schema_cache.html
	ReloadChannel = "restless"
	ReloadPayload = "reload schema"
)

// Watch listens on ReloadChannel with a dedicated connection and reloads the
// registry whenever ReloadPayload arrives. It returns once LISTEN succeeded;
// the connection is closed when ctx is done.
func (r *Registry) Watch(ctx context.Context, connString string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ReloadChannel}.Sanitize()); err != nil {
		conn.Close(context.Background())
		return fmt.Errorf("listen: %w", err)
	}

	go r.handleNotifications(ctx, conn)
	return nil
}

func (r *Registry) handleNotifications(ctx context.Context, conn *pgx.Conn) {
	defer conn.Close(context.Background())
	logger := r.opts.Logger

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("schema notification", zap.Error(err))
			return
		}

		if notification.Payload != ReloadPayload {
			continue
		}
		if err := r.Load(ctx); err != nil {
			logger.Error("schema reload", zap.Error(err))
		}
	}
}
