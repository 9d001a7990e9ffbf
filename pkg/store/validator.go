package store

import (
	"context"

	"github.com/edgeflare/restless/pkg/schema"
)

type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

// Validator checks values before they are written. Returning a
// *ValidationError reports per-field problems to the client; any other error
// aborts the request as an internal error.
type Validator interface {
	Validate(ctx context.Context, entity *schema.Entity, op Operation, values map[string]any) error
}

type ValidatorFunc func(ctx context.Context, entity *schema.Entity, op Operation, values map[string]any) error

func (f ValidatorFunc) Validate(ctx context.Context, entity *schema.Entity, op Operation, values map[string]any) error {
	return f(ctx, entity, op, values)
}
