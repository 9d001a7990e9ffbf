// Package middleware holds the HTTP middleware the API server is assembled
// from: request ids, access logging, CORS, and basic or OIDC authentication.
package middleware

import (
	"context"
	"net/http"

	"github.com/edgeflare/restless/pkg/httputil"
)

// Chain applies one or more middleware functions to a handler in the order they were provided.
// The first middleware in the list will be the outermost wrapper (executed first).
func Chain(h http.Handler, middlewares ...httputil.Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Authenticated reports whether either basic auth or an OIDC token
// authenticated the request carried by ctx.
func Authenticated(ctx context.Context) bool {
	return BasicAuthenticated(ctx) || OIDCAuthenticated(ctx)
}
