package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edgeflare/restless/pkg/httputil"
	"github.com/zitadel/oidc/v3/pkg/client/rs"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"go.uber.org/zap"
)

// OIDCProviderConfig holds the configuration for the OIDC provider
type OIDCProviderConfig struct {
	ClientID     string        `json:"client_id" mapstructure:"clientID"`
	ClientSecret string        `json:"client_secret" mapstructure:"clientSecret"`
	Issuer       string        `json:"issuer" mapstructure:"issuer"`
	CacheTTL     time.Duration `json:"cache_ttl" mapstructure:"cacheTTL"`
}

const defaultIntrospectionTTL = time.Minute

var ErrOIDCConfig = errors.New("oidc: issuer, client id and client secret are required")

type introspectFunc func(ctx context.Context, token string) (*oidc.IntrospectionResponse, error)

// OIDCProvider validates bearer tokens against the issuer's introspection
// endpoint and remembers active tokens for a while.
type OIDCProvider struct {
	introspect introspectFunc
	cache      *Cache[*oidc.IntrospectionResponse]
	ttl        time.Duration
}

// NewOIDCProvider discovers the issuer and authenticates to it with the
// client credentials.
func NewOIDCProvider(ctx context.Context, cfg OIDCProviderConfig) (*OIDCProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.Issuer == "" {
		return nil, ErrOIDCConfig
	}
	server, err := rs.NewResourceServerClientCredentials(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("oidc: create resource server: %w", err)
	}
	return newOIDCProvider(func(ctx context.Context, token string) (*oidc.IntrospectionResponse, error) {
		return rs.Introspect[*oidc.IntrospectionResponse](ctx, server, token)
	}, cfg.CacheTTL), nil
}

func newOIDCProvider(fn introspectFunc, ttl time.Duration) *OIDCProvider {
	if ttl <= 0 {
		ttl = defaultIntrospectionTTL
	}
	return &OIDCProvider{introspect: fn, cache: NewCache[*oidc.IntrospectionResponse](), ttl: ttl}
}

// Introspect returns the introspection of an active token, or an error.
func (p *OIDCProvider) Introspect(ctx context.Context, token string) (*oidc.IntrospectionResponse, error) {
	if user, ok := p.cache.Get(token); ok {
		return user, nil
	}
	user, err := p.introspect(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, errors.New("oidc: token is not active")
	}

	ttl := p.ttl
	if exp := user.Expiration.AsTime(); exp.After(time.Unix(0, 0)) && time.Until(exp) < ttl {
		ttl = time.Until(exp)
	}
	if ttl > 0 {
		p.cache.Set(token, user, ttl)
	}
	return user, nil
}

// VerifyOIDCToken is middleware that verifies OIDC tokens in Authorization headers.
// By default, it sends a 401 Unauthorized response if the token is missing or invalid.
// If send401Unauthorized is false, requests without a bearer token (e.g. using
// Basic Auth) continue without interference.
func VerifyOIDCToken(provider *OIDCProvider, send401Unauthorized ...bool) func(http.Handler) http.Handler {
	send401 := true
	if len(send401Unauthorized) > 0 {
		send401 = send401Unauthorized[0]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if send401 {
					http.Error(w, "Authorization header missing", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, _ := strings.Cut(authHeader, " ")
			if !strings.EqualFold(scheme, "bearer") {
				if send401 {
					http.Error(w, "Invalid token format", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := provider.Introspect(r.Context(), strings.TrimSpace(token))
			if err != nil {
				Logger(r.Context()).Debug("token rejected", zap.Error(err))
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), httputil.OIDCUserCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OIDCAuthenticated reports whether VerifyOIDCToken accepted a bearer token
// for the request carried by ctx. It fits rest.WithAuth.
func OIDCAuthenticated(ctx context.Context) bool {
	user, ok := ctx.Value(httputil.OIDCUserCtxKey).(*oidc.IntrospectionResponse)
	return ok && user != nil && user.Active
}
