package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/edgeflare/restless/pkg/httputil"
)

// BasicAuthConfig holds the username-password pairs for basic authentication.
type BasicAuthConfig struct {
	Credentials map[string]string
}

// BasicAuthCreds creates a BasicAuthConfig with multiple username/password pairs.
func BasicAuthCreds(credentials map[string]string) *BasicAuthConfig {
	return &BasicAuthConfig{
		Credentials: credentials,
	}
}

func (c *BasicAuthConfig) valid(username, password string) bool {
	want, ok := c.Credentials[username]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}

// VerifyBasicAuth authenticates requests with HTTP basic credentials. By
// default a missing or wrong header is answered with 401. With
// send401Unauthorized set to false such requests continue unauthenticated,
// leaving the decision to the handler, e.g. through BasicAuthenticated.
func VerifyBasicAuth(config *BasicAuthConfig, send401Unauthorized ...bool) func(http.Handler) http.Handler {
	send401 := true
	if len(send401Unauthorized) > 0 {
		send401 = send401Unauthorized[0]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fail := func(msg string) {
				if !send401 {
					next.ServeHTTP(w, r)
					return
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
				http.Error(w, msg, http.StatusUnauthorized)
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				fail("Authorization header missing")
				return
			}
			if !strings.HasPrefix(authHeader, "Basic ") {
				fail("Invalid authorization format")
				return
			}

			credentials, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic "))
			if err != nil {
				fail("Invalid base64 encoding")
				return
			}
			username, password, ok := strings.Cut(string(credentials), ":")
			if !ok {
				fail("Invalid credentials format")
				return
			}
			if !config.valid(username, password) {
				fail("Invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), httputil.BasicAuthCtxKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BasicAuthenticated reports whether VerifyBasicAuth accepted the request
// carried by ctx. It fits rest.WithAuth.
func BasicAuthenticated(ctx context.Context) bool {
	user, ok := ctx.Value(httputil.BasicAuthCtxKey).(string)
	return ok && user != ""
}
