package rest

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/restless/pkg/events"
	"github.com/edgeflare/restless/pkg/httputil"
	"github.com/edgeflare/restless/pkg/httputil/middleware"
	"github.com/edgeflare/restless/pkg/metrics"
	"github.com/edgeflare/restless/pkg/relation"
	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/store"
	"go.uber.org/zap"
)

const DefaultBaseURL = "/api"

// AuthFunc decides whether the request carried by ctx may proceed.
type AuthFunc func(ctx context.Context) bool

type Option func(*Server)

// WithBaseURL mounts every route under baseURL. Defaults to /api.
func WithBaseURL(baseURL string) Option {
	return func(s *Server) { s.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithAuth requires fn to approve every request whose method is listed.
func WithAuth(fn AuthFunc, methods ...string) Option {
	return func(s *Server) {
		s.authFunc = fn
		for _, m := range methods {
			s.authRequiredFor = append(s.authRequiredFor, strings.ToUpper(strings.TrimSpace(m)))
		}
	}
}

// WithStrictFields rejects request bodies naming unknown fields instead of
// dropping those keys.
func WithStrictFields(strict bool) Option {
	return func(s *Server) { s.strictFields = strict }
}

// WithMaxLimit caps the number of objects a search returns.
func WithMaxLimit(n int) Option {
	return func(s *Server) { s.maxLimit = n }
}

// WithMethods restricts the methods an entity accepts.
func WithMethods(entity string, methods ...string) Option {
	return func(s *Server) {
		allowed := make([]string, len(methods))
		for i, m := range methods {
			allowed[i] = strings.ToUpper(strings.TrimSpace(m))
		}
		s.methods[entity] = allowed
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPublisher sends an event for every committed write.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithOpenAPI serves the registry as an OpenAPI document at /openapi.json.
func WithOpenAPI(info schema.OpenAPIInfo) Option {
	return func(s *Server) { s.openapi = &info }
}

// Server exposes every entity of a registry over HTTP. Each request runs in
// its own transaction.
type Server struct {
	db       *sql.DB
	st       *store.Store
	registry *schema.Registry
	mutator  *relation.Mutator

	baseURL         string
	authFunc        AuthFunc
	authRequiredFor []string
	strictFields    bool
	maxLimit        int
	methods         map[string][]string
	logger          *zap.Logger
	publisher       events.Publisher
	openapi         *schema.OpenAPIInfo
}

var ErrAuthFuncRequired = errors.New("an AuthFunc is required when methods require authentication")

func NewServer(db *sql.DB, st *store.Store, registry *schema.Registry, opts ...Option) (*Server, error) {
	s := &Server{
		db:        db,
		st:        st,
		registry:  registry,
		mutator:   relation.New(st, registry),
		baseURL:   DefaultBaseURL,
		methods:   make(map[string][]string),
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if len(s.authRequiredFor) > 0 && s.authFunc == nil {
		return nil, ErrAuthFuncRequired
	}
	return s, nil
}

// Register adds the API routes to r under the base URL.
func (s *Server) Register(r *httputil.Router) {
	g := r.Group(s.baseURL)

	g.Handle("GET /schema", s.guard(s.registry))
	if s.openapi != nil {
		doc := schema.NewOpenAPI(s.registry, s.baseURL, *s.openapi).WithSecurity(len(s.authRequiredFor) > 0)
		g.Handle("GET /openapi.json", s.guard(doc))
	}

	// an unknown entity has nothing to evaluate rather than not existing
	g.HandleFunc("GET /eval/{entity}", s.instrument(s.handleEval, true))
	g.HandleFunc("GET /{entity}", s.instrument(s.handleSearch, false))
	g.HandleFunc("GET /{entity}/{id}", s.instrument(s.handleGet, false))
	g.HandleFunc("POST /{entity}", s.instrument(s.handlePost, false))
	g.HandleFunc("PATCH /{entity}", s.instrument(s.handlePatchMany, false))
	g.HandleFunc("PUT /{entity}", s.instrument(s.handlePatchMany, false))
	g.HandleFunc("PATCH /{entity}/{id}", s.instrument(s.handlePatch, false))
	g.HandleFunc("PUT /{entity}/{id}", s.instrument(s.handlePatch, false))
	g.HandleFunc("DELETE /{entity}/{id}", s.instrument(s.handleDelete, false))
}

// Handler returns a standalone handler serving the API routes.
func (s *Server) Handler() http.Handler {
	r := httputil.NewRouter()
	s.Register(r)
	return r
}

func (s *Server) authorized(r *http.Request) bool {
	if !slices.Contains(s.authRequiredFor, r.Method) {
		return true
	}
	return s.authFunc(r.Context())
}

// guard applies the authentication gate to a handler without an entity.
func (s *Server) guard(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			httputil.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h.ServeHTTP(w, r)
	})
}

// entityHandler handles a request for a resolved, authorized entity.
type entityHandler func(w http.ResponseWriter, r *http.Request, e *schema.Entity)

// instrument checks authentication, resolves the entity, enforces the
// per-entity method list and records request metrics. Unknown entities get a
// 404 unless optional is set, in which case h sees a nil entity.
func (s *Server) instrument(h entityHandler, optional bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("entity")
		rec := middleware.NewResponseRecorder(w)
		start := time.Now()
		defer func() {
			metrics.Requests.WithLabelValues(name, r.Method, strconv.Itoa(rec.StatusCode)).Inc()
			metrics.RequestDuration.WithLabelValues(name, r.Method).Observe(time.Since(start).Seconds())
		}()

		if !s.authorized(r) {
			httputil.Error(rec, http.StatusUnauthorized, "Unauthorized")
			return
		}

		e, ok := s.registry.Lookup(name)
		switch {
		case !ok && optional:
			h(rec, r, nil)
			return
		case !ok:
			httputil.Error(rec, http.StatusNotFound, "No such entity "+strconv.Quote(name))
			return
		}
		if allowed, ok := s.methods[e.Name]; ok && !slices.Contains(allowed, r.Method) &&
			!(r.Method == http.MethodPut && slices.Contains(allowed, http.MethodPatch)) {
			rec.Header().Set("Allow", strings.Join(allowed, ", "))
			httputil.Error(rec, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(rec, r, e)
	}
}

// tx runs fn in a request transaction, retrying serialization failures.
func (s *Server) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return store.WithTx(ctx, s.db, s.st.Dialect(), fn)
}

// publishing reports whether events go anywhere.
func (s *Server) publishing() bool {
	_, nop := s.publisher.(events.Nop)
	return !nop
}

// publish sends ev after commit. Failures are logged, never returned.
func (s *Server) publish(r *http.Request, ev events.Event) {
	ev.RequestID = httputil.RequestID(r)
	ev.Time = time.Now().UTC()
	if err := s.publisher.Publish(r.Context(), ev); err != nil {
		metrics.PublishErrors.WithLabelValues(ev.Entity).Inc()
		s.logger.Warn("publish event",
			zap.String("req_id", ev.RequestID),
			zap.String("entity", ev.Entity),
			zap.Error(err))
	}
}

// Close releases the event publisher.
func (s *Server) Close() error {
	return s.publisher.Close()
}
