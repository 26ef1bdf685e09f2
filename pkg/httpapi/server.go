package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/platinummonkey/groupaccess/pkg/access"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/httputil"
	"github.com/platinummonkey/groupaccess/pkg/observability"
	"github.com/platinummonkey/groupaccess/pkg/permissions"
	"github.com/platinummonkey/groupaccess/pkg/queryaccess"
	"github.com/platinummonkey/groupaccess/pkg/relation"
)

// maxBodyBytes bounds request bodies; only entity descriptors are posted
const maxBodyBytes = 64 << 10

// Loader loads the groups and relationships access is checked on
type Loader interface {
	LoadGroup(ctx context.Context, id int64) (*group.Group, error)
	LoadRelationship(ctx context.Context, id int64) (*group.Relationship, error)
	// LoadRolesByUserAndGroup returns the roles an account holds in a group,
	// cached until its membership changes
	LoadRolesByUserAndGroup(ctx context.Context, account group.Account, groupID int64, includeSynchronized bool) ([]*group.GroupRole, error)
}

// Deps are the collaborators of the server
type Deps struct {
	Loader      Loader
	Registry    *relation.Registry
	Calculation permissions.Calculation
	Checker     *permissions.Checker
	Hasher      *permissions.HashGenerator
	Engine      *access.Engine
	Rewriter    *queryaccess.Rewriter
	DB          *gorm.DB

	// RateLimiter throttles each account, or each client address for
	// anonymous requests. Nil disables throttling.
	RateLimiter *httputil.RateLimiter

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Server is the HTTP API
type Server struct {
	deps    Deps
	router  *mux.Router
	handler http.Handler
}

// NewServer creates the API server with its routes and middleware
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
	}
	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware(deps.Logger),
		observability.RecoveryMiddleware(deps.Logger, deps.Metrics),
		observability.HTTPMetricsMiddleware(deps.Metrics, s.routeTemplate),
		httputil.LoggingMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
		accountMiddleware,
		httputil.RateLimitMiddleware(deps.RateLimiter, rateLimitKey),
	)(s.router)
	s.handler = otelhttp.NewHandler(s.handler, "groupaccess")
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/permissions", s.getPermissions).Methods(http.MethodGet)
	v1.HandleFunc("/permissions/hash", s.getPermissionHash).Methods(http.MethodGet)

	v1.HandleFunc("/groups", s.listGroups).Methods(http.MethodGet)
	v1.HandleFunc("/groups/{id}/permissions", s.checkGroupPermissions).Methods(http.MethodGet)
	v1.HandleFunc("/groups/{id}/membership", s.checkMembership).Methods(http.MethodGet)
	v1.HandleFunc("/groups/{id}/access/{operation}", s.groupAccess).Methods(http.MethodGet)
	v1.HandleFunc("/groups/{id}/plugins/{plugin}/access/create-relationship", s.relationshipCreateAccess).Methods(http.MethodGet)
	v1.HandleFunc("/groups/{id}/plugins/{plugin}/access/create-entity", s.entityCreateAccess).Methods(http.MethodGet)

	v1.HandleFunc("/relationships", s.listRelationships).Methods(http.MethodGet)
	v1.HandleFunc("/relationships/{id}/access/{operation}", s.relationshipAccess).Methods(http.MethodGet)

	v1.HandleFunc("/entities/access", s.entityAccess).Methods(http.MethodPost)
	v1.HandleFunc("/entities/{entity_type}", s.listEntities).Methods(http.MethodGet)
}

// Router exposes the router so health and metrics routes can share it
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routeTemplate labels metrics by route so IDs do not explode cardinality
func (s *Server) routeTemplate(r *http.Request) string {
	var match mux.RouteMatch
	if s.router.Match(r, &match) && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
