// Package api carries the HTTP surface of the gestor edge: health
// probes, the login endpoints, and the dashboard's JSON API. Identity is
// asserted by the edge filter before any handler here runs; handlers
// trust the X-User-* headers it injects.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/nortesoft/gestor/internal/gestor/edge"
	"github.com/nortesoft/gestor/pkg/httpx"
	"github.com/nortesoft/gestor/pkg/session"
	"github.com/nortesoft/gestor/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	mux *chi.Mux

	sessions     *session.Controller
	validate     *validator.Validate
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	readiness    []ReadinessCheck
}

// ReadinessCheck names a dependency and probes it.
type ReadinessCheck struct {
	Name  string
	Probe func() error
}

type Options struct {
	Sessions       *session.Controller
	BuildVersion   string
	Logger         *slog.Logger
	AllowedOrigins []string
	Readiness      []ReadinessCheck
}

func NewRouter(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		mux:          chi.NewRouter(),
		sessions:     opts.Sessions,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		buildVersion: opts.BuildVersion,
		startTime:    time.Now(),
		logger:       logger,
		readiness:    opts.Readiness,
	}

	r.mux.Use(slogx.HTTPMiddleware(logger))
	r.mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", edge.IdentityHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.mux.Use(edge.Filter(edge.Options{}))

	r.applyRoutes()
	return r
}

func (r *Router) applyRoutes() {
	r.mux.Get("/livez", r.handleLivez)
	r.mux.Get("/readyz", r.handleReadyz)

	r.mux.Route("/auth", func(auth chi.Router) {
		auth.Use(httpx.RateLimitByIP(httpx.AuthLimit))
		auth.Get("/signin", r.handleSigninPage)
		auth.Post("/signin", r.handleSignin)
		auth.Post("/signout", r.handleSignout)
	})

	r.mux.Route("/api", func(api chi.Router) {
		api.Get("/perfil", r.handlePerfil)
		api.Get("/usuarios", r.handleUsuarios)
		api.Get("/admin/resumen", r.handleResumen)
	})
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
