package api

import (
	"context"
	"net/http"
	"time"

	"civiccite/internal/config"
	"civiccite/internal/idempotency"
	"civiccite/internal/logger"
	"civiccite/internal/models"
	"civiccite/internal/policy"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tclient "go.temporal.io/sdk/client"
)

// Answerer runs one query. rag.Engine implements it.
type Answerer interface {
	Answer(ctx context.Context, req models.QueryRequest) (models.Answer, error)
}

type PolicyReloader interface {
	Reload() (*policy.Policy, error)
}

type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the server. Idempotency, Temporal and DB
// may be nil; the routes that need them then report unavailable.
type Deps struct {
	Engine      Answerer
	Policies    PolicyReloader
	Idempotency idempotency.Store
	Temporal    WorkflowStarter
	DB          Pinger
	Log         *logger.Logger
}

type Server struct {
	cfg    config.Config
	deps   Deps
	log    *logger.Logger
	router chi.Router
}

func NewServer(cfg config.Config, deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 14 * time.Second
	}
	s := &Server{cfg: cfg, deps: deps, log: deps.Log}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))

	r.Get("/healthz", s.handleHealthz)
	r.Post("/v1/query", s.handleQuery)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.cfg.AdminToken))
		r.Post("/v1/ingest", s.handleIngest)
		r.Post("/v1/admin/policy/reload", s.handlePolicyReload)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed)
	})
	s.router = r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"ok": true}
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			s.log.Warn("health check database ping failed", "error", err)
			out["ok"] = false
			out["db"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, out)
			return
		}
		out["db"] = "ok"
	}
	writeJSON(w, http.StatusOK, out)
}
