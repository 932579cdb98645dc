package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/metalblueberry/tuner/config"
	"github.com/metalblueberry/tuner/pkg/logger"
	"github.com/metalblueberry/tuner/pkg/session"
)

type ServerDeps struct {
	DB       *sql.DB
	Sessions *session.Manager
}

type Server struct {
	cfg        *config.AppConfig
	router     *chi.Mux
	httpServer *http.Server
	logger     *logger.Logger
	db         *sql.DB
	sessions   *session.Manager
}

func NewServer(cfg *config.AppConfig, log *logger.Logger, deps ServerDeps) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		logger:   log,
		db:       deps.DB,
		sessions: deps.Sessions,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)

	s.registerObservabilityRoutes()

	s.router.Get("/profiles", s.listProfiles)
	s.router.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/target", s.setTarget)
			r.Post("/mode", s.setMode)
			r.Post("/profile", s.setProfile)
			r.Post("/threshold", s.setThreshold)
			r.Post("/samples", s.pushSample)
			r.Get("/estimate", s.getEstimate)
			r.Get("/history", s.getHistory)
		})
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debugf("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
