package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/config"
	"teamchat-upgrade/internal/infra/notify"
	"teamchat-upgrade/internal/usecase"
)

// NoticeFeed hands queued toasts to the client.
type NoticeFeed interface {
	Drain(userID string) []notify.Notice
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Plans      usecase.PlanUseCase
	Upgrades   usecase.UpgradeUseCase
	Credits    usecase.CreditUseCase
	Users      usecase.UserUseCase
	Workspaces usecase.WorkspaceUseCase
	Notices    NoticeFeed
	Auth       *AuthManager
	Health     map[string]HealthCheck
	Logger     *zerolog.Logger
}

type Server struct {
	d      Deps
	log    *zerolog.Logger
	router *chi.Mux
}

func NewServer(d Deps) *Server {
	l := d.Logger.With().Str("component", "http").Logger()
	s := &Server{d: d, log: &l}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID, RequestLog(s.log), Recover(s.log), Timeout(awaitLimit+5*time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", s.handleListPlans)

		r.Group(func(protected chi.Router) {
			protected.Use(s.d.Auth.Require)
			protected.Get("/payments/limits", s.handleLimits)
			protected.Get("/me", s.handleMe)
			protected.Get("/notifications", s.handleNotifications)

			protected.Route("/upgrade", func(r chi.Router) {
				r.Post("/", s.handleUpgradeStart)
				r.Post("/{id}/submit", s.handleUpgradeSubmit)
				r.Get("/{id}", s.handleUpgradeGet)
				r.Delete("/{id}", s.handleUpgradeCancel)
			})
			protected.Route("/credits", func(r chi.Router) {
				r.Get("/", s.handleCredits)
				r.Post("/consume", s.handleConsume)
			})
			protected.Route("/workspaces", func(r chi.Router) {
				r.Get("/", s.handleListWorkspaces)
				r.Post("/join", s.handleJoinWorkspace)
				r.Get("/{id}", s.handleGetWorkspace)
			})
		})
	})
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, cfg config.HTTPConfig) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", cfg.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.log.Info().Msg("http server shutting down")
	return srv.Shutdown(sctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.d.Health))
	status := http.StatusOK
	for name, check := range s.d.Health {
		if err := check(ctx); err != nil {
			s.log.Warn().Err(err).Str("check", name).Msg("health check failed")
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": checks,
	})
}
