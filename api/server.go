package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"staffdesk/api/handlers"
	"staffdesk/config"
	"staffdesk/core/alerts"
	"staffdesk/core/approvals"
	"staffdesk/core/auth"
	"staffdesk/core/portal"
	"staffdesk/core/rbac"
	"staffdesk/core/store"
	"staffdesk/core/utils"
)

// BackgroundWorker runs for the lifetime of the server.
type BackgroundWorker interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

type ServerDeps struct {
	Navigator *portal.Navigator
	Badge     *approvals.Badge
	Sessions  handlers.SessionSource
	Prober    *auth.Prober
	Policy    *rbac.Policy
	Inbox     *alerts.Inbox
	Journal   store.JournalStore
}

type Server struct {
	cfg       *config.AppConfig
	logger    *utils.Logger
	navigator *portal.Navigator
	badge     *approvals.Badge
	sessions  handlers.SessionSource
	prober    *auth.Prober
	policy    *rbac.Policy
	inbox     *alerts.Inbox
	journal   store.JournalStore
	workers   []BackgroundWorker

	router     chi.Router
	httpServer *http.Server
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, workers []BackgroundWorker, logger *utils.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		navigator: deps.Navigator,
		badge:     deps.Badge,
		sessions:  deps.Sessions,
		prober:    deps.Prober,
		policy:    deps.Policy,
		inbox:     deps.Inbox,
		journal:   deps.Journal,
		workers:   workers,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the background workers and serves until ctx is cancelled, then
// shuts everything down in reverse order.
func (s *Server) Run(ctx context.Context) error {
	for _, w := range s.workers {
		w.Start(ctx)
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnf("http shutdown: %v", err)
	}
	if err := s.navigator.Close(shutdownCtx); err != nil {
		s.logger.Warnf("navigator close: %v", err)
	}
	for i := len(s.workers) - 1; i >= 0; i-- {
		if err := s.workers[i].Stop(shutdownCtx); err != nil {
			s.logger.Warnf("worker stop: %v", err)
		}
	}
	return serveErr
}
