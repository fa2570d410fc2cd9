package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	api "github.com/storyworks/analyzerd/api/v1"
	"github.com/storyworks/analyzerd/internal/artifact"
	"github.com/storyworks/analyzerd/internal/auth"
	"github.com/storyworks/analyzerd/internal/config"
	"github.com/storyworks/analyzerd/internal/jobmanager"
	"github.com/storyworks/analyzerd/internal/log"
	"github.com/storyworks/analyzerd/internal/runner"
	"github.com/storyworks/analyzerd/internal/tlsconfig"
	"github.com/storyworks/analyzerd/internal/worker"
)

// shutdownTimeout bounds how long in-flight requests may take to drain
// once the daemon receives a termination signal.
const shutdownTimeout = 30 * time.Second

type server struct {
	manager *jobmanager.Manager
	logger  *slog.Logger
	tokens  map[string]auth.Role
}

func newServer(
	manager *jobmanager.Manager,
	logger *slog.Logger,
	tokens map[string]auth.Role,
) *server {
	return &server{manager: manager, logger: logger, tokens: tokens}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := log.New(cfg.Debug)

	tokens, err := auth.ParseTokens(cfg.AuthTokens)
	if err != nil {
		return err
	}

	manager := jobmanager.NewManager(
		runner.ExecRunner{},
		artifact.NewCache(cfg.CacheDir),
		logger,
		jobmanager.Config{
			WorkerBin:   cfg.WorkerBin,
			WorkDir:     cfg.WorkDir,
			ArtifactDir: cfg.ArtifactDir,
			Env:         worker.Environ(os.Environ()),
			KillGrace:   cfg.KillGrace,
			Deadlines:   cfg.Deadlines,
		},
	)

	srv := newServer(manager, logger, tokens)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.TLSEnabled() {
		httpServer.TLSConfig, err = tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   cfg.TLSCertPath,
			KeyPath:    cfg.TLSKeyPath,
			CACertPath: cfg.TLSCACertPath,
			Server:     true,
		})
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("listening", "addr", cfg.Addr(), "tls", cfg.TLSEnabled())

		var serveErr error
		if cfg.TLSEnabled() {
			// Cert and key come from TLSConfig.
			serveErr = httpServer.ListenAndServeTLS("", "")
		} else {
			serveErr = httpServer.ListenAndServe()
		}

		if !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}

	manager.Shutdown()

	return nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.requestLogger)

	r.Get("/v1/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authorise)

		r.Post("/v1/analyses", s.handleRunAnalysis)
		r.Get("/v1/analyses/kinds", s.handleKinds)
	})

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleKinds(w http.ResponseWriter, r *http.Request) {
	kinds := make([]api.KindInfo, 0, len(worker.Kinds))
	for _, kind := range worker.Kinds {
		kinds = append(kinds, api.KindInfo{
			Kind:     string(kind),
			Deadline: kind.Deadline().String(),
		})
	}

	s.writeJSON(w, http.StatusOK, kinds)
}

// handleRunAnalysis submits a job and streams its events until the
// terminal result. The response is committed as an SSE stream before the
// first event, so submission errors are the only ones reportable as HTTP
// statuses.
func (s *server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	var req api.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	job, err := s.manager.Submit(r.Context(), jobmanager.Request{
		Subject: req.Subject,
		Kind:    worker.Kind(req.Kind),
		Focus:   req.Focus,
	})
	if err != nil {
		s.mapSubmitError(w, r, err)
		return
	}

	publisher, err := newEventPublisher(w)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "start event stream", "id", job.ID(), "err", err)
		job.Cancel()
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	s.logger.InfoContext(
		r.Context(),
		"analysis submitted",
		"id", job.ID(),
		"subject", req.Subject,
		"kind", req.Kind,
	)

	for ev := range job.Events() {
		if err := publisher.publish(ev); err != nil {
			// Client gone. Tear the job down and drain; the manager emits
			// nothing further once cancellation is observed.
			s.logger.InfoContext(r.Context(), "client disconnected", "id", job.ID())
			job.Cancel()

			for range job.Events() {
			}

			return
		}
	}
}

func (s *server) mapSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jobmanager.ErrEmptySubject):
		s.writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, jobmanager.ErrShuttingDown):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())

	default:
		// Remaining submission failures are bad client input, e.g. an
		// unknown analysis kind.
		s.logger.WarnContext(r.Context(), "submit analysis", "err", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "err", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: msg})
}
