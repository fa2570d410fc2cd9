package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/storyworks/analyzerd/internal/auth"
	"github.com/storyworks/analyzerd/internal/log"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Flush() {
	if flusher, ok := rec.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// requestID tags every request with an id that rides along on all log
// records emitted with the request context.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}

		ctx := log.ContextAttrs(r.Context(), slog.String("request_id", rid))
		w.Header().Set("X-Request-ID", rid)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.InfoContext(
			r.Context(),
			"request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// authorise enforces bearer-token auth when a token table is configured.
// An empty table means auth is disabled, e.g. behind a trusted proxy.
func (s *server) authorise(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.tokens) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		role, err := auth.RoleForToken(s.tokens, r.Header.Get("Authorization"))
		if err != nil {
			s.logger.WarnContext(r.Context(), "authenticate client", "err", err)
			s.writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		endpoint := r.Method + " " + r.URL.Path
		if err := auth.IsAuthorised(role, endpoint); err != nil {
			s.logger.WarnContext(
				r.Context(),
				"authorise client",
				"role", role,
				"endpoint", endpoint,
				"err", err,
			)
			s.writeError(w, http.StatusForbidden, "not authorised")
			return
		}

		s.logger.DebugContext(
			r.Context(),
			"authorised client request",
			"role", role,
			"endpoint", endpoint,
		)

		next.ServeHTTP(w, r)
	})
}
