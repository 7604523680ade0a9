// Package api exposes the tracker over HTTP: account sessions, job
// mutations, projected job views, analytics and profiles.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobtracker/internal/backend"
	"jobtracker/internal/errors"
	"jobtracker/internal/jobs"
	"jobtracker/internal/profile"
)

type Server struct {
	auth     backend.Auth
	profiles *profile.Service
	stores   *registry
	logger   *zap.Logger
	mux      *http.ServeMux
	unwatch  func()
}

func New(client *backend.Client, profiles *profile.Service, logger *zap.Logger, opts ...jobs.Option) *Server {
	s := &Server{
		auth:     client.Auth,
		profiles: profiles,
		stores:   newRegistry(client.Data, client.Changes, logger, opts...),
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.unwatch = client.Auth.OnAuthStateChange(s.handleAuthEvent)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /pipeline", s.handlePipeline)

	s.mux.HandleFunc("POST /auth/signup", s.handleSignUp)
	s.mux.HandleFunc("POST /auth/signin", s.handleSignIn)
	s.mux.Handle("POST /auth/signout", s.authenticated(s.handleSignOut))
	s.mux.Handle("GET /auth/session", s.authenticated(s.handleSession))

	s.mux.Handle("GET /jobs", s.authenticated(s.handleListJobs))
	s.mux.Handle("POST /jobs", s.authenticated(s.handleAddJob))
	s.mux.Handle("POST /jobs/parse", s.authenticated(s.handleParsePosting))
	s.mux.Handle("GET /jobs/{id}", s.authenticated(s.handleGetJob))
	s.mux.Handle("PUT /jobs/{id}", s.authenticated(s.handleUpdateJob))
	s.mux.Handle("PATCH /jobs/{id}/status", s.authenticated(s.handleSetStatus))
	s.mux.Handle("PATCH /jobs/{id}/rating", s.authenticated(s.handleSetRating))
	s.mux.Handle("DELETE /jobs/{id}", s.authenticated(s.handleRemoveJob))

	s.mux.Handle("GET /analytics", s.authenticated(s.handleAnalytics))

	s.mux.Handle("GET /profile", s.authenticated(s.handleGetProfile))
	s.mux.Handle("PUT /profile", s.authenticated(s.handlePutProfile))
}

func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Close releases every per-user store and stops listening for auth events.
func (s *Server) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
	s.stores.Close()
}

// handleAuthEvent warms a user's store as soon as they sign in.
func (s *Server) handleAuthEvent(ev backend.AuthEvent) {
	if ev.Event != backend.SignedIn || ev.Session == nil {
		return
	}
	userID := ev.Session.UserID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := s.stores.Get(ctx, userID); err != nil {
			s.logger.Warn("Initial job load failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) *backend.Session {
	sess, _ := ctx.Value(sessionKey{}).(*backend.Session)
	return sess
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, r, errors.AuthRequired("missing bearer token"))
			return
		}
		sess, err := s.auth.GetSession(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
