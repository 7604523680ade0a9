// Package auth implements account sign-up, sign-in and bearer sessions.
// Sessions live in a cache keyed by their access token.
package auth

import (
	"context"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"jobtracker/internal/backend"
	"jobtracker/internal/cache"
	"jobtracker/internal/errors"
	"jobtracker/internal/models"
	"jobtracker/internal/telemetry"
)

const (
	MinPasswordLength = 6
	sessionKeyPrefix  = "session:"
	metadataFullName  = "full_name"
)

type UserStore interface {
	CreateUser(ctx context.Context, u models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.User, error)
}

// ProfileWriter receives the initial profile created at sign-up.
type ProfileWriter interface {
	UpsertProfile(ctx context.Context, p models.Profile) (models.Profile, error)
}

var _ backend.Auth = (*Service)(nil)

type Service struct {
	users    UserStore
	profiles ProfileWriter
	sessions cache.Cache
	logger   *zap.Logger
	tracer   trace.Tracer
	ttl      time.Duration
	cost     int
	now      func() time.Time
	newToken func() string

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(backend.AuthEvent)
}

type Option func(*Service)

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func New(users UserStore, profiles ProfileWriter, sessions cache.Cache, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		users:     users,
		profiles:  profiles,
		sessions:  sessions,
		logger:    logger,
		tracer:    telemetry.GetTracer("jobtracker/auth"),
		ttl:       7 * 24 * time.Hour,
		cost:      bcrypt.DefaultCost,
		now:       func() time.Time { return time.Now().UTC() },
		newToken:  uuid.NewString,
		listeners: map[int]func(backend.AuthEvent){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp registers an account, creates its profile from metadata and signs
// the user in.
func (s *Service) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*backend.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SignUp")
	defer span.End()

	email = models.NormalizeEmail(email)
	fields := map[string]string{}
	if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if len(password) < MinPasswordLength {
		fields["password"] = "must be at least 6 characters"
	}
	if len(fields) > 0 {
		return nil, errors.Validation("invalid sign up", fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, errors.Internal("hashing password", err)
	}
	now := s.now()
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(metadata[metadataFullName]),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		span.RecordError(err)
		if errors.Is(err, errors.ErrTypeConflict) {
			return nil, err
		}
		return nil, errors.Write("creating account", err)
	}

	if s.profiles != nil {
		if _, err := s.profiles.UpsertProfile(ctx, models.Profile{UserID: user.ID, FullName: user.FullName}); err != nil {
			s.logger.Warn("Failed to create profile at sign up",
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("User signed up", zap.String("user_id", user.ID))
	return s.startSession(ctx, &user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SignIn")
	defer span.End()

	user, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, errors.ErrTypeNotFound) {
		return nil, errors.Unauthorized("invalid login credentials", nil)
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Fetch("looking up account", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.Unauthorized("invalid login credentials", nil)
	}
	return s.startSession(ctx, user)
}

// GetSession resolves an access token. Unknown or expired tokens are
// rejected as unauthorized.
func (s *Service) GetSession(ctx context.Context, token string) (*backend.Session, error) {
	if token == "" {
		return nil, errors.Unauthorized("missing access token", nil)
	}
	var sess backend.Session
	err := s.sessions.Get(ctx, sessionKeyPrefix+token, &sess)
	if err == cache.ErrNotFound {
		return nil, errors.Unauthorized("session not found or expired", nil)
	}
	if err != nil {
		return nil, errors.Unavailable("reading session", err)
	}
	if sess.Expired(s.now()) {
		_ = s.sessions.Delete(ctx, sessionKeyPrefix+token)
		return nil, errors.Unauthorized("session not found or expired", nil)
	}
	return &sess, nil
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	sess, err := s.GetSession(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionKeyPrefix+token); err != nil {
		return errors.Unavailable("deleting session", err)
	}
	s.logger.Info("User signed out", zap.String("user_id", sess.UserID))
	s.emit(backend.AuthEvent{Event: backend.SignedOut})
	return nil
}

// OnAuthStateChange registers fn for sign-in and sign-out events.
func (s *Service) OnAuthStateChange(fn func(backend.AuthEvent)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) startSession(ctx context.Context, user *models.User) (*backend.Session, error) {
	sess := &backend.Session{
		AccessToken: s.newToken(),
		UserID:      user.ID,
		Email:       user.Email,
		FullName:    user.FullName,
		ExpiresAt:   s.now().Add(s.ttl),
	}
	if err := s.sessions.Set(ctx, sessionKeyPrefix+sess.AccessToken, sess, s.ttl); err != nil {
		return nil, errors.Unavailable("storing session", err)
	}
	s.emit(backend.AuthEvent{Event: backend.SignedIn, Session: sess})
	return sess, nil
}

func (s *Service) emit(ev backend.AuthEvent) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(backend.AuthEvent), len(ids))
	for i, id := range ids {
		fns[i] = s.listeners[id]
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
