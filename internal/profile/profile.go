// Package profile reads and writes user profiles through a read-through
// cache.
package profile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jobtracker/internal/cache"
	"jobtracker/internal/errors"
	"jobtracker/internal/models"
)

type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, p models.Profile) (models.Profile, error)
}

type Service struct {
	store  Store
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewService(store Store, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{store: store, cache: c, ttl: ttl, logger: logger}
}

func cacheKey(userID string) string {
	return "profile:" + userID
}

// Get returns the user's profile, or nil when none has been saved.
func (s *Service) Get(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, errors.AuthRequired("user not authenticated")
	}

	var cached models.Profile
	switch err := s.cache.Get(ctx, cacheKey(userID), &cached); err {
	case nil:
		return &cached, nil
	case cache.ErrNotFound:
	default:
		s.logger.Warn("Profile cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, errors.Fetch("failed to load profile", err)
	}
	if p == nil {
		return nil, nil
	}
	s.remember(ctx, *p)
	return p, nil
}

// Upsert validates and saves the profile keyed by its user id.
func (s *Service) Upsert(ctx context.Context, p models.Profile) (models.Profile, error) {
	if p.UserID == "" {
		return models.Profile{}, errors.AuthRequired("user not authenticated")
	}
	if err := p.Validate(); err != nil {
		return models.Profile{}, err
	}

	saved, err := s.store.UpsertProfile(ctx, p)
	if err != nil {
		_ = s.cache.Delete(ctx, cacheKey(p.UserID))
		return models.Profile{}, errors.Write("failed to update profile", err)
	}
	s.remember(ctx, saved)
	s.logger.Info("Profile saved", zap.String("user_id", saved.UserID))
	return saved, nil
}

// UpsertProfile lets the service stand in wherever a raw profile writer is
// expected, such as account sign-up.
func (s *Service) UpsertProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	return s.Upsert(ctx, p)
}

func (s *Service) remember(ctx context.Context, p models.Profile) {
	if err := s.cache.Set(ctx, cacheKey(p.UserID), p, s.ttl); err != nil {
		s.logger.Warn("Profile cache write failed", zap.String("user_id", p.UserID), zap.Error(err))
	}
}
