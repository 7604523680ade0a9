package api

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"jobtracker/internal/backend"
	"jobtracker/internal/jobs"
)

type userStore struct {
	store  *jobs.Store
	stop   func() error
	loaded atomic.Bool
}

// registry keeps one job store per signed-in user, each subscribed to that
// user's change feed.
type registry struct {
	data   backend.DataStore
	feed   backend.ChangeFeed
	logger *zap.Logger
	opts   []jobs.Option

	mu     sync.Mutex
	stores map[string]*userStore
}

func newRegistry(data backend.DataStore, feed backend.ChangeFeed, logger *zap.Logger, opts ...jobs.Option) *registry {
	return &registry{
		data:   data,
		feed:   feed,
		logger: logger,
		opts:   append([]jobs.Option{jobs.WithLogger(logger)}, opts...),
		stores: map[string]*userStore{},
	}
}

// Get returns the user's store, loading it on first use. A failed first load
// is retried on the next call.
func (r *registry) Get(ctx context.Context, userID string) (*jobs.Store, error) {
	r.mu.Lock()
	us, ok := r.stores[userID]
	if !ok {
		us = &userStore{store: jobs.New(r.data, r.opts...)}
		us.store.SetUser(userID)
		if r.feed != nil {
			stop, err := us.store.Watch(context.Background(), r.feed)
			if err != nil {
				r.logger.Warn("Change feed unavailable", zap.String("user_id", userID), zap.Error(err))
			}
			us.stop = stop
		}
		r.stores[userID] = us
	}
	r.mu.Unlock()

	if !us.loaded.Load() {
		if err := us.store.Load(ctx); err != nil {
			return us.store, err
		}
		us.loaded.Store(true)
	}
	return us.store, nil
}

// Release drops the user's store and its feed subscription.
func (r *registry) Release(userID string) {
	r.mu.Lock()
	us, ok := r.stores[userID]
	delete(r.stores, userID)
	r.mu.Unlock()

	if !ok {
		return
	}
	us.store.SetUser("")
	if us.stop != nil {
		if err := us.stop(); err != nil {
			r.logger.Warn("Failed to stop change feed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (r *registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Release(id)
	}
}
