package events

import (
	"context"
	"slices"
	"sync"

	"jobtracker/internal/backend"
)

// Local is an in-process change feed for single-node deployments.
// Delivery is synchronous, in subscription order.
type Local struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(backend.ChangeEvent)
}

func NewLocal() *Local {
	return &Local{subs: map[string]map[int]func(backend.ChangeEvent){}}
}

func (l *Local) NotifyChange(_ context.Context, ev backend.ChangeEvent) error {
	l.mu.Lock()
	ids := make([]int, 0, len(l.subs[ev.OwnerID]))
	for id := range l.subs[ev.OwnerID] {
		ids = append(ids, id)
	}
	fns := make([]func(backend.ChangeEvent), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, l.subs[ev.OwnerID][id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

func (l *Local) SubscribeChanges(ctx context.Context, ownerID string, fn func(backend.ChangeEvent)) (func() error, error) {
	if _, err := Subject(ownerID); err != nil {
		return nil, err
	}

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	if l.subs[ownerID] == nil {
		l.subs[ownerID] = map[int]func(backend.ChangeEvent){}
	}
	l.subs[ownerID][id] = fn
	l.mu.Unlock()

	var once sync.Once
	unsubscribe := func() error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs[ownerID], id)
			if len(l.subs[ownerID]) == 0 {
				delete(l.subs, ownerID)
			}
			l.mu.Unlock()
		})
		return nil
	}
	context.AfterFunc(ctx, func() { _ = unsubscribe() })
	return unsubscribe, nil
}
