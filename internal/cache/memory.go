package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	data    []byte
	expires time.Time
}

// Memory is an in-process Cache used when no Redis address is configured.
type Memory struct {
	mu     sync.Mutex
	items  map[string]memoryItem
	ttl    time.Duration
	now    func() time.Time
	closed bool
}

func NewMemory(opts Options) *Memory {
	ttl := opts.DefaultTTL
	if ttl == 0 {
		ttl = DefaultOptions().DefaultTTL
	}
	return &Memory{
		items: map[string]memoryItem{},
		ttl:   ttl,
		now:   time.Now,
	}
}

func (m *Memory) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	data, err := Encode(value)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = m.ttl
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.items[key] = memoryItem{data: data, expires: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, key string, value interface{}) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	item, ok := m.items[key]
	if ok && !m.now().Before(item.expires) {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return Decode(item.data, value)
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.items, key)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
	return nil
}
