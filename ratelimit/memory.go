package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int64
	expires time.Time
}

// MemoryCounter keeps fixed windows in process memory.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	nowFunc func() time.Time
}

type MemoryOption func(*MemoryCounter)

func WithNowFunc(now func() time.Time) MemoryOption {
	return func(m *MemoryCounter) {
		m.nowFunc = now
	}
}

func NewMemoryCounter(options ...MemoryOption) *MemoryCounter {
	m := &MemoryCounter{
		windows: make(map[string]*window),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *MemoryCounter) Incr(_ context.Context, key string, length time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.expires) {
		m.sweep(now)
		w = &window{expires: now.Add(length)}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.expires.Sub(now), nil
}

// sweep drops expired windows. Called with mu held.
func (m *MemoryCounter) sweep(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.expires) {
			delete(m.windows, key)
		}
	}
}

// Len is the number of live windows.
func (m *MemoryCounter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
