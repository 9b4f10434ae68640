package limiters

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count   int
	expires time.Time
}

// Memory counts failed logins in process memory.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	window  time.Duration
	now     func() time.Time
}

// NewMemory returns an in-memory counter. window of zero keeps counters until Reset.
func NewMemory(window time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		window:  window,
		now:     time.Now,
	}
}

// WithClock replaces the time source used for window expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	if now != nil {
		m.now = now
	}
	return m
}

// live returns the entry for login, dropping it when its window has passed.
// The caller holds m.mu.
func (m *Memory) live(login string) memoryEntry {
	e, ok := m.entries[login]
	if !ok {
		return memoryEntry{}
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, login)
		return memoryEntry{}
	}
	return e
}

func (m *Memory) Increment(ctx context.Context, login string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if login == "" {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(login)
	e.count++
	if e.count == 1 && m.window > 0 {
		e.expires = m.now().Add(m.window)
	}
	m.entries[login] = e
	return e.count, nil
}

func (m *Memory) Count(ctx context.Context, login string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(login).count, nil
}

func (m *Memory) Reset(ctx context.Context, login string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, login)
	return nil
}
