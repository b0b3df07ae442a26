package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"k8s.io/utils/clock"
)

// MemoryBackend is the process-local fallback. Entries are invisible to other
// instances. Expired entries are never returned; the janitor only reclaims memory.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   clock.PassiveClock
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func NewMemoryBackend(clk clock.PassiveClock) *MemoryBackend {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		clock:   clk,
	}
}

func (m *MemoryBackend) Name() string { return string(ModeMemory) }

func (m *MemoryBackend) Ping(context.Context) error { return nil }

// lookup returns the live entry for key, dropping it if it has expired.
// Must be called with mu held.
func (m *MemoryBackend) lookup(key string, now time.Time) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(now) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryBackend) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.clock.Now().Add(ttl)
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key, m.clock.Now())
	return e.value, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: m.expiry(ttl)}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Clear uses the same glob dialect as redis SCAN MATCH for the patterns the
// service issues ("search:*", "user:42:*").
func (m *MemoryBackend) Clear(_ context.Context, pattern string) (int, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for k, e := range m.entries {
		if !g.Match(k) {
			continue
		}
		delete(m.entries, k)
		if !e.expired(now) {
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(key, m.clock.Now())
	return ok, nil
}

// Increment keeps the existing expiry, matching INCRBY.
func (m *MemoryBackend) Increment(_ context.Context, key string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key, m.clock.Now())
	var current int64
	if ok {
		n, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		current = n
	}

	current += amount
	e.value = strconv.FormatInt(current, 10)
	m.entries[key] = e
	return current, nil
}

// Expire with a non-positive ttl deletes the key, as redis does.
func (m *MemoryBackend) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key, m.clock.Now())
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(m.entries, key)
		return nil
	}
	e.expiresAt = m.expiry(ttl)
	m.entries[key] = e
	return nil
}

// Purge drops every expired entry and returns how many were removed.
func (m *MemoryBackend) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Len counts stored entries, expired ones included until purged.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// StartJanitor purges expired entries every interval until ctx is done.
func (m *MemoryBackend) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Purge()
			}
		}
	}()
}
