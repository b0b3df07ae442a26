// Package activity tracks when users were last seen and decides when an idle
// process should shut itself down.
package activity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aman-churiwal/governance-api/internal/cache"
	"k8s.io/utils/clock"
)

// presenceRefresh bounds how often one user's presence key is rewritten.
const presenceRefresh = time.Minute

// Tracker maps user ids to their last activity. Entries have no TTL; they
// are queried with a window and removed on logout.
type Tracker struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time
	clock    clock.PassiveClock
	presence *cache.Cache
	wg       sync.WaitGroup
}

type TrackerOption func(*Tracker)

// WithPresence mirrors presence:{user_id} into c so other instances can see
// who is online. Writes happen off the request path.
func WithPresence(c *cache.Cache) TrackerOption {
	return func(t *Tracker) { t.presence = c }
}

func NewTracker(clk clock.PassiveClock, opts ...TrackerOption) *Tracker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	t := &Tracker{
		lastSeen: make(map[string]time.Time),
		clock:    clk,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) RecordActivity(userID string) {
	if userID == "" {
		return
	}
	now := t.clock.Now()

	t.mu.Lock()
	prev, seen := t.lastSeen[userID]
	t.lastSeen[userID] = now
	t.mu.Unlock()

	if t.presence != nil && (!seen || now.Sub(prev) >= presenceRefresh) {
		t.async(func(ctx context.Context) {
			t.presence.Set(ctx, cache.PresenceKey(userID), now.Unix(), cache.TTLPresence)
		})
	}
}

func (t *Tracker) LastActivity(userID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ts, ok := t.lastSeen[userID]
	return ts, ok
}

// Forget drops a user's record, e.g. on logout.
func (t *Tracker) Forget(userID string) {
	t.mu.Lock()
	delete(t.lastSeen, userID)
	t.mu.Unlock()

	if t.presence != nil {
		t.async(func(ctx context.Context) {
			t.presence.Delete(ctx, cache.PresenceKey(userID))
		})
	}
}

// HasRecentActivity reports whether any user was seen within window of now.
func (t *Tracker) HasRecentActivity(window time.Duration) bool {
	cutoff := t.clock.Now().Add(-window)

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, ts := range t.lastSeen {
		if !ts.Before(cutoff) {
			return true
		}
	}
	return false
}

// ActiveUsers lists users seen within window of now, sorted.
func (t *Tracker) ActiveUsers(window time.Duration) []string {
	cutoff := t.clock.Now().Add(-window)

	t.mu.RLock()
	users := make([]string, 0, len(t.lastSeen))
	for id, ts := range t.lastSeen {
		if !ts.Before(cutoff) {
			users = append(users, id)
		}
	}
	t.mu.RUnlock()

	sort.Strings(users)
	return users
}

// Wait blocks until pending presence writes finish.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) async(fn func(ctx context.Context)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn(context.Background())
	}()
}
