// Package interview holds the in-flight interview state while onboarding is
// still in progress: the chat history and the working user profile being
// extracted from it. State lives in a transient TTL cache, never on disk —
// the session document only receives the profile once onboarding completes.
package interview

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/tomorrowyou/selftree/pkg/llm"
	"github.com/tomorrowyou/selftree/pkg/types"
)

// State is the transient interview state for one session.
type State struct {
	SessionID string
	History   []llm.Message
	Profile   *types.UserProfile
	StartedAt time.Time
}

// Cache is a session-keyed transient store for interview state. Entries
// expire after the configured TTL; an expired interview simply starts over.
type Cache struct {
	inner *ristretto.Cache
	ttl   time.Duration
}

// NewCache creates an interview cache with the given entry TTL.
func NewCache(ttl time.Duration) (*Cache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("interview: create cache: %w", err)
	}
	return &Cache{inner: inner, ttl: ttl}, nil
}

// Create starts a new interview for a session, replacing any existing state.
func (c *Cache) Create(sessionID string) *State {
	state := &State{
		SessionID: sessionID,
		StartedAt: time.Now(),
	}
	c.put(state)
	return state
}

// Get returns the interview state for a session, or false if none exists or
// it has expired.
func (c *Cache) Get(sessionID string) (*State, bool) {
	raw, ok := c.inner.Get(sessionID)
	if !ok {
		return nil, false
	}
	state, ok := raw.(*State)
	return state, ok
}

// Update stores modified interview state back into the cache.
func (c *Cache) Update(state *State) {
	c.put(state)
}

// Clear removes a session's interview state.
func (c *Cache) Clear(sessionID string) {
	c.inner.Del(sessionID)
}

// Close releases the cache's resources.
func (c *Cache) Close() {
	c.inner.Close()
}

func (c *Cache) put(state *State) {
	c.inner.SetWithTTL(state.SessionID, state, 1, c.ttl)
	c.inner.Wait()
}
