package interview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomorrowyou/selftree/pkg/llm"
	"github.com/tomorrowyou/selftree/pkg/types"
)

func TestCacheCreateAndGet(t *testing.T) {
	cache, err := NewCache(time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	created := cache.Create("sess-1")
	assert.Equal(t, "sess-1", created.SessionID)
	assert.False(t, created.StartedAt.IsZero())

	got, ok := cache.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, created, got)
}

func TestCacheGetMissing(t *testing.T) {
	cache, err := NewCache(time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	_, ok := cache.Get("ghost")
	assert.False(t, ok)
}

func TestCacheUpdate(t *testing.T) {
	cache, err := NewCache(time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	state := cache.Create("sess-1")
	state.History = append(state.History, llm.NewUserMessage("hello"))
	state.Profile = &types.UserProfile{CurrentDilemma: "stay or go"}
	cache.Update(state)

	got, ok := cache.Get("sess-1")
	require.True(t, ok)
	require.Len(t, got.History, 1)
	require.NotNil(t, got.Profile)
	assert.Equal(t, "stay or go", got.Profile.CurrentDilemma)
}

func TestCacheCreateReplacesExisting(t *testing.T) {
	cache, err := NewCache(time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	first := cache.Create("sess-1")
	first.History = append(first.History, llm.NewUserMessage("old"))
	cache.Update(first)

	cache.Create("sess-1")
	got, ok := cache.Get("sess-1")
	require.True(t, ok)
	assert.Empty(t, got.History)
}

func TestCacheClear(t *testing.T) {
	cache, err := NewCache(time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	cache.Create("sess-1")
	cache.Clear("sess-1")

	// Deletion is applied asynchronously by the cache's internal workers.
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := cache.Get("sess-1"); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("entry still present after Clear")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCacheExpires(t *testing.T) {
	cache, err := NewCache(50 * time.Millisecond)
	require.NoError(t, err)
	defer cache.Close()

	cache.Create("sess-1")

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := cache.Get("sess-1"); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("entry did not expire")
		}
		time.Sleep(25 * time.Millisecond)
	}
}
