package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidMood(t *testing.T) {
	for _, m := range Moods {
		assert.True(t, ValidMood(m), "mood %q should be valid", m)
	}
	assert.False(t, ValidMood("melancholy"))
	assert.False(t, ValidMood(""))
}

func TestNormalizeFillsCollections(t *testing.T) {
	s := &Session{ID: "sess"}
	s.Normalize()

	assert.Equal(t, StatusOnboarding, s.Status)
	assert.NotNil(t, s.FutureSelvesFull)
	assert.NotNil(t, s.ExplorationPaths)
	assert.NotNil(t, s.FutureSelfOptions)
	assert.NotNil(t, s.Transcript)
}

func TestNormalizeKeepsExistingData(t *testing.T) {
	s := &Session{
		ID:     "sess",
		Status: StatusSelection,
		FutureSelvesFull: map[string]SelfCard{
			"self_1": {ID: "self_1", Name: "The Builder"},
		},
		Transcript: []TranscriptEntry{{Role: "user", Content: "hi", Turn: 1}},
	}
	s.Normalize()

	assert.Equal(t, StatusSelection, s.Status)
	assert.Len(t, s.FutureSelvesFull, 1)
	assert.Len(t, s.Transcript, 1)
}

func TestHasCurrentSelf(t *testing.T) {
	s := &Session{}
	assert.False(t, s.HasCurrentSelf())

	s.CurrentSelf = &SelfCard{}
	assert.False(t, s.HasCurrentSelf(), "card without ID does not count")

	s.CurrentSelf.ID = "self_current_abc"
	assert.True(t, s.HasCurrentSelf())
}

func TestHasFutureSelves(t *testing.T) {
	s := &Session{}
	s.Normalize()
	assert.False(t, s.HasFutureSelves())

	s.FutureSelvesFull["self_1"] = SelfCard{ID: "self_1"}
	assert.True(t, s.HasFutureSelves())
}
