// Package voice maps persona moods onto voice identifiers from a configured
// pool. Assignment prefers an exact mood match, then walks a per-mood
// adjacency chain, and falls back to a global default; within one generation
// batch every persona gets a distinct voice whenever the pool allows it.
package voice

import (
	"github.com/tomorrowyou/selftree/pkg/types"
)

// Assigner selects voices for generated personas.
type Assigner struct {
	pool           map[string]string
	fallbackChains map[string][]string
	defaultVoiceID string
}

// NewAssigner creates an assigner over a mood→voice pool. fallbackChains
// lists, per mood, the adjacent moods to try when the primary voice is taken.
func NewAssigner(pool map[string]string, fallbackChains map[string][]string, defaultVoiceID string) *Assigner {
	return &Assigner{
		pool:           pool,
		fallbackChains: fallbackChains,
		defaultVoiceID: defaultVoiceID,
	}
}

// Assign picks a voice for a single mood with no batch exclusions.
func (a *Assigner) Assign(mood types.Mood) string {
	return a.AssignDistinct(mood, nil)
}

// AssignDistinct picks a voice for a mood, skipping voices already present
// in used. The chosen voice is recorded in used so siblings in the same
// batch come out distinct. When every candidate is taken the global default
// is returned unconditionally.
func (a *Assigner) AssignDistinct(mood types.Mood, used map[string]bool) string {
	candidates := append([]string{string(mood)}, a.fallbackChains[string(mood)]...)
	for _, candidateMood := range candidates {
		voiceID := a.pool[candidateMood]
		if voiceID == "" || used[voiceID] {
			continue
		}
		if used != nil {
			used[voiceID] = true
		}
		return voiceID
	}
	return a.defaultVoiceID
}

// AssignBatch assigns voices to a batch of moods in order, keeping them
// distinct where the pool is large enough.
func (a *Assigner) AssignBatch(moods []types.Mood) []string {
	used := make(map[string]bool, len(moods))
	out := make([]string, len(moods))
	for i, mood := range moods {
		out[i] = a.AssignDistinct(mood, used)
	}
	return out
}
