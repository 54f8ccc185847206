package voice

import (
	"testing"

	"github.com/tomorrowyou/selftree/pkg/types"
)

func testAssigner() *Assigner {
	pool := map[string]string{
		"warm":     "voice-warm",
		"grounded": "voice-grounded",
		"calm":     "voice-calm",
		"intense":  "voice-intense",
	}
	chains := map[string][]string{
		"warm":    {"grounded", "calm"},
		"sharp":   {"intense", "grounded"},
		"intense": {"sharp", "grounded"},
	}
	return NewAssigner(pool, chains, "voice-default")
}

func TestAssignExactMatch(t *testing.T) {
	a := testAssigner()
	if got := a.Assign(types.MoodWarm); got != "voice-warm" {
		t.Errorf("expected voice-warm, got %q", got)
	}
}

func TestAssignWalksFallbackChain(t *testing.T) {
	a := testAssigner()
	// "sharp" is not in the pool; its chain starts at intense.
	if got := a.Assign(types.MoodSharp); got != "voice-intense" {
		t.Errorf("expected voice-intense, got %q", got)
	}
}

func TestAssignDefaultWhenNothingMatches(t *testing.T) {
	a := testAssigner()
	// "ethereal" has no pool entry and no chain.
	if got := a.Assign(types.MoodEthereal); got != "voice-default" {
		t.Errorf("expected voice-default, got %q", got)
	}
}

func TestAssignDistinctSkipsUsedVoices(t *testing.T) {
	a := testAssigner()
	used := map[string]bool{}

	first := a.AssignDistinct(types.MoodWarm, used)
	second := a.AssignDistinct(types.MoodWarm, used)
	third := a.AssignDistinct(types.MoodWarm, used)

	if first != "voice-warm" || second != "voice-grounded" || third != "voice-calm" {
		t.Errorf("unexpected assignment order: %q %q %q", first, second, third)
	}

	// Chain exhausted: default, even if already used.
	fourth := a.AssignDistinct(types.MoodWarm, used)
	if fourth != "voice-default" {
		t.Errorf("expected voice-default, got %q", fourth)
	}
}

func TestAssignBatchDistinct(t *testing.T) {
	a := testAssigner()
	voices := a.AssignBatch([]types.Mood{types.MoodWarm, types.MoodWarm, types.MoodIntense})

	seen := map[string]bool{}
	for i, v := range voices {
		if v == "" {
			t.Fatalf("voice %d is empty", i)
		}
		if seen[v] {
			t.Errorf("voice %q assigned twice", v)
		}
		seen[v] = true
	}
}
