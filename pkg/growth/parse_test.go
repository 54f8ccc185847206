package growth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomorrowyou/selftree/pkg/types"
)

const validCardJSON = `{"type": "future", "name": "Self Who Left", "optimization_goal": "freedom", "tone_of_voice": "dry", "worldview": "w", "core_belief": "b", "trade_off": "t", "avatar_prompt": "a", "visual_style": {"primary_color": "#111111", "accent_color": "#222222", "mood": "sharp", "glow_intensity": 0.6}}`

func TestParseFutureSelvesDirect(t *testing.T) {
	cards, err := parseFutureSelves(`{"future_selves": [` + validCardJSON + `]}`)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Self Who Left", cards[0].Name)
	assert.Equal(t, types.MoodSharp, cards[0].VisualStyle.Mood)
}

func TestParseFutureSelvesFencedWithProse(t *testing.T) {
	raw := "Here are the personas:\n```json\n{\"future_selves\": [" + validCardJSON + "]}\n```\nDone!"
	cards, err := parseFutureSelves(raw)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestParseFutureSelvesBraceScan(t *testing.T) {
	raw := `Sure thing. {"future_selves": [` + validCardJSON + `]} Hope this helps.`
	cards, err := parseFutureSelves(raw)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestParseFutureSelvesRejectsMissingName(t *testing.T) {
	raw := `{"future_selves": [{"optimization_goal": "freedom", "visual_style": {"mood": "sharp"}}]}`
	_, err := parseFutureSelves(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name")
}

func TestParseFutureSelvesRejectsMissingGoal(t *testing.T) {
	raw := `{"future_selves": [{"name": "X", "visual_style": {"mood": "sharp"}}]}`
	_, err := parseFutureSelves(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing optimization_goal")
}

func TestParseFutureSelvesRejectsUnknownMood(t *testing.T) {
	raw := `{"future_selves": [{"name": "X", "optimization_goal": "g", "visual_style": {"mood": "melancholy"}}]}`
	_, err := parseFutureSelves(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mood")
}

func TestParseFutureSelvesNoJSON(t *testing.T) {
	for _, raw := range []string{"", "   ", "I could not generate anything."} {
		_, err := parseFutureSelves(raw)
		assert.Error(t, err, "raw %q should fail", raw)
	}
}

func TestParseFutureSelvesClampsGlow(t *testing.T) {
	raw := `{"future_selves": [{"name": "X", "optimization_goal": "g", "visual_style": {"mood": "calm", "glow_intensity": 3.5}}]}`
	cards, err := parseFutureSelves(raw)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cards[0].VisualStyle.GlowIntensity)
}

func TestParseCurrentSelf(t *testing.T) {
	card, err := parseCurrentSelf(validCardJSON)
	require.NoError(t, err)
	assert.Equal(t, "freedom", card.OptimizationGoal)
}

func TestParseCurrentSelfNoJSON(t *testing.T) {
	_, err := parseCurrentSelf("nothing useful here")
	assert.Error(t, err)
}
