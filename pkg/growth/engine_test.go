package growth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomorrowyou/selftree/pkg/llm"
	"github.com/tomorrowyou/selftree/pkg/types"
	"github.com/tomorrowyou/selftree/pkg/voice"
)

type fakeProvider struct {
	reply       string
	err         error
	lastMessage string
	lastConfig  llm.ChatConfig
}

func (f *fakeProvider) Complete(_ context.Context, messages []llm.Message, cfg llm.ChatConfig) (string, error) {
	if len(messages) > 0 {
		f.lastMessage = messages[len(messages)-1].Content
	}
	f.lastConfig = cfg
	return f.reply, f.err
}

func (f *fakeProvider) StreamCompletion(context.Context, []llm.Message, llm.ChatConfig) (<-chan *llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func testAssigner() *voice.Assigner {
	pool := map[string]string{
		"warm": "voice-warm", "sharp": "voice-sharp", "calm": "voice-calm",
		"intense": "voice-intense", "grounded": "voice-grounded",
	}
	chains := map[string][]string{
		"warm":  {"grounded", "calm"},
		"sharp": {"intense", "grounded"},
	}
	return voice.NewAssigner(pool, chains, "voice-default")
}

func testEngineProfile() *types.UserProfile {
	return &types.UserProfile{
		ID:             "user-1",
		CoreValues:     []string{"honesty", "growth"},
		Fears:          []string{"stagnation"},
		HiddenTensions: []string{"wants change, fears loss"},
		DecisionStyle:  "deliberate",
		SelfNarrative:  "the reliable one",
		CurrentDilemma: "stay or go",
	}
}

const twoFuturesReply = `{"future_selves": [
  {"type": "future", "name": "Self Who Left", "optimization_goal": "freedom", "tone_of_voice": "dry", "worldview": "w1", "core_belief": "b1", "trade_off": "t1", "avatar_prompt": "a1", "visual_style": {"primary_color": "#111111", "accent_color": "#222222", "mood": "sharp", "glow_intensity": 0.6}},
  {"type": "future", "name": "Self Who Stayed", "optimization_goal": "belonging", "tone_of_voice": "warm", "worldview": "w2", "core_belief": "b2", "trade_off": "t2", "avatar_prompt": "a2", "visual_style": {"primary_color": "#333333", "accent_color": "#444444", "mood": "warm", "glow_intensity": 0.4}}
]}`

func TestHashIDDeterministic(t *testing.T) {
	parent := "p1"
	a := HashID("Self Who Left", &parent, 1700000000.5)
	b := HashID("Self Who Left", &parent, 1700000000.5)
	assert.Equal(t, a, b)
	assert.Len(t, a, idLength)
}

func TestHashIDVariesByInput(t *testing.T) {
	parent := "p1"
	other := "p2"
	base := HashID("Self Who Left", &parent, 1700000000.5)
	assert.NotEqual(t, base, HashID("Self Who Stayed", &parent, 1700000000.5))
	assert.NotEqual(t, base, HashID("Self Who Left", &other, 1700000000.5))
	assert.NotEqual(t, base, HashID("Self Who Left", nil, 1700000000.5))
	assert.NotEqual(t, base, HashID("Self Who Left", &parent, 1700000001.5))
}

func TestGenerateRootLevel(t *testing.T) {
	provider := &fakeProvider{reply: twoFuturesReply}
	engine := New(provider, testAssigner())

	timeNow = func() time.Time { return time.Unix(1700000000, 0) }
	defer func() { timeNow = time.Now }()

	cards, err := engine.Generate(context.Background(), GenerationContext{
		Profile:     testEngineProfile(),
		CurrentSelf: types.SelfCard{Name: "Current Self", OptimizationGoal: "balance"},
		Count:       2,
		TimeHorizon: "5 years",
	})
	require.NoError(t, err)
	require.Len(t, cards, 2)

	for _, card := range cards {
		assert.Equal(t, types.SelfFuture, card.Kind)
		assert.Nil(t, card.ParentSelfID)
		assert.Equal(t, 1, card.DepthLevel)
		assert.NotNil(t, card.ChildrenIDs)
		assert.Empty(t, card.ChildrenIDs)
		assert.Len(t, card.ID, idLength)
	}
	assert.NotEqual(t, cards[0].ID, cards[1].ID)
	assert.Equal(t, "voice-sharp", cards[0].VoiceID)
	assert.Equal(t, "voice-warm", cards[1].VoiceID)

	// Root framing, not parent framing.
	assert.Contains(t, provider.lastMessage, "crossroads")
	assert.NotContains(t, provider.lastMessage, "PARENT PATH CHOSEN")
	assert.True(t, provider.lastConfig.JSONObject)
}

func TestGenerateDeeperLevel(t *testing.T) {
	provider := &fakeProvider{reply: twoFuturesReply}
	engine := New(provider, testAssigner())

	parent := types.SelfCard{
		ID:               "parent1",
		Name:             "Self Who Left",
		OptimizationGoal: "freedom",
		TradeOff:         "left a stable job",
		VisualStyle:      types.VisualStyle{Mood: types.MoodSharp},
	}
	cards, err := engine.Generate(context.Background(), GenerationContext{
		Profile:              testEngineProfile(),
		CurrentSelf:          types.SelfCard{Name: "Current Self"},
		Count:                2,
		ParentSelf:           &parent,
		AncestorSummary:      "→ Current Self: optimized for balance, traded nothing yet",
		ConversationExcerpts: []string{"[user ↔ Self Who Left]: was it worth it?"},
		SiblingNames:         []string{"Self Who Left and Thrived"},
		Depth:                1,
		TimeHorizon:          "2-3 years",
	})
	require.NoError(t, err)
	require.Len(t, cards, 2)

	for _, card := range cards {
		require.NotNil(t, card.ParentSelfID)
		assert.Equal(t, "parent1", *card.ParentSelfID)
		assert.Equal(t, 2, card.DepthLevel)
	}

	assert.Contains(t, provider.lastMessage, "PARENT PATH CHOSEN")
	assert.Contains(t, provider.lastMessage, "ANCESTOR CHAIN")
	assert.Contains(t, provider.lastMessage, "CONVERSATION INSIGHTS")
	assert.Contains(t, provider.lastMessage, "Self Who Left and Thrived")
	assert.Contains(t, provider.lastMessage, "2-3 years")
}

func TestGenerateRequiresProfile(t *testing.T) {
	engine := New(&fakeProvider{reply: twoFuturesReply}, testAssigner())
	_, err := engine.Generate(context.Background(), GenerationContext{Count: 2})

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "validate", genErr.Stage)
}

func TestGenerateZeroPersonasIsError(t *testing.T) {
	engine := New(&fakeProvider{reply: `{"future_selves": []}`}, testAssigner())
	_, err := engine.Generate(context.Background(), GenerationContext{
		Profile:     testEngineProfile(),
		CurrentSelf: types.SelfCard{Name: "Current Self"},
		Count:       2,
	})

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "parse", genErr.Stage)
}

func TestGenerateProviderError(t *testing.T) {
	engine := New(&fakeProvider{err: errors.New("rate limited")}, testAssigner())
	_, err := engine.Generate(context.Background(), GenerationContext{
		Profile:     testEngineProfile(),
		CurrentSelf: types.SelfCard{Name: "Current Self"},
		Count:       2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGenerateCurrentSelf(t *testing.T) {
	reply := `{"name": "Current Self", "optimization_goal": "balance", "tone_of_voice": "measured", "worldview": "w", "core_belief": "b", "trade_off": "t", "avatar_prompt": "a", "visual_style": {"primary_color": "#111111", "accent_color": "#222222", "mood": "calm", "glow_intensity": 0.5}}`
	provider := &fakeProvider{reply: reply}
	engine := New(provider, testAssigner())

	card, err := engine.GenerateCurrentSelf(context.Background(), testEngineProfile())
	require.NoError(t, err)

	assert.Equal(t, types.SelfCurrent, card.Kind)
	assert.Equal(t, "Current Self", card.Name)
	assert.Equal(t, 0, card.DepthLevel)
	assert.Nil(t, card.ParentSelfID)
	assert.Equal(t, "voice-calm", card.VoiceID)
	assert.Contains(t, card.ID, "self_current_")
	assert.Contains(t, provider.lastMessage, "Central Dilemma")
	assert.Contains(t, provider.lastMessage, "stay or go")
}

func TestGenerateCurrentSelfNilProfile(t *testing.T) {
	engine := New(&fakeProvider{}, testAssigner())
	_, err := engine.GenerateCurrentSelf(context.Background(), nil)
	assert.Error(t, err)
}

func TestTimeHorizonForDepth(t *testing.T) {
	engine := New(&fakeProvider{}, testAssigner())
	assert.Equal(t, "5 years", engine.TimeHorizonForDepth(1))
	assert.Equal(t, "2-3 years", engine.TimeHorizonForDepth(2))
	assert.Equal(t, "1-2 years", engine.TimeHorizonForDepth(3))
	assert.Equal(t, "5 years", engine.TimeHorizonForDepth(9))
}
