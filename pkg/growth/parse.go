package growth

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tomorrowyou/selftree/pkg/llm/parser"
	"github.com/tomorrowyou/selftree/pkg/types"
)

// parseFutureSelves parses model output into raw persona cards, tolerating
// prose around the JSON. Tree metadata and voices are not set here.
func parseFutureSelves(raw string) ([]types.SelfCard, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, generationErrorf("parse", "empty generation response")
	}
	result, err := parser.FirstValid(raw, func(r gjson.Result) bool {
		return r.Get("future_selves").IsArray()
	})
	if err != nil {
		return nil, generationErrorf("parse", "no parseable persona JSON in response")
	}

	var cards []types.SelfCard
	var invalid error
	result.Get("future_selves").ForEach(func(_, item gjson.Result) bool {
		card, err := cardFromResult(item)
		if err != nil {
			invalid = err
			return false
		}
		cards = append(cards, card)
		return true
	})
	if invalid != nil {
		return nil, invalid
	}
	return cards, nil
}

// parseCurrentSelf parses a single current-self persona object.
func parseCurrentSelf(raw string) (*types.SelfCard, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, generationErrorf("parse", "empty current self response")
	}
	result, err := parser.FirstValid(raw, func(r gjson.Result) bool {
		return r.Get("optimization_goal").Exists()
	})
	if err != nil {
		return nil, generationErrorf("parse", "no parseable persona JSON in response")
	}
	card, err := cardFromResult(result)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// cardFromResult builds a SelfCard from one persona object, validating the
// identity fields and mood.
func cardFromResult(item gjson.Result) (types.SelfCard, error) {
	card := types.SelfCard{
		Name:             strings.TrimSpace(item.Get("name").String()),
		OptimizationGoal: strings.TrimSpace(item.Get("optimization_goal").String()),
		ToneOfVoice:      strings.TrimSpace(item.Get("tone_of_voice").String()),
		Worldview:        strings.TrimSpace(item.Get("worldview").String()),
		CoreBelief:       strings.TrimSpace(item.Get("core_belief").String()),
		TradeOff:         strings.TrimSpace(item.Get("trade_off").String()),
		AvatarPrompt:     strings.TrimSpace(item.Get("avatar_prompt").String()),
	}
	if card.Name == "" {
		return card, generationErrorf("parse", "persona missing name")
	}
	if card.OptimizationGoal == "" {
		return card, generationErrorf("parse", "persona %q missing optimization_goal", card.Name)
	}

	style := item.Get("visual_style")
	mood := types.Mood(strings.TrimSpace(style.Get("mood").String()))
	if !types.ValidMood(mood) {
		return card, generationErrorf("parse", "persona %q has unknown mood %q", card.Name, mood)
	}
	card.VisualStyle = types.VisualStyle{
		PrimaryColor:  strings.TrimSpace(style.Get("primary_color").String()),
		AccentColor:   strings.TrimSpace(style.Get("accent_color").String()),
		Mood:          mood,
		GlowIntensity: clamp01(style.Get("glow_intensity").Float()),
	}
	return card, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
