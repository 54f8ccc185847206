package recorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tomorrowyou/selftree/pkg/llm"
	"github.com/tomorrowyou/selftree/pkg/llm/parser"
	"github.com/tomorrowyou/selftree/pkg/types"
)

const insightSystemPrompt = `You analyze a conversation between a user and a simulated future version of themselves.
Extract the user's stable branching signals: values, fears, dreams, relationships, trade-off tensions, decision patterns.

Respond with JSON only, in this exact shape:
{"insights": [{"type": "...", "element": "...", "evidence": "...", "why_it_matters": "..."}]}

Rules:
- "type" is a short free-form category you choose (e.g. "fear", "value", "relationship").
- "element" is the concrete thing observed, stated in a few words.
- "evidence" quotes or closely paraphrases what the user actually said.
- "why_it_matters" explains the relevance to the user's life direction in one sentence.
- Only include signals grounded in what the user said. An empty list is a valid answer.`

// extractInsights sends the conversation window to the completion provider
// and parses the response into a deduplicated insight list.
func (r *Recorder) extractInsights(ctx context.Context, window []types.TranscriptEntry) ([]types.Insight, error) {
	var b strings.Builder
	for _, entry := range window {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(entry.Role)), entry.Content)
	}

	cfg := r.chatCfg
	cfg.JSONObject = true

	messages := []llm.Message{
		llm.NewSystemMessage(insightSystemPrompt),
		llm.NewUserMessage("Conversation excerpt:\n\n" + b.String()),
	}

	raw, err := r.provider.Complete(ctx, messages, cfg)
	if err != nil {
		return nil, fmt.Errorf("recorder: insight completion: %w", err)
	}

	insights, err := parseInsightPayload(raw)
	if err != nil {
		return nil, err
	}
	return dedupeInsights(insights), nil
}

// parseInsightPayload parses model output into insights, tolerating prose
// around the JSON.
func parseInsightPayload(raw string) ([]types.Insight, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("recorder: empty insight response")
	}
	result, err := parser.FirstValid(raw, func(r gjson.Result) bool {
		return r.Get("insights").IsArray()
	})
	if err != nil {
		return nil, fmt.Errorf("recorder: parse insight response: %w", err)
	}
	return insightsFromResult(result.Get("insights")), nil
}

func insightsFromResult(payload gjson.Result) []types.Insight {
	var insights []types.Insight
	payload.ForEach(func(_, item gjson.Result) bool {
		insightType := strings.TrimSpace(item.Get("type").String())
		element := strings.TrimSpace(item.Get("element").String())
		if insightType == "" || element == "" {
			return true
		}
		insights = append(insights, types.Insight{
			Type:      insightType,
			Element:   element,
			Evidence:  strings.TrimSpace(item.Get("evidence").String()),
			Rationale: strings.TrimSpace(item.Get("why_it_matters").String()),
		})
		return true
	})
	return insights
}

// dedupeInsights drops repeats by case-insensitive (type, element), keeping
// the first occurrence.
func dedupeInsights(insights []types.Insight) []types.Insight {
	seen := make(map[string]bool, len(insights))
	var out []types.Insight
	for _, insight := range insights {
		key := strings.ToLower(insight.Type) + "\x00" + strings.ToLower(insight.Element)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, insight)
	}
	return out
}
