// Package prompt builds model-ready message sequences from resolved branch
// context. The composer renders the persona system prompt (identity
// constraints, profile summary, memory facts and notes) and assembles it with
// clipped chat history and the incoming user message.
package prompt

import (
	"fmt"
	"strings"

	"github.com/tomorrowyou/selftree/pkg/llm"
	"github.com/tomorrowyou/selftree/pkg/resolver"
	"github.com/tomorrowyou/selftree/pkg/types"
)

// Limits cap how much resolved memory and history the composer injects.
type Limits struct {
	MaxMemoryFacts  int
	MaxMemoryNotes  int
	MaxHistoryTurns int
}

// DefaultLimits returns the shipped composer limits.
func DefaultLimits() Limits {
	return Limits{
		MaxMemoryFacts:  24,
		MaxMemoryNotes:  16,
		MaxHistoryTurns: 12,
	}
}

// Composer builds prompts from resolved branch context.
type Composer struct {
	limits Limits
}

// NewComposer creates a composer with the default limits.
func NewComposer() *Composer {
	return &Composer{limits: DefaultLimits()}
}

// NewComposerWithLimits creates a composer with explicit limits.
func NewComposerWithLimits(limits Limits) *Composer {
	return &Composer{limits: limits}
}

// ComposeSystemPrompt renders the persona system prompt for a resolved
// branch context. Missing self card fields fall back to neutral defaults so
// the prompt never contains empty identity slots.
func (c *Composer) ComposeSystemPrompt(ctx *resolver.Context) string {
	card := ctx.SelfCard

	personaName := safeText(card.Name, "Future Self")
	optimizationGoal := safeText(card.OptimizationGoal, "none")
	toneOfVoice := safeText(card.ToneOfVoice, "natural")
	worldview := safeText(card.Worldview, "none")
	coreBelief := safeText(card.CoreBelief, "none")
	tradeOff := safeText(card.TradeOff, "none")

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a possible future version of the user who chose the branch '%s'.\n\n",
		personaName, ctx.BranchName)
	b.WriteString("Identity constraints:\n")
	fmt.Fprintf(&b, "- Optimization goal: %s\n", optimizationGoal)
	fmt.Fprintf(&b, "- Tone of voice: %s\n", toneOfVoice)
	fmt.Fprintf(&b, "- Worldview: %s\n", worldview)
	fmt.Fprintf(&b, "- Core belief: %s\n", coreBelief)
	fmt.Fprintf(&b, "- Trade-off paid: %s\n\n", tradeOff)
	b.WriteString("User profile context:\n")
	b.WriteString(ctx.ProfileSummary)
	b.WriteString("\n\n")
	b.WriteString("Memory facts from root to current branch:\n")
	b.WriteString(c.formatFacts(ctx.Facts))
	b.WriteString("\n\n")
	b.WriteString("Additional memory notes:\n")
	b.WriteString(c.formatNotes(ctx.Notes))
	b.WriteString("\n\n")
	b.WriteString("Conversation rules:\n")
	b.WriteString("1. Stay in character as this future self. Never mention being an AI, model, or prompt.\n")
	b.WriteString("2. Be natural and conversational. No robotic or generic coaching language.\n")
	b.WriteString("3. Be helpful and honest about trade-offs. Do not blindly agree with the user.\n")
	b.WriteString("4. Default response length: 4-8 sentences unless the user asks for deep detail.\n")
	b.WriteString("5. If context is ambiguous, ask one precise clarifying question.\n")
	b.WriteString("6. Keep continuity with prior turns in this chat session.")
	return b.String()
}

// ComposeMessages assembles the full message sequence: system prompt, the
// last MaxHistoryTurns valid history messages, then the user message. Only
// user and assistant roles with non-blank content survive the history clip.
func (c *Composer) ComposeMessages(ctx *resolver.Context, userMessage string, history []llm.Message) ([]llm.Message, error) {
	trimmed := strings.TrimSpace(userMessage)
	if trimmed == "" {
		return nil, fmt.Errorf("prompt: user message cannot be empty")
	}

	messages := []llm.Message{llm.NewSystemMessage(c.ComposeSystemPrompt(ctx))}

	clipped := history
	if c.limits.MaxHistoryTurns >= 0 && len(clipped) > c.limits.MaxHistoryTurns {
		clipped = clipped[len(clipped)-c.limits.MaxHistoryTurns:]
	}
	for _, item := range clipped {
		if item.Role != llm.RoleUser && item.Role != llm.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(item.Content)
		if content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: item.Role, Content: content})
	}

	messages = append(messages, llm.NewUserMessage(trimmed))
	return messages, nil
}

func (c *Composer) formatFacts(facts []types.Fact) string {
	if len(facts) == 0 {
		return "- none"
	}
	capped := facts
	if len(capped) > c.limits.MaxMemoryFacts {
		capped = capped[:c.limits.MaxMemoryFacts]
	}
	var lines []string
	for _, fact := range capped {
		text := strings.TrimSpace(fact.Fact)
		if text == "" {
			continue
		}
		source := safeText(fact.Source, "unknown")
		lines = append(lines, fmt.Sprintf("- [%s] %s", source, text))
	}
	if len(lines) == 0 {
		return "- none"
	}
	return strings.Join(lines, "\n")
}

func (c *Composer) formatNotes(notes []string) string {
	if len(notes) == 0 {
		return "- none"
	}
	capped := notes
	if len(capped) > c.limits.MaxMemoryNotes {
		capped = capped[:c.limits.MaxMemoryNotes]
	}
	var lines []string
	for _, note := range capped {
		trimmed := strings.TrimSpace(note)
		if trimmed == "" {
			continue
		}
		lines = append(lines, "- "+trimmed)
	}
	if len(lines) == 0 {
		return "- none"
	}
	return strings.Join(lines, "\n")
}

func safeText(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
