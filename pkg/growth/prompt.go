package growth

import (
	"fmt"
	"strings"

	"github.com/tomorrowyou/selftree/pkg/types"
)

const rootDepthFraming = `This person stands at a crossroads. Generate futures that diverge from their current self — each representing a genuinely different life path.`

const outputShape = `Respond with JSON only, in this exact shape:
{"future_selves": [{"type": "future", "name": "...", "optimization_goal": "...", "tone_of_voice": "...", "worldview": "...", "core_belief": "...", "trade_off": "...", "avatar_prompt": "...", "visual_style": {"primary_color": "#RRGGBB", "accent_color": "#RRGGBB", "mood": "...", "glow_intensity": 0.5}}]}

"mood" must be one of: elevated, warm, sharp, grounded, ethereal, intense, calm.`

// buildMessage renders the depth-aware generation prompt. Root generation
// asks for divergent life paths from the anchor; deeper generation asks how
// the already-chosen path evolved differently, referencing the parent.
func (e *Engine) buildMessage(gc GenerationContext) string {
	profile := gc.Profile

	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d contrasting future self personas for the following person.\n\n", gc.Count)

	if gc.ParentSelf == nil {
		b.WriteString(rootDepthFraming)
	} else {
		b.WriteString(branchDepthFraming(gc))
	}

	b.WriteString("\n\n---\n\nUSER PROFILE:\n")
	fmt.Fprintf(&b, "- Core values: %s\n", strings.Join(profile.CoreValues, ", "))
	fmt.Fprintf(&b, "- Fears: %s\n", strings.Join(profile.Fears, ", "))
	fmt.Fprintf(&b, "- Hidden tensions: %s\n", strings.Join(profile.HiddenTensions, " | "))
	fmt.Fprintf(&b, "- Decision style: %s\n", profile.DecisionStyle)
	fmt.Fprintf(&b, "- Self-narrative: %s\n", profile.SelfNarrative)
	fmt.Fprintf(&b, "- Current dilemma: %s\n", profile.CurrentDilemma)

	b.WriteString("\n---\n\n")
	b.WriteString(anchorSection(gc.CurrentSelf))

	if gc.ParentSelf != nil {
		b.WriteString("\n\n")
		b.WriteString(parentSection(*gc.ParentSelf))
	}

	if gc.AncestorSummary != "" {
		b.WriteString("\n\nANCESTOR CHAIN (summarized for context — this person's lineage of choices):\n")
		b.WriteString(gc.AncestorSummary)
	}

	if len(gc.ConversationExcerpts) > 0 {
		b.WriteString("\n\nCONVERSATION INSIGHTS (things revealed while talking to previously generated selves):\n")
		for _, excerpt := range gc.ConversationExcerpts {
			fmt.Fprintf(&b, "- %s\n", excerpt)
		}
		b.WriteString("Use these revealed preferences and emotions to shape the generated personas.")
	}

	if len(gc.SiblingNames) > 0 {
		fmt.Fprintf(&b, "\n\nALREADY GENERATED AT THIS LEVEL (avoid overlap): %s", strings.Join(gc.SiblingNames, ", "))
	}

	b.WriteString("\n\nGENERATION RULES REMINDER:\n")
	fmt.Fprintf(&b, "- Generate exactly %d future selves.\n", gc.Count)
	b.WriteString("- Each self must optimize for a DIFFERENT value dimension — not variations of the same path.\n")
	b.WriteString("- Each self must have a real trade-off: something genuinely gained, something genuinely lost.\n")
	b.WriteString("- avatar_prompt must be 3-5 sentences describing a real person in a real setting (cinematic, editorial).\n")
	b.WriteString("- No two selves should share the same primary_color or mood.\n\n")
	b.WriteString(outputShape)
	return b.String()
}

func branchDepthFraming(gc GenerationContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d contrasting future scenarios for a person who chose a specific life path %s ago.\n\n",
		gc.Count, gc.TimeHorizon)
	b.WriteString("This person made a major decision and has been living with it. Generate futures exploring how that SAME initial choice evolved differently based on life factors (relationships, health, opportunities, unexpected events, trade-off consequences).\n\n")
	fmt.Fprintf(&b, "Each self should feel like \"%s + %s + different life circumstances\".\n", gc.ParentSelf.Name, gc.TimeHorizon)
	b.WriteString("- Names should be: \"Self Who [parent choice] and [what happened]\"\n")
	b.WriteString("- Trade-offs should reference the parent choice and what happened since\n")
	b.WriteString("- Do NOT rehash the original dilemma — focus on what happened AFTER the choice\n")
	fmt.Fprintf(&b, "- Visual mood should reflect the emotional outcome (not copy parent mood: %s)", gc.ParentSelf.VisualStyle.Mood)
	return b.String()
}

func anchorSection(current types.SelfCard) string {
	var b strings.Builder
	b.WriteString("CURRENT SELF (the anchor — selves you generate must feel genuinely different from this):\n")
	fmt.Fprintf(&b, "- Name: %s\n", current.Name)
	fmt.Fprintf(&b, "- Optimization goal: %s\n", current.OptimizationGoal)
	fmt.Fprintf(&b, "- Tone of voice: %s\n", current.ToneOfVoice)
	fmt.Fprintf(&b, "- Worldview: %s\n", current.Worldview)
	fmt.Fprintf(&b, "- Core belief: %s\n", current.CoreBelief)
	fmt.Fprintf(&b, "- Visual mood: %s", current.VisualStyle.Mood)
	return b.String()
}

func parentSection(parent types.SelfCard) string {
	var b strings.Builder
	b.WriteString("PARENT PATH CHOSEN (the immediate decision this person already made):\n")
	fmt.Fprintf(&b, "- Name: %s\n", parent.Name)
	fmt.Fprintf(&b, "- What they optimized for: %s\n", parent.OptimizationGoal)
	fmt.Fprintf(&b, "- Their worldview: %s\n", parent.Worldview)
	fmt.Fprintf(&b, "- Their core belief: %s\n", parent.CoreBelief)
	fmt.Fprintf(&b, "- What they traded off: %s\n", parent.TradeOff)
	fmt.Fprintf(&b, "- Visual mood: %s", parent.VisualStyle.Mood)
	return b.String()
}

// buildCurrentSelfPrompt renders the one-shot current self derivation prompt
// from the onboarding profile.
func buildCurrentSelfPrompt(profile *types.UserProfile) string {
	var b strings.Builder
	b.WriteString("Generate a CurrentSelf persona card based on this user's profile and life situation.\n\n")
	b.WriteString("PROFILE SUMMARY:\n")
	b.WriteString(summarizeProfile(profile))
	b.WriteString("\nTASK:\n")
	b.WriteString("Derive a CurrentSelf persona that represents this person as they are now, wrestling with their central dilemma. This is their grounded, present-moment self — the perspective they view their decision from before exploring future possibilities.\n\n")
	b.WriteString("GUIDELINES:\n")
	b.WriteString("1. optimization_goal: what they are trying to optimize for right now, usually a balance or juggling act.\n")
	b.WriteString("2. tone_of_voice: how this person presents, derived from their decision style. Include emotional tone.\n")
	b.WriteString("3. worldview: how they see the world and decisions, drawn from their hidden tensions and self-narrative.\n")
	b.WriteString("4. core_belief: ONE belief that drives their decision-making, distinct and personal.\n")
	b.WriteString("5. trade_off: what they are optimizing FOR vs. what they are sacrificing right now.\n")
	b.WriteString("6. avatar_prompt: detailed visual description (~60 words), cinematic portrait style, grounded in their life stage and location.\n")
	b.WriteString("7. visual_style: primary_color and accent_color as hex, mood one of elevated/warm/sharp/grounded/ethereal/intense/calm, glow_intensity 0-1 (high if resolved, medium if conflicted, low if struggling).\n\n")
	b.WriteString(`Respond with JSON only, in this exact shape:
{"name": "Current Self", "optimization_goal": "...", "tone_of_voice": "...", "worldview": "...", "core_belief": "...", "trade_off": "...", "avatar_prompt": "...", "visual_style": {"primary_color": "#RRGGBB", "accent_color": "#RRGGBB", "mood": "...", "glow_intensity": 0.5}}`)
	return b.String()
}

func summarizeProfile(profile *types.UserProfile) string {
	var b strings.Builder
	b.WriteString("Life Situation:\n")
	fmt.Fprintf(&b, "- Location: %s\n", orNotSpecified(profile.LifeSituation.CurrentLocation))
	fmt.Fprintf(&b, "- Life stage: %s\n", orNotSpecified(profile.LifeSituation.LifeStage))
	fmt.Fprintf(&b, "- Responsibilities: %s\n", joinOrNotSpecified(profile.LifeSituation.MajorResponsibilities))
	b.WriteString("Relationships:\n")
	fmt.Fprintf(&b, "- Status: %s\n", orNotSpecified(profile.Personal.Relationships))
	fmt.Fprintf(&b, "- Key people: %s\n", joinOrNotSpecified(profile.Personal.KeyRelationships))
	b.WriteString("Work:\n")
	fmt.Fprintf(&b, "- Title: %s\n", orNotSpecified(profile.Career.JobTitle))
	fmt.Fprintf(&b, "- Industry: %s\n", orNotSpecified(profile.Career.Industry))
	fmt.Fprintf(&b, "- Goal: %s\n", orNotSpecified(profile.Career.CareerGoal))
	fmt.Fprintf(&b, "- Satisfaction: %s\n", orNotSpecified(profile.Career.JobSatisfaction))
	b.WriteString("Financial:\n")
	fmt.Fprintf(&b, "- Income: %s\n", orNotSpecified(profile.Financial.IncomeLevel))
	fmt.Fprintf(&b, "- Mindset: %s\n", orNotSpecified(profile.Financial.MoneyMindset))
	fmt.Fprintf(&b, "- Risk tolerance: %s\n", orNotSpecified(profile.Financial.RiskTolerance))
	b.WriteString("Psychology:\n")
	fmt.Fprintf(&b, "- Core values: %s\n", joinOrNotSpecified(profile.CoreValues))
	fmt.Fprintf(&b, "- Fears: %s\n", joinOrNotSpecified(profile.Fears))
	fmt.Fprintf(&b, "- Hidden tensions: %s\n", joinOrNotSpecified(profile.HiddenTensions))
	fmt.Fprintf(&b, "- Decision style: %s\n", orNotSpecified(profile.DecisionStyle))
	b.WriteString("Self Understanding:\n")
	fmt.Fprintf(&b, "- Self narrative: %s\n", orNotSpecified(profile.SelfNarrative))
	b.WriteString("Central Dilemma:\n")
	dilemma := strings.TrimSpace(profile.CurrentDilemma)
	if dilemma == "" {
		dilemma = "Not fully articulated yet"
	}
	fmt.Fprintf(&b, "%s\n", dilemma)
	return b.String()
}

func orNotSpecified(value string) string {
	if strings.TrimSpace(value) == "" {
		return "Not specified"
	}
	return value
}

func joinOrNotSpecified(values []string) string {
	if len(values) == 0 {
		return "Not specified"
	}
	return strings.Join(values, ", ")
}
