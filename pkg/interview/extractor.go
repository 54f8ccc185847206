package interview

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tomorrowyou/selftree/pkg/llm"
	"github.com/tomorrowyou/selftree/pkg/llm/parser"
	"github.com/tomorrowyou/selftree/pkg/orchestrator"
	"github.com/tomorrowyou/selftree/pkg/types"
)

// confidenceFloor is the section confidence at which freshly extracted data
// overrides what a previous extraction produced.
const confidenceFloor = 0.7

// historyWindow caps how many interview messages feed one extraction call.
const historyWindow = 20

// ExtractionResult is the outcome of one incremental extraction pass.
type ExtractionResult struct {
	Profile      *types.UserProfile
	Completeness float64
	Ready        bool
}

// ProfileExtractor performs incremental profile extraction from an interview
// transcript. Each pass merges fresh data into the working profile; an
// extraction failure returns an error and leaves the caller's profile
// untouched.
type ProfileExtractor struct {
	provider llm.Provider
	chatCfg  llm.ChatConfig
}

// NewProfileExtractor creates an extractor over a completion provider.
func NewProfileExtractor(provider llm.Provider, chatCfg llm.ChatConfig) *ProfileExtractor {
	return &ProfileExtractor{provider: provider, chatCfg: chatCfg}
}

// Extract analyzes the interview history and returns the merged profile.
// state.Profile may be nil on the first pass.
func (p *ProfileExtractor) Extract(ctx context.Context, state *State) (*ExtractionResult, error) {
	cfg := p.chatCfg
	cfg.JSONObject = true

	raw, err := p.provider.Complete(ctx, []llm.Message{
		llm.NewUserMessage(buildExtractionPrompt(state)),
	}, cfg)
	if err != nil {
		return nil, fmt.Errorf("interview: extraction completion: %w", err)
	}

	result, err := parser.FirstValid(raw, func(r gjson.Result) bool {
		return r.Get("psychology").Exists() || r.Get("career").Exists()
	})
	if err != nil {
		return nil, fmt.Errorf("interview: parse extraction response: %w", err)
	}

	merged := mergeProfile(state.Profile, result)
	completeness := orchestrator.Completeness(merged)
	return &ExtractionResult{
		Profile:      merged,
		Completeness: completeness,
		Ready:        completeness >= 0.5 && merged.CurrentDilemma != "",
	}, nil
}

func buildExtractionPrompt(state *State) string {
	history := state.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var b strings.Builder
	b.WriteString("As a profile extraction specialist, analyze the interview transcript below and extract/refine the user's profile across six life dimensions.\n\n")
	b.WriteString("INTERVIEW TRANSCRIPT:\n")
	for _, msg := range history {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(msg.Role), msg.Content)
	}
	if state.Profile != nil {
		b.WriteString("\nPreviously extracted profile exists; merge new information with it. Do not overwrite unless explicitly contradicted.\n")
	}
	b.WriteString(`
Guidelines:
1. Merge new information with existing data (don't overwrite unless explicitly contradicted)
2. Rate confidence 0-1 for each section (0=not mentioned, 1=explicitly stated and detailed)
3. Surface contradictions in hidden_tensions
4. Only mark dilemma_confidence >= 0.8 when the user has explicitly named the core decision
5. Preserve any data that remains relevant from previous extractions

Respond with JSON only, shaped as:
{"career": {"job_title": "", "industry": "", "seniority_level": "", "years_experience": 0, "current_company": "", "career_goal": "", "job_satisfaction": "", "main_challenges": []},
 "career_confidence": 0.0,
 "financial": {"income_level": "", "financial_goals": [], "money_mindset": "", "risk_tolerance": "", "main_financial_concern": ""},
 "financial_confidence": 0.0,
 "personal": {"hobbies": [], "daily_routines": [], "main_interests": [], "relationships": "", "key_relationships": [], "personal_values": []},
 "personal_confidence": 0.0,
 "health": {"physical_health": "", "mental_health": "", "sleep_quality": "", "exercise_frequency": "", "stress_level": "", "health_goals": []},
 "health_confidence": 0.0,
 "life_situation": {"current_location": "", "life_stage": "", "major_responsibilities": [], "recent_transitions": [], "upcoming_changes": []},
 "life_situation_confidence": 0.0,
 "psychology": {"core_values": [], "fears": [], "hidden_tensions": []},
 "psychology_confidence": 0.0,
 "decision_style": "", "decision_style_confidence": 0.0,
 "self_narrative": "", "self_narrative_confidence": 0.0,
 "current_dilemma": "", "dilemma_confidence": 0.0}
Use empty values for anything not mentioned.`)
	return b.String()
}

// mergeProfile folds one extraction pass into the working profile. High
// confidence sections override, everything else keeps earlier data.
func mergeProfile(existing *types.UserProfile, r gjson.Result) *types.UserProfile {
	merged := &types.UserProfile{}
	if existing != nil {
		*merged = *existing
	}

	psych := r.Get("psychology")
	psychConf := r.Get("psychology_confidence").Float()
	merged.CoreValues = mergeList(merged.CoreValues, stringList(psych.Get("core_values")), psychConf)
	merged.Fears = mergeList(merged.Fears, stringList(psych.Get("fears")), psychConf)
	merged.HiddenTensions = mergeList(merged.HiddenTensions, stringList(psych.Get("hidden_tensions")), psychConf)

	merged.DecisionStyle = mergeField(merged.DecisionStyle, r.Get("decision_style").String(), r.Get("decision_style_confidence").Float())
	merged.SelfNarrative = mergeField(merged.SelfNarrative, r.Get("self_narrative").String(), r.Get("self_narrative_confidence").Float())
	merged.CurrentDilemma = mergeField(merged.CurrentDilemma, r.Get("current_dilemma").String(), r.Get("dilemma_confidence").Float())

	career := r.Get("career")
	careerConf := r.Get("career_confidence").Float()
	merged.Career = types.CareerProfile{
		JobTitle:        mergeField(merged.Career.JobTitle, career.Get("job_title").String(), careerConf),
		Industry:        mergeField(merged.Career.Industry, career.Get("industry").String(), careerConf),
		SeniorityLevel:  mergeField(merged.Career.SeniorityLevel, career.Get("seniority_level").String(), careerConf),
		YearsExperience: mergeInt(merged.Career.YearsExperience, int(career.Get("years_experience").Int()), careerConf),
		CurrentCompany:  mergeField(merged.Career.CurrentCompany, career.Get("current_company").String(), careerConf),
		CareerGoal:      mergeField(merged.Career.CareerGoal, career.Get("career_goal").String(), careerConf),
		JobSatisfaction: mergeField(merged.Career.JobSatisfaction, career.Get("job_satisfaction").String(), careerConf),
		MainChallenges:  mergeList(merged.Career.MainChallenges, stringList(career.Get("main_challenges")), careerConf),
	}

	financial := r.Get("financial")
	financialConf := r.Get("financial_confidence").Float()
	merged.Financial = types.FinancialProfile{
		IncomeLevel:          mergeField(merged.Financial.IncomeLevel, financial.Get("income_level").String(), financialConf),
		FinancialGoals:       mergeList(merged.Financial.FinancialGoals, stringList(financial.Get("financial_goals")), financialConf),
		MoneyMindset:         mergeField(merged.Financial.MoneyMindset, financial.Get("money_mindset").String(), financialConf),
		RiskTolerance:        mergeField(merged.Financial.RiskTolerance, financial.Get("risk_tolerance").String(), financialConf),
		MainFinancialConcern: mergeField(merged.Financial.MainFinancialConcern, financial.Get("main_financial_concern").String(), financialConf),
	}

	personal := r.Get("personal")
	personalConf := r.Get("personal_confidence").Float()
	merged.Personal = types.PersonalProfile{
		Hobbies:          mergeList(merged.Personal.Hobbies, stringList(personal.Get("hobbies")), personalConf),
		DailyRoutines:    mergeList(merged.Personal.DailyRoutines, stringList(personal.Get("daily_routines")), personalConf),
		MainInterests:    mergeList(merged.Personal.MainInterests, stringList(personal.Get("main_interests")), personalConf),
		Relationships:    mergeField(merged.Personal.Relationships, personal.Get("relationships").String(), personalConf),
		KeyRelationships: mergeList(merged.Personal.KeyRelationships, stringList(personal.Get("key_relationships")), personalConf),
		PersonalValues:   mergeList(merged.Personal.PersonalValues, stringList(personal.Get("personal_values")), personalConf),
	}

	health := r.Get("health")
	healthConf := r.Get("health_confidence").Float()
	merged.Health = types.HealthProfile{
		PhysicalHealth:    mergeField(merged.Health.PhysicalHealth, health.Get("physical_health").String(), healthConf),
		MentalHealth:      mergeField(merged.Health.MentalHealth, health.Get("mental_health").String(), healthConf),
		SleepQuality:      mergeField(merged.Health.SleepQuality, health.Get("sleep_quality").String(), healthConf),
		ExerciseFrequency: mergeField(merged.Health.ExerciseFrequency, health.Get("exercise_frequency").String(), healthConf),
		StressLevel:       mergeField(merged.Health.StressLevel, health.Get("stress_level").String(), healthConf),
		HealthGoals:       mergeList(merged.Health.HealthGoals, stringList(health.Get("health_goals")), healthConf),
	}

	life := r.Get("life_situation")
	lifeConf := r.Get("life_situation_confidence").Float()
	merged.LifeSituation = types.LifeSituationProfile{
		CurrentLocation:       mergeField(merged.LifeSituation.CurrentLocation, life.Get("current_location").String(), lifeConf),
		LifeStage:             mergeField(merged.LifeSituation.LifeStage, life.Get("life_stage").String(), lifeConf),
		MajorResponsibilities: mergeList(merged.LifeSituation.MajorResponsibilities, stringList(life.Get("major_responsibilities")), lifeConf),
		RecentTransitions:     mergeList(merged.LifeSituation.RecentTransitions, stringList(life.Get("recent_transitions")), lifeConf),
		UpcomingChanges:       mergeList(merged.LifeSituation.UpcomingChanges, stringList(life.Get("upcoming_changes")), lifeConf),
	}

	return merged
}

func mergeField(existing, fresh string, confidence float64) string {
	fresh = strings.TrimSpace(fresh)
	if confidence >= confidenceFloor && fresh != "" {
		return fresh
	}
	if existing != "" {
		return existing
	}
	return fresh
}

func mergeInt(existing, fresh int, confidence float64) int {
	if confidence >= confidenceFloor && fresh > 0 {
		return fresh
	}
	if existing > 0 {
		return existing
	}
	return fresh
}

// mergeList unions the two lists when the fresh data is confident, keeping
// a stable sorted order so repeated extractions do not reshuffle content.
func mergeList(existing, fresh []string, confidence float64) []string {
	if confidence < confidenceFloor || len(fresh) == 0 {
		if len(existing) > 0 {
			return existing
		}
		return fresh
	}
	seen := make(map[string]bool, len(existing)+len(fresh))
	var out []string
	for _, item := range append(append([]string{}, existing...), fresh...) {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

func stringList(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	r.ForEach(func(_, item gjson.Result) bool {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}
