// Package types defines the domain model shared by every selftree package:
// persona cards, user profiles, memory tree nodes and branches, transcript
// entries, and the session document that ties them together.
//
// All structs carry camelCase JSON tags matching the persisted document
// format. Optional fields are pointers; Session.Normalize materializes
// missing maps and slices once at load time so consumers never need to
// nil-check collection fields.
package types

// Mood is the visual mood of a persona. It drives color palettes on the
// client and voice assignment during persona finalization.
type Mood string

const (
	MoodElevated Mood = "elevated"
	MoodWarm     Mood = "warm"
	MoodSharp    Mood = "sharp"
	MoodGrounded Mood = "grounded"
	MoodEthereal Mood = "ethereal"
	MoodIntense  Mood = "intense"
	MoodCalm     Mood = "calm"
)

// Moods lists every valid mood value.
var Moods = []Mood{
	MoodElevated, MoodWarm, MoodSharp, MoodGrounded,
	MoodEthereal, MoodIntense, MoodCalm,
}

// ValidMood reports whether m is one of the known mood values.
func ValidMood(m Mood) bool {
	for _, known := range Moods {
		if m == known {
			return true
		}
	}
	return false
}

// VisualStyle describes how a persona is rendered.
type VisualStyle struct {
	PrimaryColor  string  `json:"primaryColor"`
	AccentColor   string  `json:"accentColor"`
	Mood          Mood    `json:"mood"`
	GlowIntensity float64 `json:"glowIntensity"`
}

// SelfKind distinguishes the single current self from generated futures.
type SelfKind string

const (
	SelfCurrent SelfKind = "current"
	SelfFuture  SelfKind = "future"
)

// SelfCard is one persona: the current self or a hypothetical future self.
//
// DepthLevel is 0 for the current self and parent depth + 1 for every
// generated future. ChildrenIDs is populated only after the growth engine
// has finished persisting a batch of children.
type SelfCard struct {
	ID               string      `json:"id"`
	Kind             SelfKind    `json:"type"`
	Name             string      `json:"name"`
	OptimizationGoal string      `json:"optimizationGoal"`
	ToneOfVoice      string      `json:"toneOfVoice"`
	Worldview        string      `json:"worldview"`
	CoreBelief       string      `json:"coreBelief"`
	TradeOff         string      `json:"tradeOff"`
	AvatarPrompt     string      `json:"avatarPrompt"`
	AvatarURL        *string     `json:"avatarUrl"`
	VisualStyle      VisualStyle `json:"visualStyle"`
	VoiceID          string      `json:"voiceId"`
	ParentSelfID     *string     `json:"parentSelfId"`
	DepthLevel       int         `json:"depthLevel"`
	ChildrenIDs      []string    `json:"childrenIds"`
}

// CareerProfile captures work-related onboarding data.
type CareerProfile struct {
	JobTitle        string   `json:"jobTitle"`
	Industry        string   `json:"industry"`
	SeniorityLevel  string   `json:"seniorityLevel"`
	YearsExperience int      `json:"yearsExperience"`
	CurrentCompany  string   `json:"currentCompany"`
	CareerGoal      string   `json:"careerGoal"`
	JobSatisfaction string   `json:"jobSatisfaction"`
	MainChallenges  []string `json:"mainChallenges"`
}

// FinancialProfile captures money-related onboarding data.
type FinancialProfile struct {
	IncomeLevel          string   `json:"incomeLevel"`
	FinancialGoals       []string `json:"financialGoals"`
	MoneyMindset         string   `json:"moneyMindset"`
	RiskTolerance        string   `json:"riskTolerance"`
	MainFinancialConcern string   `json:"mainFinancialConcern"`
}

// PersonalProfile captures relationships, interests, and values.
type PersonalProfile struct {
	Hobbies          []string `json:"hobbies"`
	DailyRoutines    []string `json:"dailyRoutines"`
	MainInterests    []string `json:"mainInterests"`
	Relationships    string   `json:"relationships"`
	KeyRelationships []string `json:"keyRelationships"`
	PersonalValues   []string `json:"personalValues"`
}

// HealthProfile captures physical and mental health onboarding data.
type HealthProfile struct {
	PhysicalHealth    string   `json:"physicalHealth"`
	MentalHealth      string   `json:"mentalHealth"`
	SleepQuality      string   `json:"sleepQuality"`
	ExerciseFrequency string   `json:"exerciseFrequency"`
	StressLevel       string   `json:"stressLevel"`
	HealthGoals       []string `json:"healthGoals"`
}

// LifeSituationProfile captures location, life stage, and transitions.
type LifeSituationProfile struct {
	CurrentLocation       string   `json:"currentLocation"`
	LifeStage             string   `json:"lifeStage"`
	MajorResponsibilities []string `json:"majorResponsibilities"`
	RecentTransitions     []string `json:"recentTransitions"`
	UpcomingChanges       []string `json:"upcomingChanges"`
}

// UserProfile is the psychological and situational profile built during
// onboarding. The core psychology fields drive persona generation; the
// extended sections feed the completeness heuristic.
type UserProfile struct {
	ID             string               `json:"id"`
	CoreValues     []string             `json:"coreValues"`
	Fears          []string             `json:"fears"`
	HiddenTensions []string             `json:"hiddenTensions"`
	DecisionStyle  string               `json:"decisionStyle"`
	SelfNarrative  string               `json:"selfNarrative"`
	CurrentDilemma string               `json:"currentDilemma"`
	Career         CareerProfile        `json:"career"`
	Financial      FinancialProfile     `json:"financial"`
	Personal       PersonalProfile      `json:"personal"`
	Health         HealthProfile        `json:"health"`
	LifeSituation  LifeSituationProfile `json:"lifeSituation"`
}

// Phase identifies which stage of the pipeline a transcript entry belongs to.
type Phase string

const (
	PhaseInterview    Phase = "interview"
	PhaseSelection    Phase = "selection"
	PhaseConversation Phase = "conversation"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleMemory    Role = "memory"
	RoleSystem    Role = "system"
)

// TranscriptEntry is one row of the ordered session transcript. Turn numbers
// are contiguous starting at 1 and are renumbered after any trim.
type TranscriptEntry struct {
	ID         string  `json:"id"`
	Turn       int     `json:"turn"`
	Phase      Phase   `json:"phase"`
	Role       Role    `json:"role"`
	SelfID     *string `json:"selfId"`
	SelfName   *string `json:"selfName"`
	BranchName string  `json:"branchName"`
	Content    string  `json:"content"`
	Timestamp  float64 `json:"timestamp"`
}

// Fact is one accumulated memory fact on a tree node.
type Fact struct {
	ID          string  `json:"id"`
	Fact        string  `json:"fact"`
	Source      string  `json:"source"`
	ExtractedAt float64 `json:"extractedAt"`
	Evidence    string  `json:"evidence,omitempty"`
	Rationale   string  `json:"rationale,omitempty"`
}

// MemoryNode is one point in the memory tree: a persona snapshot plus the
// facts and notes accumulated at that point. ParentID is nil only for the
// root node.
type MemoryNode struct {
	ID          string    `json:"id"`
	ParentID    *string   `json:"parentId"`
	BranchLabel string    `json:"branchLabel"`
	Facts       []Fact    `json:"facts"`
	Notes       []string  `json:"notes"`
	SelfCard    *SelfCard `json:"selfCard"`
	CreatedAt   float64   `json:"createdAt"`
}

// Branch names a path through the memory tree and points at its head node.
type Branch struct {
	Name             string  `json:"name"`
	HeadNodeID       string  `json:"headNodeId"`
	ParentBranchName *string `json:"parentBranchName"`
}

// Insight is a structured observation extracted from conversation text.
// Types are free-form — the extraction prompt imposes no taxonomy.
type Insight struct {
	Type      string `json:"type"`
	Element   string `json:"element"`
	Evidence  string `json:"evidence"`
	Rationale string `json:"why_it_matters"`
}

// Session status values. Status is advisory: the orchestrator recomputes
// available actions from the data shape and never trusts this label alone.
const (
	StatusOnboarding     = "onboarding"
	StatusReadyForGrowth = "ready_for_future_self_generation"
	StatusSelection      = "selection"
)

// Session is the whole-document session record. Every mutation rewrites the
// full document; there is no partial-patch format.
//
// MemoryNodes and MemoryBranches are inline mirrors of the memory/ files,
// kept for older documents that predate per-node files. The resolver falls
// back to them when the files are absent.
type Session struct {
	ID                 string              `json:"id"`
	Status             string              `json:"status"`
	UserProfile        *UserProfile        `json:"userProfile"`
	CurrentSelf        *SelfCard           `json:"currentSelf"`
	SelectedFutureSelf *SelfCard           `json:"selectedFutureSelf,omitempty"`
	FutureSelfOptions  []SelfCard          `json:"futureSelfOptions"`
	FutureSelvesFull   map[string]SelfCard `json:"futureSelvesFull"`
	ExplorationPaths   map[string][]string `json:"explorationPaths"`
	Transcript         []TranscriptEntry   `json:"transcript"`
	MemoryNodes        []MemoryNode        `json:"memoryNodes,omitempty"`
	MemoryBranches     []Branch            `json:"memoryBranches,omitempty"`
	CreatedAt          float64             `json:"createdAt"`
	UpdatedAt          float64             `json:"updatedAt"`
}

// Normalize fills in optional and legacy fields after a raw JSON load so
// consumers can index maps and append to slices without nil checks.
func (s *Session) Normalize() {
	if s.Status == "" {
		s.Status = StatusOnboarding
	}
	if s.FutureSelvesFull == nil {
		s.FutureSelvesFull = make(map[string]SelfCard)
	}
	if s.ExplorationPaths == nil {
		s.ExplorationPaths = make(map[string][]string)
	}
	if s.FutureSelfOptions == nil {
		s.FutureSelfOptions = []SelfCard{}
	}
	if s.Transcript == nil {
		s.Transcript = []TranscriptEntry{}
	}
}

// HasCurrentSelf reports whether onboarding has produced a current self.
func (s *Session) HasCurrentSelf() bool {
	return s.CurrentSelf != nil && s.CurrentSelf.ID != ""
}

// HasFutureSelves reports whether any future selves have been generated.
func (s *Session) HasFutureSelves() bool {
	return len(s.FutureSelvesFull) > 0
}
