// Package orchestrator sequences the pipeline: onboarding completion, root
// exploration, and conversation-driven branching. It validates preconditions
// against the persisted data shape, chains the memory tree and growth
// engines, and keeps the session document's bookkeeping consistent.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomorrowyou/selftree/pkg/config"
	"github.com/tomorrowyou/selftree/pkg/growth"
	"github.com/tomorrowyou/selftree/pkg/logging"
	"github.com/tomorrowyou/selftree/pkg/memtree"
	"github.com/tomorrowyou/selftree/pkg/storage"
	"github.com/tomorrowyou/selftree/pkg/types"
)

// minCompleteness is the profile completeness required to finish onboarding.
const minCompleteness = 0.5

var timeNow = time.Now // injected for testability

// InvalidStateError reports an operation attempted against a session whose
// data shape does not permit it.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "orchestrator: invalid state: " + e.Reason
}

func invalidStatef(format string, args ...any) error {
	return &InvalidStateError{Reason: fmt.Sprintf(format, args...)}
}

// Status describes the pipeline state of a session. Actions are recomputed
// from the data shape, never taken from the stored status label.
type Status struct {
	SessionID            string              `json:"sessionId"`
	Phase                string              `json:"phase"`
	AvailableActions     []string            `json:"availableActions"`
	CurrentSelf          *types.SelfCard     `json:"currentSelf"`
	FutureSelvesCount    int                 `json:"futureSelvesCount"`
	ExplorationDepth     int                 `json:"explorationDepth"`
	ConversationBranches []BranchOpportunity `json:"conversationBranches"`
}

// BranchOpportunity is a self the user has talked to, so branching deeper
// from it is available.
type BranchOpportunity struct {
	SelfID string `json:"selfId"`
	Name   string `json:"name"`
	Depth  int    `json:"depth"`
}

// Orchestrator coordinates multi-step flows across the engines.
type Orchestrator struct {
	store  *storage.Store
	tree   *memtree.Tree
	engine *growth.Engine
	cfg    *config.Config
	log    *logging.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig overrides the runtime configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithLogger overrides the component logger.
func WithLogger(log *logging.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New creates an orchestrator over a store and a growth engine.
func New(store *storage.Store, engine *growth.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		tree:   memtree.New(store),
		engine: engine,
		cfg:    config.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log, _ = logging.NewLogger("orchestrator")
	}
	return o
}

// CompleteOnboarding finishes the interview phase: it validates that the
// profile is complete enough and no current self exists yet, derives the
// current self persona, seeds the memory tree root, and moves the session to
// the ready-for-growth state. confirmedDilemma, when non-empty, overrides
// the interviewed dilemma before generation.
func (o *Orchestrator) CompleteOnboarding(
	ctx context.Context,
	sessionID, confirmedDilemma string,
) (*types.UserProfile, *types.SelfCard, error) {
	session, err := o.store.LoadSession(sessionID)
	if err != nil {
		return nil, nil, err
	}

	if session.HasCurrentSelf() {
		return nil, nil, invalidStatef("session %s already has a current self", sessionID)
	}
	if session.UserProfile == nil {
		return nil, nil, invalidStatef("session %s has no user profile; complete the interview first", sessionID)
	}

	completeness := Completeness(session.UserProfile)
	if completeness < minCompleteness {
		return nil, nil, invalidStatef(
			"profile completeness is %.0f%%; at least %.0f%% is required",
			completeness*100, minCompleteness*100)
	}

	if strings.TrimSpace(confirmedDilemma) != "" {
		session.UserProfile.CurrentDilemma = strings.TrimSpace(confirmedDilemma)
	}

	current, err := o.engine.GenerateCurrentSelf(ctx, session.UserProfile)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: current self generation: %w", err)
	}

	if _, err := o.tree.CreateRoot(sessionID, *current); err != nil {
		return nil, nil, fmt.Errorf("orchestrator: initialize memory tree: %w", err)
	}

	session.CurrentSelf = current
	session.Status = types.StatusReadyForGrowth
	if err := o.tree.SyncSessionMirrors(session); err != nil {
		return nil, nil, err
	}
	if err := o.store.SaveSession(session); err != nil {
		return nil, nil, err
	}

	o.log.Infof("session %s completed onboarding (completeness %.0f%%)", sessionID, completeness*100)
	return session.UserProfile, current, nil
}

// InitializeExploration generates the root-level future selves. It requires
// a current self and refuses to run once any futures exist — deeper
// exploration goes through BranchFromConversation.
func (o *Orchestrator) InitializeExploration(ctx context.Context, sessionID string, count int) ([]types.SelfCard, error) {
	session, err := o.store.LoadSession(sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasCurrentSelf() {
		return nil, invalidStatef("session %s has no current self; complete onboarding first", sessionID)
	}
	if session.HasFutureSelves() {
		return nil, invalidStatef("session %s already has future selves; branch from a conversation instead", sessionID)
	}
	return o.generate(ctx, session, nil, count)
}

// BranchFromConversation generates deeper futures under a parent self. The
// parent must exist and must have at least one conversation-phase transcript
// entry — branching requires having actually talked to the self.
func (o *Orchestrator) BranchFromConversation(
	ctx context.Context,
	sessionID, parentSelfID string,
	count int,
) ([]types.SelfCard, error) {
	session, err := o.store.LoadSession(sessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := session.FutureSelvesFull[parentSelfID]; !ok {
		return nil, invalidStatef("parent self %q not found in session %s", parentSelfID, sessionID)
	}

	transcript, err := o.store.LoadTranscript(sessionID)
	if err != nil {
		return nil, err
	}
	hasConversation := false
	for _, entry := range transcript {
		if entry.Phase == types.PhaseConversation && entry.SelfID != nil && *entry.SelfID == parentSelfID {
			hasConversation = true
			break
		}
	}
	if !hasConversation {
		return nil, invalidStatef("no conversation history with parent self %q; have a conversation before branching", parentSelfID)
	}

	return o.generate(ctx, session, &parentSelfID, count)
}

// generate runs one growth call and persists all of its bookkeeping: the
// session's future-self tree, the memory tree branches, the inline mirrors,
// and a selection-phase system transcript entry.
func (o *Orchestrator) generate(
	ctx context.Context,
	session *types.Session,
	parentSelfID *string,
	count int,
) ([]types.SelfCard, error) {
	if session.UserProfile == nil {
		return nil, invalidStatef("session %s has no user profile", session.ID)
	}
	count = o.cfg.ClampCount(count)

	gc := growth.GenerationContext{
		Profile: session.UserProfile,
		Count:   count,
	}
	if session.CurrentSelf != nil {
		gc.CurrentSelf = *session.CurrentSelf
	}

	parentKey := memtree.RootBranchName
	parentBranchName := memtree.RootBranchName
	levelDesc := "root level"
	var parentNodeID string

	if parentSelfID == nil {
		rootID, err := o.tree.FindRootNodeID(session.ID)
		if err != nil {
			return nil, err
		}
		parentNodeID = rootID
		gc.TimeHorizon = o.engine.TimeHorizonForDepth(1)
	} else {
		parent, ok := session.FutureSelvesFull[*parentSelfID]
		if !ok {
			return nil, invalidStatef("parent self %q not found in session %s", *parentSelfID, session.ID)
		}
		nodeID, err := o.tree.FindNodeForSelf(session.ID, parent.ID)
		if err != nil {
			return nil, err
		}
		summary, excerpts, err := growth.ResolveAncestorContext(o.store, session.ID, parent.ID, o.cfg.Excerpts)
		if err != nil {
			return nil, err
		}

		gc.ParentSelf = &parent
		gc.AncestorSummary = summary
		gc.ConversationExcerpts = excerpts
		gc.SiblingNames = growth.CollectSiblingNames(session, parent.ID)
		gc.Depth = parent.DepthLevel
		gc.TimeHorizon = o.engine.TimeHorizonForDepth(parent.DepthLevel + 1)

		parentKey = parent.ID
		parentNodeID = nodeID
		parentBranchName = memtree.Slugify(parent.Name)
		levelDesc = fmt.Sprintf("from '%s'", parent.Name)
	}

	cards, err := o.engine.Generate(ctx, gc)
	if err != nil {
		return nil, err
	}

	// Phase one: record the children themselves.
	childIDs := make([]string, 0, len(cards))
	names := make([]string, 0, len(cards))
	for _, card := range cards {
		session.FutureSelvesFull[card.ID] = card
		childIDs = append(childIDs, card.ID)
		names = append(names, card.Name)
	}
	session.ExplorationPaths[parentKey] = append(session.ExplorationPaths[parentKey], childIDs...)

	// Phase two: patch the parent's children list only after the whole batch
	// exists.
	if parentSelfID != nil {
		parent := session.FutureSelvesFull[*parentSelfID]
		parent.ChildrenIDs = append(parent.ChildrenIDs, childIDs...)
		session.FutureSelvesFull[*parentSelfID] = parent
	} else {
		session.FutureSelfOptions = cards
		session.Status = types.StatusSelection
	}

	if _, err := o.tree.GrowBranches(session.ID, parentNodeID, parentBranchName, cards); err != nil {
		return nil, fmt.Errorf("orchestrator: grow memory branches: %w", err)
	}
	if err := o.tree.SyncSessionMirrors(session); err != nil {
		return nil, err
	}
	if err := o.store.SaveSession(session); err != nil {
		return nil, err
	}

	if err := o.appendSelectionEntry(session.ID, len(cards), levelDesc, names); err != nil {
		// The generation itself succeeded; a transcript hiccup is not worth
		// failing the call over.
		o.log.Warnf("session %s: append selection entry: %v", session.ID, err)
	}

	o.log.Infof("session %s generated %d futures (%s)", session.ID, len(cards), levelDesc)
	return cards, nil
}

func (o *Orchestrator) appendSelectionEntry(sessionID string, count int, levelDesc string, names []string) error {
	transcript, err := o.store.LoadTranscript(sessionID)
	if err != nil {
		return err
	}
	transcript = append(transcript, types.TranscriptEntry{
		ID:         "te_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8],
		Turn:       len(transcript) + 1,
		Phase:      types.PhaseSelection,
		Role:       types.RoleSystem,
		BranchName: memtree.RootBranchName,
		Content:    fmt.Sprintf("Generated %d futures (%s): %s", count, levelDesc, strings.Join(names, ", ")),
		Timestamp:  unixSeconds(timeNow()),
	})
	return o.store.SaveTranscript(sessionID, transcript)
}

// PipelineStatus reports the session's phase and the actions its data shape
// currently permits.
func (o *Orchestrator) PipelineStatus(sessionID string) (*Status, error) {
	session, err := o.store.LoadSession(sessionID)
	if err != nil {
		return nil, err
	}
	transcript, err := o.store.LoadTranscript(sessionID)
	if err != nil {
		return nil, err
	}

	status := &Status{
		SessionID:   sessionID,
		Phase:       session.Status,
		CurrentSelf: session.CurrentSelf,
	}

	talkedTo := make(map[string]bool)
	switch {
	case !session.HasCurrentSelf():
		status.AvailableActions = append(status.AvailableActions, "complete_onboarding")
	case !session.HasFutureSelves():
		status.AvailableActions = append(status.AvailableActions, "initialize_exploration")
	default:
		status.AvailableActions = append(status.AvailableActions, "start_conversation")
		for _, entry := range transcript {
			if entry.Phase == types.PhaseConversation && entry.SelfID != nil && *entry.SelfID != "" {
				talkedTo[*entry.SelfID] = true
			}
		}
		if len(talkedTo) > 0 {
			status.AvailableActions = append(status.AvailableActions, "branch_from_conversation")
		}
	}

	status.FutureSelvesCount = len(session.FutureSelvesFull)
	for _, card := range session.FutureSelvesFull {
		if card.DepthLevel > status.ExplorationDepth {
			status.ExplorationDepth = card.DepthLevel
		}
	}
	for selfID := range talkedTo {
		if card, ok := session.FutureSelvesFull[selfID]; ok {
			status.ConversationBranches = append(status.ConversationBranches, BranchOpportunity{
				SelfID: selfID,
				Name:   card.Name,
				Depth:  card.DepthLevel,
			})
		}
	}
	return status, nil
}

// Completeness scores how much of the onboarding profile is filled in, as a
// 0-1 fraction. Seventeen fields are checked against a fixed denominator of
// twenty, so a fully filled profile scores 0.85 — full marks are not
// reachable and not required.
func Completeness(profile *types.UserProfile) float64 {
	if profile == nil {
		return 0
	}
	filled := 0
	checks := []bool{
		len(profile.CoreValues) > 0,
		len(profile.Fears) > 0,
		len(profile.HiddenTensions) > 0,
		profile.DecisionStyle != "",
		profile.SelfNarrative != "",
		profile.CurrentDilemma != "",
		profile.Career.JobTitle != "",
		profile.Career.CareerGoal != "",
		profile.Financial.IncomeLevel != "",
		profile.Financial.MoneyMindset != "",
		profile.Personal.Relationships != "",
		len(profile.Personal.Hobbies) > 0,
		len(profile.Personal.PersonalValues) > 0,
		profile.Health.MentalHealth != "",
		profile.Health.PhysicalHealth != "",
		profile.LifeSituation.CurrentLocation != "",
		profile.LifeSituation.LifeStage != "",
	}
	for _, ok := range checks {
		if ok {
			filled++
		}
	}
	score := float64(filled) / 20.0
	if score > 1 {
		score = 1
	}
	return score
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
