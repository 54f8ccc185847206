// Package recorder persists conversation turns into the session transcript
// and, on demand, extracts structured insights from recent conversation and
// feeds them back into the memory tree.
//
// Transcript writes happen after a reply is fully assembled, never mid-turn.
// Insight extraction is best-effort: RecordTurn logs failures and keeps the
// conversation path alive no matter what storage or the model does.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomorrowyou/selftree/pkg/config"
	"github.com/tomorrowyou/selftree/pkg/llm"
	"github.com/tomorrowyou/selftree/pkg/logging"
	"github.com/tomorrowyou/selftree/pkg/memtree"
	"github.com/tomorrowyou/selftree/pkg/storage"
	"github.com/tomorrowyou/selftree/pkg/types"
)

// insightNotePrefix marks notes and memory-role transcript entries written by
// insight extraction, so a later run can replace them wholesale.
const insightNotePrefix = "Transcript insight ["

// insightFactSource tags facts written by insight extraction.
const insightFactSource = "transcript-analysis"

var timeNow = time.Now // injected for testability

// Turn identifies one completed conversation exchange on a branch.
type Turn struct {
	SessionID  string
	BranchName string
	SelfID     *string
	SelfName   *string
	UserText   string
	Assistant  string
}

// Recorder appends transcript turns and runs insight extraction.
type Recorder struct {
	store    *storage.Store
	tree     *memtree.Tree
	provider llm.Provider
	settings config.MemorySettings
	chatCfg  llm.ChatConfig
	log      *logging.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSettings overrides the memory settings.
func WithSettings(settings config.MemorySettings) Option {
	return func(r *Recorder) { r.settings = settings }
}

// WithChatConfig overrides the completion parameters used for extraction.
func WithChatConfig(cfg llm.ChatConfig) Option {
	return func(r *Recorder) { r.chatCfg = cfg }
}

// WithLogger overrides the component logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Recorder) { r.log = log }
}

// New creates a Recorder over the given store and completion provider.
// The provider may be nil when extraction is disabled.
func New(store *storage.Store, provider llm.Provider, opts ...Option) *Recorder {
	r := &Recorder{
		store:    store,
		tree:     memtree.New(store),
		provider: provider,
		settings: config.Default().Memory,
		chatCfg:  llm.DefaultChatConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log, _ = logging.NewLogger("recorder")
	}
	return r
}

// AppendTurn appends a user and an assistant transcript entry for one
// completed exchange. If the two most recent entries already record the same
// (content, self id, branch) pair it does nothing, so retried requests do not
// duplicate turns. The transcript is then trimmed to the configured window
// and the surviving entries are renumbered from 1.
func (r *Recorder) AppendTurn(turn Turn) error {
	if !r.settings.Enabled {
		return nil
	}
	userText := strings.TrimSpace(turn.UserText)
	assistantText := strings.TrimSpace(turn.Assistant)
	if userText == "" || assistantText == "" {
		return nil
	}

	transcript, err := r.store.LoadTranscript(turn.SessionID)
	if err != nil {
		return fmt.Errorf("recorder: load transcript: %w", err)
	}

	if isDuplicatePair(transcript, turn, userText, assistantText) {
		return nil
	}

	now := unixSeconds(timeNow())
	transcript = append(transcript,
		newEntry(types.RoleUser, userText, turn, now),
		newEntry(types.RoleAssistant, assistantText, turn, now),
	)
	transcript = trimAndRenumber(transcript, r.settings.MaxTranscriptEntries)

	if err := r.store.SaveTranscript(turn.SessionID, transcript); err != nil {
		return fmt.Errorf("recorder: save transcript: %w", err)
	}
	return nil
}

// RecordTurn is the conversation-path entry point: it appends the turn, then
// runs insight extraction when a credential is present. Both steps are
// best-effort — failures are logged and swallowed so an already-computed
// reply is never discarded.
func (r *Recorder) RecordTurn(ctx context.Context, turn Turn, credential string) {
	if err := r.AppendTurn(turn); err != nil {
		r.log.Errorf("append turn for session %s branch %s: %v", turn.SessionID, turn.BranchName, err)
	}
	insights, err := r.AnalyzeAndPersistInsights(ctx, turn.SessionID, turn.BranchName, turn.SelfID, turn.SelfName, credential)
	if err != nil {
		r.log.Errorf("insight extraction for session %s branch %s: %v", turn.SessionID, turn.BranchName, err)
		return
	}
	if len(insights) > 0 {
		r.log.Debugf("session %s branch %s: persisted %d insights", turn.SessionID, turn.BranchName, len(insights))
	}
}

// AnalyzeAndPersistInsights extracts insights from the recent conversation on
// a branch and persists them by full replacement: previously extracted facts,
// notes, and memory-role transcript entries for this branch are removed
// before the fresh set is written.
//
// It is a no-op when extraction is disabled, no credential is supplied, fewer
// than two conversation entries exist for the branch, or nothing has been
// said since the last successful extraction.
func (r *Recorder) AnalyzeAndPersistInsights(
	ctx context.Context,
	sessionID, branchName string,
	selfID, selfName *string,
	credential string,
) ([]types.Insight, error) {
	if !r.settings.Enabled || credential == "" || r.provider == nil {
		return nil, nil
	}

	transcript, err := r.store.LoadTranscript(sessionID)
	if err != nil {
		return nil, fmt.Errorf("recorder: load transcript: %w", err)
	}

	conversation := selectConversationEntries(transcript, branchName, selfID)
	if len(conversation) < 2 {
		return nil, nil
	}
	if !hasUnanalyzedConversation(transcript, conversation, branchName, selfID) {
		return nil, nil
	}

	window := conversation
	if len(window) > r.settings.AnalysisWindow {
		window = window[len(window)-r.settings.AnalysisWindow:]
	}

	insights, err := r.extractInsights(ctx, window)
	if err != nil {
		return nil, err
	}

	if err := r.persistInsights(sessionID, branchName, selfID, selfName, insights); err != nil {
		return nil, err
	}
	return insights, nil
}

// persistInsights replaces the extraction-sourced facts, notes, and
// memory-role transcript entries for a branch with the fresh insight set.
func (r *Recorder) persistInsights(
	sessionID, branchName string,
	selfID, selfName *string,
	insights []types.Insight,
) error {
	now := unixSeconds(timeNow())

	branches, err := r.store.LoadBranches(sessionID)
	if err != nil {
		return fmt.Errorf("recorder: load branches: %w", err)
	}
	var headNodeID string
	for _, branch := range branches {
		if branch.Name == branchName {
			headNodeID = branch.HeadNodeID
			break
		}
	}
	if headNodeID == "" {
		return fmt.Errorf("recorder: no branch named %q", branchName)
	}

	node, err := r.store.LoadNode(sessionID, headNodeID)
	if err != nil {
		return fmt.Errorf("recorder: load head node %s: %w", headNodeID, err)
	}

	facts := node.Facts[:0:0]
	for _, fact := range node.Facts {
		if fact.Source != insightFactSource {
			facts = append(facts, fact)
		}
	}
	notes := node.Notes[:0:0]
	for _, note := range node.Notes {
		if !strings.HasPrefix(note, insightNotePrefix) {
			notes = append(notes, note)
		}
	}

	for _, insight := range insights {
		facts = append(facts, types.Fact{
			ID:          newFactID(),
			Fact:        fmt.Sprintf("%s: %s", insight.Type, insight.Element),
			Source:      insightFactSource,
			ExtractedAt: now,
			Evidence:    insight.Evidence,
			Rationale:   insight.Rationale,
		})
		notes = append(notes, insightNote(insight))
	}

	node.Facts = keepNewestFacts(facts, r.settings.MaxFactsPerNode)
	node.Notes = keepNewestNotes(notes, r.settings.MaxNotesPerNode)

	if err := r.store.SaveNode(sessionID, node); err != nil {
		return fmt.Errorf("recorder: save head node %s: %w", headNodeID, err)
	}

	if err := r.rewriteInsightEntries(sessionID, branchName, selfID, selfName, insights, now); err != nil {
		return err
	}

	if err := r.syncSessionMirrors(sessionID); err != nil {
		return err
	}
	return nil
}

// rewriteInsightEntries drops the memory-role insight entries for this branch
// and appends one fresh memory entry per insight.
func (r *Recorder) rewriteInsightEntries(
	sessionID, branchName string,
	selfID, selfName *string,
	insights []types.Insight,
	timestamp float64,
) error {
	transcript, err := r.store.LoadTranscript(sessionID)
	if err != nil {
		return fmt.Errorf("recorder: load transcript: %w", err)
	}

	kept := transcript[:0:0]
	for _, entry := range transcript {
		if entry.Role == types.RoleMemory &&
			entry.BranchName == branchName &&
			sameSelf(entry.SelfID, selfID) &&
			strings.HasPrefix(entry.Content, insightNotePrefix) {
			continue
		}
		kept = append(kept, entry)
	}

	turn := Turn{SessionID: sessionID, BranchName: branchName, SelfID: selfID, SelfName: selfName}
	for _, insight := range insights {
		kept = append(kept, newEntry(types.RoleMemory, insightNote(insight), turn, timestamp))
	}
	kept = trimAndRenumber(kept, r.settings.MaxTranscriptEntries)

	if err := r.store.SaveTranscript(sessionID, kept); err != nil {
		return fmt.Errorf("recorder: save transcript: %w", err)
	}
	return nil
}

func (r *Recorder) syncSessionMirrors(sessionID string) error {
	session, err := r.store.LoadSession(sessionID)
	if err != nil {
		return fmt.Errorf("recorder: load session: %w", err)
	}
	if err := r.tree.SyncSessionMirrors(session); err != nil {
		return fmt.Errorf("recorder: sync session mirrors: %w", err)
	}
	if err := r.store.SaveSession(session); err != nil {
		return fmt.Errorf("recorder: save session: %w", err)
	}
	return nil
}

// selectConversationEntries returns the conversation-phase user/assistant
// entries for a branch in transcript order.
func selectConversationEntries(transcript []types.TranscriptEntry, branchName string, selfID *string) []types.TranscriptEntry {
	var out []types.TranscriptEntry
	for _, entry := range transcript {
		if entry.Phase != types.PhaseConversation || entry.BranchName != branchName {
			continue
		}
		if !sameSelf(entry.SelfID, selfID) {
			continue
		}
		if entry.Role != types.RoleUser && entry.Role != types.RoleAssistant {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// hasUnanalyzedConversation reports whether the newest conversation entry is
// newer than the newest previously written insight entry for the branch.
func hasUnanalyzedConversation(
	transcript, conversation []types.TranscriptEntry,
	branchName string,
	selfID *string,
) bool {
	lastConversationTurn := conversation[len(conversation)-1].Turn
	lastInsightTurn := 0
	for _, entry := range transcript {
		if entry.Role == types.RoleMemory &&
			entry.BranchName == branchName &&
			sameSelf(entry.SelfID, selfID) &&
			strings.HasPrefix(entry.Content, insightNotePrefix) &&
			entry.Turn > lastInsightTurn {
			lastInsightTurn = entry.Turn
		}
	}
	return lastConversationTurn > lastInsightTurn
}

func isDuplicatePair(transcript []types.TranscriptEntry, turn Turn, userText, assistantText string) bool {
	if len(transcript) < 2 {
		return false
	}
	prevUser := transcript[len(transcript)-2]
	prevAssistant := transcript[len(transcript)-1]
	return prevUser.Phase == types.PhaseConversation &&
		prevUser.Role == types.RoleUser &&
		prevUser.Content == userText &&
		prevUser.BranchName == turn.BranchName &&
		sameSelf(prevUser.SelfID, turn.SelfID) &&
		prevAssistant.Phase == types.PhaseConversation &&
		prevAssistant.Role == types.RoleAssistant &&
		prevAssistant.Content == assistantText &&
		prevAssistant.BranchName == turn.BranchName &&
		sameSelf(prevAssistant.SelfID, turn.SelfID)
}

// trimAndRenumber keeps the newest max entries and renumbers the survivors
// from 1 so turn numbers stay dense after a trim.
func trimAndRenumber(transcript []types.TranscriptEntry, max int) []types.TranscriptEntry {
	if max > 0 && len(transcript) > max {
		transcript = transcript[len(transcript)-max:]
	}
	for i := range transcript {
		transcript[i].Turn = i + 1
	}
	return transcript
}

func newEntry(role types.Role, content string, turn Turn, timestamp float64) types.TranscriptEntry {
	return types.TranscriptEntry{
		ID:         "te_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12],
		Phase:      types.PhaseConversation,
		Role:       role,
		SelfID:     turn.SelfID,
		SelfName:   turn.SelfName,
		BranchName: turn.BranchName,
		Content:    content,
		Timestamp:  timestamp,
	}
}

func insightNote(insight types.Insight) string {
	return fmt.Sprintf("%s%s] %s", insightNotePrefix, insight.Type, insight.Element)
}

func sameSelf(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func keepNewestFacts(facts []types.Fact, max int) []types.Fact {
	if max > 0 && len(facts) > max {
		return facts[len(facts)-max:]
	}
	return facts
}

func keepNewestNotes(notes []string, max int) []string {
	if max > 0 && len(notes) > max {
		return notes[len(notes)-max:]
	}
	return notes
}

func newFactID() string {
	return "fact_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
