// Package treeview renders and analyzes the exploration tree: ASCII
// visualization, path finding between selves, and per-branch statistics.
// Everything here is read-only over the session store.
package treeview

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tomorrowyou/selftree/pkg/storage"
	"github.com/tomorrowyou/selftree/pkg/types"
)

var (
	// ErrSelfNotFound is returned when a referenced self ID is not part
	// of the session's generated futures.
	ErrSelfNotFound = errors.New("treeview: self not found")

	// ErrNoPath is returned when two selves are not connected. Paths run
	// within one subtree only; the synthetic root is never traversed.
	ErrNoPath = errors.New("treeview: no path between selves")
)

// rootKey is the explorationPaths key holding the first-level futures.
const rootKey = "root"

// Viewer reads exploration trees from a session store.
type Viewer struct {
	store *storage.Store
}

// New creates a Viewer over the given store.
func New(store *storage.Store) *Viewer {
	return &Viewer{store: store}
}

// Statistics summarizes the shape and activity of one exploration tree.
type Statistics struct {
	TotalSelves               int
	MaxDepth                  int
	BranchesWithConversations int
	TotalConversationTurns    int
	DepthDistribution         map[int]int
	ConversationCounts        map[string]int
}

// BranchSummary describes one future self as a navigation target.
type BranchSummary struct {
	SelfID            string
	Name              string
	DepthLevel        int
	ConversationTurns int
	NumChildren       int
}

// SelfRef is a lightweight reference to a self in ancestor/sibling listings.
type SelfRef struct {
	SelfID     string
	Name       string
	DepthLevel int
}

// Statistics computes tree statistics for a session.
func (v *Viewer) Statistics(sessionID string) (*Statistics, error) {
	session, err := v.store.LoadSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("treeview: load session: %w", err)
	}
	counts, err := v.conversationCounts(sessionID)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		TotalSelves:        len(session.FutureSelvesFull),
		DepthDistribution:  make(map[int]int),
		ConversationCounts: counts,
	}
	for _, card := range session.FutureSelvesFull {
		stats.DepthDistribution[card.DepthLevel]++
		if card.DepthLevel > stats.MaxDepth {
			stats.MaxDepth = card.DepthLevel
		}
	}
	stats.BranchesWithConversations = len(counts)
	for _, n := range counts {
		stats.TotalConversationTurns += n
	}
	return stats, nil
}

// ListBranches lists every future self as a navigation target, sorted by
// depth then name. With withConversationsOnly set, selves that have no
// conversation turns are skipped.
func (v *Viewer) ListBranches(sessionID string, withConversationsOnly bool) ([]BranchSummary, error) {
	session, err := v.store.LoadSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("treeview: load session: %w", err)
	}
	counts, err := v.conversationCounts(sessionID)
	if err != nil {
		return nil, err
	}

	branches := make([]BranchSummary, 0, len(session.FutureSelvesFull))
	for id, card := range session.FutureSelvesFull {
		turns := counts[id]
		if withConversationsOnly && turns == 0 {
			continue
		}
		branches = append(branches, BranchSummary{
			SelfID:            id,
			Name:              card.Name,
			DepthLevel:        card.DepthLevel,
			ConversationTurns: turns,
			NumChildren:       len(card.ChildrenIDs),
		})
	}
	sort.Slice(branches, func(i, j int) bool {
		if branches[i].DepthLevel != branches[j].DepthLevel {
			return branches[i].DepthLevel < branches[j].DepthLevel
		}
		return branches[i].Name < branches[j].Name
	})
	return branches, nil
}

// Ancestors returns the ancestors of a self in root-to-parent order. The
// listing stops early if a parent link points outside the session.
func (v *Viewer) Ancestors(sessionID, selfID string) ([]SelfRef, error) {
	session, err := v.store.LoadSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("treeview: load session: %w", err)
	}
	card, ok := session.FutureSelvesFull[selfID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSelfNotFound, selfID)
	}

	var ancestors []SelfRef
	for card.ParentSelfID != nil {
		parent, ok := session.FutureSelvesFull[*card.ParentSelfID]
		if !ok {
			break
		}
		ancestors = append(ancestors, SelfRef{
			SelfID:     parent.ID,
			Name:       parent.Name,
			DepthLevel: parent.DepthLevel,
		})
		card = parent
	}
	// Walked parent-to-root; callers want root first.
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}
	return ancestors, nil
}

// Siblings returns the other children of a self's parent, in the parent's
// exploration-path order.
func (v *Viewer) Siblings(sessionID, selfID string) ([]SelfRef, error) {
	session, err := v.store.LoadSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("treeview: load session: %w", err)
	}
	card, ok := session.FutureSelvesFull[selfID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSelfNotFound, selfID)
	}

	parentKey := rootKey
	if card.ParentSelfID != nil {
		parentKey = *card.ParentSelfID
	}

	var siblings []SelfRef
	for _, siblingID := range session.ExplorationPaths[parentKey] {
		if siblingID == selfID {
			continue
		}
		if sibling, ok := session.FutureSelvesFull[siblingID]; ok {
			siblings = append(siblings, SelfRef{
				SelfID:     sibling.ID,
				Name:       sibling.Name,
				DepthLevel: sibling.DepthLevel,
			})
		}
	}
	return siblings, nil
}

// NavigationPath finds the path between two selves as a list of self IDs,
// inclusive of both endpoints. Movement follows parent/child edges only, so
// selves in different first-level subtrees are unreachable from each other.
func (v *Viewer) NavigationPath(sessionID, fromID, toID string) ([]string, error) {
	session, err := v.store.LoadSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("treeview: load session: %w", err)
	}
	if _, ok := session.FutureSelvesFull[fromID]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrSelfNotFound, fromID)
	}
	if _, ok := session.FutureSelvesFull[toID]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrSelfNotFound, toID)
	}

	graph := make(map[string][]string)
	for parentID, childIDs := range session.ExplorationPaths {
		for _, childID := range childIDs {
			graph[parentID] = append(graph[parentID], childID)
			graph[childID] = append(graph[childID], parentID)
		}
	}

	type step struct {
		id   string
		path []string
	}
	queue := []step{{id: fromID, path: []string{fromID}}}
	visited := map[string]bool{fromID: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.id == toID {
			return current.path, nil
		}
		for _, neighbor := range graph[current.id] {
			if visited[neighbor] || neighbor == rootKey {
				continue
			}
			visited[neighbor] = true
			next := append(append([]string{}, current.path...), neighbor)
			queue = append(queue, step{id: neighbor, path: next})
		}
	}
	return nil, fmt.Errorf("%w: %q to %q", ErrNoPath, fromID, toID)
}

// Render produces an ASCII view of the exploration tree. highlightID marks
// one self with an arrow; pass "" for no highlight. With showStats set, a
// statistics block is appended.
func (v *Viewer) Render(sessionID, highlightID string, showStats bool) (string, error) {
	session, err := v.store.LoadSession(sessionID)
	if err != nil {
		return "", fmt.Errorf("treeview: load session: %w", err)
	}
	if session.CurrentSelf == nil {
		return "No exploration tree yet. Complete onboarding first.", nil
	}

	var b strings.Builder
	rule := strings.Repeat("=", 70)
	b.WriteString(rule + "\n")
	b.WriteString("EXPLORATION TREE\n")
	b.WriteString(rule + "\n\n")

	currentName := session.CurrentSelf.Name
	if currentName == "" {
		currentName = "Current Self"
	}
	b.WriteString(currentName + " (Current)\n\n")

	rootChildren := session.ExplorationPaths[rootKey]
	for i, childID := range rootChildren {
		renderNode(&b, session, childID, highlightID, "", i == len(rootChildren)-1)
	}

	if showStats {
		stats, err := v.Statistics(sessionID)
		if err != nil {
			return "", err
		}
		writeStats(&b, stats)
	}

	b.WriteString(rule)
	return b.String(), nil
}

func renderNode(b *strings.Builder, session *types.Session, selfID, highlightID, prefix string, isLast bool) {
	card, ok := session.FutureSelvesFull[selfID]
	if !ok {
		return
	}

	connector := "├── "
	if isLast {
		connector = "└── "
	}
	marker := "  "
	if selfID == highlightID {
		marker = "→ "
	}

	line := fmt.Sprintf("%s%s%s%s (depth %d)", prefix, connector, marker, card.Name, card.DepthLevel)
	if len(card.ChildrenIDs) > 0 {
		line += fmt.Sprintf(" [+%d children]", len(card.ChildrenIDs))
	}
	b.WriteString(line + "\n")

	childIDs := session.ExplorationPaths[selfID]
	if len(childIDs) == 0 {
		return
	}
	extension := "│   "
	if isLast {
		extension = "    "
	}
	for i, childID := range childIDs {
		renderNode(b, session, childID, highlightID, prefix+extension, i == len(childIDs)-1)
	}
}

func writeStats(b *strings.Builder, stats *Statistics) {
	rule := strings.Repeat("-", 70)
	b.WriteString("\n" + rule + "\n")
	b.WriteString("STATISTICS\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(b, "Total Future Selves: %d\n", stats.TotalSelves)
	fmt.Fprintf(b, "Maximum Depth: %d\n", stats.MaxDepth)
	fmt.Fprintf(b, "Branches with Conversations: %d\n", stats.BranchesWithConversations)
	fmt.Fprintf(b, "Total Conversation Turns: %d\n", stats.TotalConversationTurns)
	b.WriteString("\n")

	if len(stats.DepthDistribution) > 0 {
		b.WriteString("Depth Distribution:\n")
		depths := make([]int, 0, len(stats.DepthDistribution))
		for depth := range stats.DepthDistribution {
			depths = append(depths, depth)
		}
		sort.Ints(depths)
		for _, depth := range depths {
			fmt.Fprintf(b, "  Depth %d: %d selves\n", depth, stats.DepthDistribution[depth])
		}
	}
}

// conversationCounts tallies conversation-phase transcript turns per self.
func (v *Viewer) conversationCounts(sessionID string) (map[string]int, error) {
	transcript, err := v.store.LoadTranscript(sessionID)
	if err != nil {
		return nil, fmt.Errorf("treeview: load transcript: %w", err)
	}
	counts := make(map[string]int)
	for _, entry := range transcript {
		if entry.Phase == types.PhaseConversation && entry.SelfID != nil && *entry.SelfID != "" {
			counts[*entry.SelfID]++
		}
	}
	return counts, nil
}
