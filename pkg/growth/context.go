package growth

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/tomorrowyou/selftree/pkg/config"
	"github.com/tomorrowyou/selftree/pkg/storage"
	"github.com/tomorrowyou/selftree/pkg/types"
)

// ResolveAncestorContext walks the memory tree from a parent self up to the
// root and returns the ancestor summary plus conversation excerpts for the
// generation prompt.
//
// The summary has one line per ancestor, oldest first, excluding the parent
// itself since the caller already passes the full parent card. Excerpts are
// conversation-phase transcript entries spoken with any ancestor, capped
// globally and per ancestor, newest preferred, returned in chronological
// order. User and assistant entries win over memory entries when the caps
// are tight.
func ResolveAncestorContext(
	store *storage.Store,
	sessionID, parentSelfID string,
	limits config.ExcerptSettings,
) (string, []string, error) {
	nodes, err := store.ListNodes(sessionID)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("growth: list nodes: %w", err)
	}

	nodesByID := make(map[string]types.MemoryNode, len(nodes))
	nodesBySelfID := make(map[string]types.MemoryNode)
	for _, node := range nodes {
		nodesByID[node.ID] = node
		if node.SelfCard != nil && node.SelfCard.ID != "" {
			nodesBySelfID[node.SelfCard.ID] = node
		}
	}

	// Walk parent → root, newest first, rejecting cycles.
	var chain []types.SelfCard
	visited := make(map[string]bool)
	current, ok := nodesBySelfID[parentSelfID]
	for ok && !visited[current.ID] {
		visited[current.ID] = true
		if current.SelfCard != nil {
			chain = append(chain, *current.SelfCard)
		}
		if current.ParentID == nil {
			break
		}
		current, ok = nodesByID[*current.ParentID]
	}

	// Oldest first: root → parent.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	var summaryLines []string
	if len(chain) > 1 {
		for _, card := range chain[:len(chain)-1] {
			summaryLines = append(summaryLines,
				fmt.Sprintf("→ %s: optimized for %s, traded %s", card.Name, card.OptimizationGoal, card.TradeOff))
		}
	}
	summary := ""
	for i, line := range summaryLines {
		if i > 0 {
			summary += "\n"
		}
		summary += line
	}

	excerpts, err := collectExcerpts(store, sessionID, chain, limits)
	if err != nil {
		return "", nil, err
	}
	return summary, excerpts, nil
}

// collectExcerpts selects conversation excerpts involving ancestors, newest
// first under the caps, then restores chronological order.
func collectExcerpts(
	store *storage.Store,
	sessionID string,
	chain []types.SelfCard,
	limits config.ExcerptSettings,
) ([]string, error) {
	if len(chain) == 0 {
		return nil, nil
	}

	transcript, err := store.LoadTranscript(sessionID)
	if err != nil {
		return nil, fmt.Errorf("growth: load transcript: %w", err)
	}

	ancestorNames := make(map[string]bool, len(chain))
	for _, card := range chain {
		if card.Name != "" {
			ancestorNames[card.Name] = true
		}
	}
	allowed := make(map[types.Role]bool, len(limits.AllowedRoles))
	for _, role := range limits.AllowedRoles {
		allowed[types.Role(role)] = true
	}

	type candidate struct {
		index int
		entry types.TranscriptEntry
	}
	var candidates []candidate
	for i, entry := range transcript {
		if entry.Phase != types.PhaseConversation || !allowed[entry.Role] {
			continue
		}
		if entry.SelfName == nil || !ancestorNames[*entry.SelfName] {
			continue
		}
		candidates = append(candidates, candidate{index: i, entry: entry})
	}

	// Two passes, newest first: direct speech wins the cap budget, memory
	// entries fill whatever remains.
	perAncestor := make(map[string]int)
	var selected []candidate
	take := func(directOnly bool) {
		for i := len(candidates) - 1; i >= 0; i-- {
			if len(selected) >= limits.MaxTotal {
				return
			}
			c := candidates[i]
			direct := c.entry.Role == types.RoleUser || c.entry.Role == types.RoleAssistant
			if direct != directOnly {
				continue
			}
			name := *c.entry.SelfName
			if perAncestor[name] >= limits.MaxPerAncestor {
				continue
			}
			perAncestor[name]++
			selected = append(selected, c)
		}
	}
	take(true)
	take(false)

	sort.Slice(selected, func(i, j int) bool { return selected[i].index < selected[j].index })

	excerpts := make([]string, 0, len(selected))
	for _, c := range selected {
		excerpts = append(excerpts, fmt.Sprintf("[%s ↔ %s]: %s", c.entry.Role, *c.entry.SelfName, c.entry.Content))
	}
	return excerpts, nil
}

// CollectSiblingNames returns the names of selves already generated under
// the same parent key ("root" or a parent self ID), used to steer new output
// away from repeated themes.
func CollectSiblingNames(session *types.Session, parentKey string) []string {
	var names []string
	for _, childID := range session.ExplorationPaths[parentKey] {
		if card, ok := session.FutureSelvesFull[childID]; ok && card.Name != "" {
			names = append(names, card.Name)
		}
	}
	return names
}
