// Package resolver builds read-only conversation context from the memory
// tree. It never writes: corrupted or inconsistent tree state surfaces as a
// ResolutionError instead of being patched over.
package resolver

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tomorrowyou/selftree/pkg/storage"
	"github.com/tomorrowyou/selftree/pkg/types"
)

// ResolutionError indicates missing, malformed, or inconsistent tree state:
// absent files, unknown branches or nodes, parent cycles, or a branch with
// no persona anywhere on its path.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolver: %s: %v", e.Reason, e.Err)
	}
	return "resolver: " + e.Reason
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func resolutionErrorf(format string, args ...any) error {
	return &ResolutionError{Reason: fmt.Sprintf(format, args...)}
}

// SummaryLimits caps how many profile items the one-paragraph summary keeps.
type SummaryLimits struct {
	CoreValues     int
	Fears          int
	HiddenTensions int
}

// DefaultSummaryLimits matches the shipped runtime configuration.
var DefaultSummaryLimits = SummaryLimits{CoreValues: 4, Fears: 4, HiddenTensions: 3}

// Context is the read-only payload handed to prompt composition and the
// growth engine: the active persona, the root-to-head memory union, and a
// short profile summary.
//
// Facts and Notes are the ordered union along the path and are NOT
// deduplicated across nodes — later nodes may restate earlier facts.
type Context struct {
	SessionID      string
	BranchName     string
	Profile        types.UserProfile
	SelfCard       types.SelfCard
	Facts          []types.Fact
	Notes          []string
	PathNodeIDs    []string
	ProfileSummary string
}

// Resolver loads session and branch context from storage.
type Resolver struct {
	store  *storage.Store
	limits SummaryLimits
}

// New creates a resolver over the given store.
func New(store *storage.Store) *Resolver {
	return &Resolver{store: store, limits: DefaultSummaryLimits}
}

// NewWithLimits creates a resolver with custom profile summary limits.
func NewWithLimits(store *storage.Store, limits SummaryLimits) *Resolver {
	return &Resolver{store: store, limits: limits}
}

// Resolve builds the conversation context for one branch of a session.
func (r *Resolver) Resolve(sessionID, branchName string) (*Context, error) {
	session, err := r.loadSession(sessionID)
	if err != nil {
		return nil, err
	}
	branches, err := r.loadBranches(session)
	if err != nil {
		return nil, err
	}
	nodesByID, err := r.loadNodes(session)
	if err != nil {
		return nil, err
	}

	headNodeID, err := findHeadNodeID(branchName, branches)
	if err != nil {
		return nil, err
	}
	pathNodes, err := walkRootToHead(headNodeID, nodesByID)
	if err != nil {
		return nil, err
	}

	if session.UserProfile == nil {
		return nil, resolutionErrorf("session.userProfile is missing or invalid")
	}

	card, err := pickBranchSelfCard(pathNodes, session)
	if err != nil {
		return nil, err
	}

	pathIDs := make([]string, len(pathNodes))
	var facts []types.Fact
	var notes []string
	for i, node := range pathNodes {
		pathIDs[i] = node.ID
		facts = append(facts, node.Facts...)
		for _, note := range node.Notes {
			if strings.TrimSpace(note) != "" {
				notes = append(notes, note)
			}
		}
	}

	return &Context{
		SessionID:      sessionID,
		BranchName:     branchName,
		Profile:        *session.UserProfile,
		SelfCard:       *card,
		Facts:          facts,
		Notes:          notes,
		PathNodeIDs:    pathIDs,
		ProfileSummary: r.buildProfileSummary(session.UserProfile),
	}, nil
}

// FindBranchForSelf returns the name of the branch whose head node embeds
// the self card with the given id. A self that exists in the tree but is
// not the head of any branch is an error, not silently ignored.
func (r *Resolver) FindBranchForSelf(sessionID, selfID string) (string, error) {
	session, err := r.loadSession(sessionID)
	if err != nil {
		return "", err
	}
	nodesByID, err := r.loadNodes(session)
	if err != nil {
		return "", err
	}
	branches, err := r.loadBranches(session)
	if err != nil {
		return "", err
	}

	targetNodeID := ""
	for _, node := range nodesByID {
		if node.SelfCard != nil && node.SelfCard.ID == selfID {
			targetNodeID = node.ID
			break
		}
	}
	if targetNodeID == "" {
		return "", resolutionErrorf("no memory node found with selfCard.id == %q in session %q", selfID, sessionID)
	}

	for _, branch := range branches {
		if branch.HeadNodeID == targetNodeID {
			if branch.Name == "" {
				return "", resolutionErrorf("branch pointing to node %q has no valid name", targetNodeID)
			}
			return branch.Name, nil
		}
	}
	return "", resolutionErrorf("no branch found with headNodeId == %q (selfId=%q)", targetNodeID, selfID)
}

func (r *Resolver) loadSession(sessionID string) (*types.Session, error) {
	session, err := r.store.LoadSession(sessionID)
	if err != nil {
		return nil, &ResolutionError{Reason: "load session " + sessionID, Err: err}
	}
	return session, nil
}

// loadBranches prefers memory/branches.json and falls back to the inline
// session mirror written by older documents.
func (r *Resolver) loadBranches(session *types.Session) ([]types.Branch, error) {
	branches, err := r.store.LoadBranches(session.ID)
	if err == nil {
		return branches, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, &ResolutionError{Reason: "load branches", Err: err}
	}
	if len(session.MemoryBranches) > 0 {
		return session.MemoryBranches, nil
	}
	return nil, resolutionErrorf("no branch data found in memory/branches.json or session.memoryBranches")
}

// loadNodes prefers the per-node files and falls back to the inline mirror.
func (r *Resolver) loadNodes(session *types.Session) (map[string]types.MemoryNode, error) {
	byID := make(map[string]types.MemoryNode)
	nodes, err := r.store.ListNodes(session.ID)
	switch {
	case err == nil:
		for _, node := range nodes {
			byID[node.ID] = node
		}
	case errors.Is(err, os.ErrNotExist):
		for _, node := range session.MemoryNodes {
			if node.ID != "" {
				byID[node.ID] = node
			}
		}
	default:
		return nil, &ResolutionError{Reason: "load nodes", Err: err}
	}
	if len(byID) == 0 {
		return nil, resolutionErrorf("no memory nodes found in memory/nodes or session.memoryNodes")
	}
	return byID, nil
}

func findHeadNodeID(branchName string, branches []types.Branch) (string, error) {
	for _, branch := range branches {
		if branch.Name == branchName {
			if branch.HeadNodeID == "" {
				return "", resolutionErrorf("branch %q has no valid headNodeId", branchName)
			}
			return branch.HeadNodeID, nil
		}
	}
	return "", resolutionErrorf("branch %q not found", branchName)
}

// walkRootToHead follows parent ids from the head up, rejects cycles, and
// returns the chain root-first.
func walkRootToHead(headNodeID string, nodesByID map[string]types.MemoryNode) ([]types.MemoryNode, error) {
	var chain []types.MemoryNode
	seen := make(map[string]bool)
	nodeID := headNodeID

	for nodeID != "" {
		if seen[nodeID] {
			return nil, resolutionErrorf("cycle detected while walking memory nodes at %q", nodeID)
		}
		seen[nodeID] = true

		node, ok := nodesByID[nodeID]
		if !ok {
			return nil, resolutionErrorf("memory node %q not found", nodeID)
		}
		chain = append(chain, node)
		if node.ParentID == nil {
			break
		}
		if *node.ParentID == "" {
			return nil, resolutionErrorf("memory node %q has invalid parentId", nodeID)
		}
		nodeID = *node.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// pickBranchSelfCard takes the last node on the path carrying a persona,
// falling back to the session-level selected future self.
func pickBranchSelfCard(pathNodes []types.MemoryNode, session *types.Session) (*types.SelfCard, error) {
	for i := len(pathNodes) - 1; i >= 0; i-- {
		if pathNodes[i].SelfCard != nil {
			return pathNodes[i].SelfCard, nil
		}
	}
	if session.SelectedFutureSelf != nil {
		return session.SelectedFutureSelf, nil
	}
	return nil, resolutionErrorf("no self card found for selected branch")
}

func (r *Resolver) buildProfileSummary(profile *types.UserProfile) string {
	lines := []string{
		"Core values: " + joinLimited(profile.CoreValues, r.limits.CoreValues),
		"Primary fears: " + joinLimited(profile.Fears, r.limits.Fears),
		"Hidden tensions: " + joinLimited(profile.HiddenTensions, r.limits.HiddenTensions),
		"Decision style: " + orNone(profile.DecisionStyle),
		"Current dilemma: " + orNone(profile.CurrentDilemma),
	}
	return strings.Join(lines, "\n")
}

func joinLimited(values []string, limit int) string {
	var cleaned []string
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) == 0 {
		return "none"
	}
	if limit > 0 && len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return strings.Join(cleaned, "; ")
}

func orNone(value string) string {
	if s := strings.TrimSpace(value); s != "" {
		return s
	}
	return "none"
}
