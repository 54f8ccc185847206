// Package memtree is the durable memory tree store: nodes keyed by id with
// parent references, plus named branches pointing at head nodes. It is the
// only package that creates tree structure; readers go through the resolver.
package memtree

import (
	"errors"
	"fmt"

	"github.com/tomorrowyou/selftree/pkg/storage"
	"github.com/tomorrowyou/selftree/pkg/types"
)

var (
	ErrBranchNotFound = errors.New("memtree: branch not found")
	ErrRootExists     = errors.New("memtree: root node already exists")
)

// RootNodeID is the fixed id of the sole root node in every session tree.
const RootNodeID = "root_node"

// RootBranchName is the name of the branch whose head is the root node.
const RootBranchName = "root"

// Tree persists memory nodes and branches for sessions backed by a store.
type Tree struct {
	store *storage.Store
}

// New creates a tree layer over the given store.
func New(store *storage.Store) *Tree {
	return &Tree{store: store}
}

// CreateRoot writes the sole root node (nil parent) and the "root" branch
// for a session, seeding the node with facts summarizing the current self.
// Creating a second root is an error.
func (t *Tree) CreateRoot(sessionID string, current types.SelfCard) (*types.MemoryNode, error) {
	if _, err := t.store.LoadNode(sessionID, RootNodeID); err == nil {
		return nil, fmt.Errorf("%w: session %s", ErrRootExists, sessionID)
	} else if !errors.Is(err, storage.ErrNodeNotFound) {
		return nil, err
	}

	now := nowSeconds()
	card := current
	node := &types.MemoryNode{
		ID:          RootNodeID,
		ParentID:    nil,
		BranchLabel: RootBranchName,
		Facts: []types.Fact{
			{
				ID:          fmt.Sprintf("fact_%s_0", RootNodeID),
				Fact:        fmt.Sprintf("Current self: %s", card.Name),
				Source:      "onboarding",
				ExtractedAt: now,
			},
			{
				ID:          fmt.Sprintf("fact_%s_1", RootNodeID),
				Fact:        fmt.Sprintf("Optimization goal: %s", card.OptimizationGoal),
				Source:      "onboarding",
				ExtractedAt: now,
			},
		},
		Notes:     []string{"Root node created during onboarding"},
		SelfCard:  &card,
		CreatedAt: now,
	}
	if err := t.store.SaveNode(sessionID, node); err != nil {
		return nil, err
	}

	branches := []types.Branch{{
		Name:             RootBranchName,
		HeadNodeID:       RootNodeID,
		ParentBranchName: nil,
	}}
	if err := t.store.SaveBranches(sessionID, branches); err != nil {
		return nil, err
	}
	return node, nil
}

// GrowBranches creates one node and one branch per card under the given
// parent. Branch names are slugs of the card names; a name that already
// exists is skipped silently, making regrowth idempotent. The parent node
// and parent branch are verified before anything is written — a missing
// parent never leaves a dangling node behind.
//
// Returns the branches actually created, in card order.
func (t *Tree) GrowBranches(
	sessionID string,
	parentNodeID string,
	parentBranchName string,
	cards []types.SelfCard,
) ([]types.Branch, error) {
	if _, err := t.store.LoadNode(sessionID, parentNodeID); err != nil {
		return nil, err
	}
	branches, err := t.store.LoadBranches(sessionID)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(branches))
	parentFound := false
	for _, b := range branches {
		existing[b.Name] = true
		if b.Name == parentBranchName {
			parentFound = true
		}
	}
	if !parentFound {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, parentBranchName)
	}

	now := nowSeconds()
	var created []types.Branch
	for _, card := range cards {
		name := Slugify(card.Name)
		if existing[name] {
			continue
		}
		snapshot := card
		node := &types.MemoryNode{
			ID:          newNodeID(),
			ParentID:    &parentNodeID,
			BranchLabel: name,
			Facts: []types.Fact{
				{
					ID:          newFactID(),
					Fact:        fmt.Sprintf("Optimizes for: %s", card.OptimizationGoal),
					Source:      "interview",
					ExtractedAt: now,
				},
			},
			Notes:     []string{fmt.Sprintf("Branch node for: %s (parent: %s)", card.Name, parentBranchName)},
			SelfCard:  &snapshot,
			CreatedAt: now,
		}
		if err := t.store.SaveNode(sessionID, node); err != nil {
			return nil, err
		}
		parent := parentBranchName
		branch := types.Branch{
			Name:             name,
			HeadNodeID:       node.ID,
			ParentBranchName: &parent,
		}
		branches = append(branches, branch)
		created = append(created, branch)
		existing[name] = true
	}

	if err := t.store.SaveBranches(sessionID, branches); err != nil {
		return nil, err
	}
	return created, nil
}

// FindRootNodeID returns the id of the node with a nil parent.
func (t *Tree) FindRootNodeID(sessionID string) (string, error) {
	nodes, err := t.store.ListNodes(sessionID)
	if err != nil {
		return "", err
	}
	for _, node := range nodes {
		if node.ParentID == nil {
			return node.ID, nil
		}
	}
	return "", fmt.Errorf("memtree: root node not found in session %s", sessionID)
}

// FindNodeForSelf returns the id of the node whose embedded self card
// matches selfID.
func (t *Tree) FindNodeForSelf(sessionID, selfID string) (string, error) {
	nodes, err := t.store.ListNodes(sessionID)
	if err != nil {
		return "", err
	}
	for _, node := range nodes {
		if node.SelfCard != nil && node.SelfCard.ID == selfID {
			return node.ID, nil
		}
	}
	return "", fmt.Errorf("memtree: node for self %q not found in session %s", selfID, sessionID)
}

// SyncSessionMirrors refreshes the inline memoryNodes/memoryBranches arrays
// on the session document from the node and branch files. The mirrors exist
// for older documents and for clients that read the session as one blob.
func (t *Tree) SyncSessionMirrors(session *types.Session) error {
	nodes, err := t.store.ListNodes(session.ID)
	if err != nil {
		return err
	}
	branches, err := t.store.LoadBranches(session.ID)
	if err != nil {
		return err
	}
	session.MemoryNodes = nodes
	session.MemoryBranches = branches
	return nil
}
