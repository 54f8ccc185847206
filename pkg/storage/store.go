// Package storage is the whole-document file layer for session state.
//
// Each session lives under <root>/<sessionID>/ as:
//
//	session.json            — the session document
//	transcript.json         — the ordered transcript
//	memory/branches.json    — the branch records
//	memory/nodes/<id>.json  — one file per memory tree node
//
// Every mutation rewrites the affected document in full via an atomic
// temp-file rename. There is no locking and no partial-patch format: the
// core assumes a single writer per session.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tomorrowyou/selftree/pkg/types"
)

var (
	ErrSessionNotFound = errors.New("storage: session not found")
	ErrNodeNotFound    = errors.New("storage: memory node not found")
)

// Store reads and writes session documents under a storage root.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: empty storage root")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: init root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

// SessionDir returns the directory holding one session's documents.
func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *Store) sessionPath(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, "/\\") {
		return "", fmt.Errorf("storage: invalid session id %q", sessionID)
	}
	return filepath.Join(s.root, sessionID, "session.json"), nil
}

// CreateSession writes a fresh session document. The session starts in the
// onboarding phase with empty collections.
func (s *Store) CreateSession(sessionID string) (*types.Session, error) {
	now := unixSeconds(timeNow())
	session := &types.Session{
		ID:        sessionID,
		Status:    types.StatusOnboarding,
		CreatedAt: now,
		UpdatedAt: now,
	}
	session.Normalize()
	if err := s.SaveSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// LoadSession reads and normalizes a session document.
// Returns ErrSessionNotFound when the document does not exist.
func (s *Store) LoadSession(sessionID string) (*types.Session, error) {
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return nil, err
	}
	var session types.Session
	if err := readJSON(path, &session); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}
	session.Normalize()
	return &session, nil
}

// SaveSession rewrites the session document in full, bumping UpdatedAt.
func (s *Store) SaveSession(session *types.Session) error {
	path, err := s.sessionPath(session.ID)
	if err != nil {
		return err
	}
	session.UpdatedAt = unixSeconds(timeNow())
	return writeJSON(path, session)
}

// LoadTranscript reads the transcript document. A missing file is an empty
// transcript, not an error.
func (s *Store) LoadTranscript(sessionID string) ([]types.TranscriptEntry, error) {
	path := filepath.Join(s.SessionDir(sessionID), "transcript.json")
	var entries []types.TranscriptEntry
	if err := readJSON(path, &entries); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.TranscriptEntry{}, nil
		}
		return nil, err
	}
	return entries, nil
}

// SaveTranscript rewrites the transcript document in full.
func (s *Store) SaveTranscript(sessionID string, entries []types.TranscriptEntry) error {
	path := filepath.Join(s.SessionDir(sessionID), "transcript.json")
	if entries == nil {
		entries = []types.TranscriptEntry{}
	}
	return writeJSON(path, entries)
}

// LoadBranches reads the branches document. A missing file surfaces as an
// os.ErrNotExist-wrapping error so callers can fall back to the inline
// session mirror.
func (s *Store) LoadBranches(sessionID string) ([]types.Branch, error) {
	path := filepath.Join(s.SessionDir(sessionID), "memory", "branches.json")
	var branches []types.Branch
	if err := readJSON(path, &branches); err != nil {
		return nil, err
	}
	return branches, nil
}

// SaveBranches rewrites the branches document in full.
func (s *Store) SaveBranches(sessionID string, branches []types.Branch) error {
	path := filepath.Join(s.SessionDir(sessionID), "memory", "branches.json")
	if branches == nil {
		branches = []types.Branch{}
	}
	return writeJSON(path, branches)
}

// LoadNode reads one memory node file.
// Returns ErrNodeNotFound when the file does not exist.
func (s *Store) LoadNode(sessionID, nodeID string) (*types.MemoryNode, error) {
	if nodeID == "" || strings.ContainsAny(nodeID, "/\\") {
		return nil, fmt.Errorf("storage: invalid node id %q", nodeID)
	}
	path := filepath.Join(s.SessionDir(sessionID), "memory", "nodes", nodeID+".json")
	var node types.MemoryNode
	if err := readJSON(path, &node); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
		}
		return nil, err
	}
	return &node, nil
}

// SaveNode rewrites one memory node file in full.
func (s *Store) SaveNode(sessionID string, node *types.MemoryNode) error {
	if node.ID == "" || strings.ContainsAny(node.ID, "/\\") {
		return fmt.Errorf("storage: invalid node id %q", node.ID)
	}
	path := filepath.Join(s.SessionDir(sessionID), "memory", "nodes", node.ID+".json")
	return writeJSON(path, node)
}

// ListNodes reads every node file for a session, sorted by filename.
// A malformed node file is an error: inconsistent tree state must surface,
// never be silently skipped. A missing nodes directory surfaces as an
// os.ErrNotExist-wrapping error for the inline-mirror fallback.
func (s *Store) ListNodes(sessionID string) ([]types.MemoryNode, error) {
	dir := filepath.Join(s.SessionDir(sessionID), "memory", "nodes")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: list nodes %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	nodes := make([]types.MemoryNode, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		var node types.MemoryNode
		if err := readJSON(path, &node); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

var timeNow = time.Now // injected for testability

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", path, err)
	}
	return nil
}

// writeJSON writes atomically via a temporary file so an interrupted write
// never leaves a truncated document behind.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("storage: create dir for %s: %w", path, err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("storage: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("storage: atomic rename %s: %w", path, err)
	}
	return nil
}
