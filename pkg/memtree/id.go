package memtree

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

var timeNow = time.Now // injected for testability

func nowSeconds() float64 {
	return float64(timeNow().UnixNano()) / float64(time.Second)
}

func shortHex(n int) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:n]
}

func newNodeID() string { return "node_branch_" + shortHex(8) }

func newFactID() string { return "fact_" + shortHex(8) }

// Slugify derives a branch name from a self card name: lowercase with
// whitespace runs collapsed to single hyphens.
func Slugify(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, "-")
}
