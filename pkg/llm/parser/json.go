// Package parser extracts structured JSON from free-form model output.
//
// Models wrap JSON in prose, code fences, or both, even when asked not to.
// Candidates returns the substrings worth trying as JSON, in order of
// likelihood; FirstValid runs the chain and returns the first candidate that
// parses and satisfies the caller's shape check.
package parser

import (
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoJSON is returned when no candidate in the chain parses as JSON that
// satisfies the caller's shape check.
var ErrNoJSON = errors.New("parser: no parseable JSON in response")

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Candidates lists the substrings to try as JSON, in order: the trimmed raw
// text, the first fenced code block if one exists, and the outermost brace
// span.
func Candidates(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	candidates := []string{trimmed}
	if match := fencedBlockRe.FindStringSubmatch(trimmed); match != nil {
		candidates = append(candidates, match[1])
	}
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		candidates = append(candidates, trimmed[start:end+1])
	}
	return candidates
}

// FirstValid returns the first candidate that is valid JSON and passes the
// shape check. A nil check accepts any valid JSON object.
func FirstValid(raw string, check func(gjson.Result) bool) (gjson.Result, error) {
	for _, candidate := range Candidates(raw) {
		if !gjson.Valid(candidate) {
			continue
		}
		result := gjson.Parse(candidate)
		if check == nil || check(result) {
			return result, nil
		}
	}
	return gjson.Result{}, ErrNoJSON
}
