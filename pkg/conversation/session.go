// Package conversation runs in-memory branch chat sessions against a
// resolved branch context. A session composes prompts, calls the completion
// provider, and keeps its own history; it has no persistence side effects —
// callers hand completed turns to the recorder.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomorrowyou/selftree/pkg/llm"
	"github.com/tomorrowyou/selftree/pkg/prompt"
	"github.com/tomorrowyou/selftree/pkg/resolver"
)

// Summary is a flat description of a session's context for display and
// debugging.
type Summary struct {
	SessionID        string `json:"sessionId"`
	BranchName       string `json:"branchName"`
	SelfName         string `json:"selfName"`
	OptimizationGoal string `json:"optimizationGoal"`
	Worldview        string `json:"worldview"`
	TradeOff         string `json:"tradeOff"`
	MemoryFacts      int    `json:"memoryFacts"`
	MemoryNotes      int    `json:"memoryNotes"`
	HistoryMessages  int    `json:"historyMessages"`
}

// BranchSession is an in-memory chat session with one future self on one
// branch. It is not safe for concurrent use.
type BranchSession struct {
	context  *resolver.Context
	composer *prompt.Composer
	provider llm.Provider
	chatCfg  llm.ChatConfig
	history  []llm.Message
}

// NewBranchSession creates a session over a resolved branch context.
func NewBranchSession(rc *resolver.Context, composer *prompt.Composer, provider llm.Provider, chatCfg llm.ChatConfig) *BranchSession {
	return &BranchSession{
		context:  rc,
		composer: composer,
		provider: provider,
		chatCfg:  chatCfg,
	}
}

// Reset clears the in-memory history.
func (s *BranchSession) Reset() {
	s.history = nil
}

// History returns the accumulated in-memory chat history.
func (s *BranchSession) History() []llm.Message {
	return s.history
}

// Reply sends a user message and returns the full assistant response. An
// empty model response is a hard error; the turn is appended to history only
// after a non-empty response arrives.
func (s *BranchSession) Reply(ctx context.Context, userMessage string) (string, error) {
	messages, err := s.composer.ComposeMessages(s.context, userMessage, s.history)
	if err != nil {
		return "", err
	}

	raw, err := s.provider.Complete(ctx, messages, s.chatCfg)
	if err != nil {
		return "", fmt.Errorf("conversation: completion: %w", err)
	}
	assistantText := strings.TrimSpace(raw)
	if assistantText == "" {
		return "", fmt.Errorf("conversation: received empty assistant response")
	}

	s.appendTurn(strings.TrimSpace(userMessage), assistantText)
	return assistantText, nil
}

// StreamReply sends a user message and streams the assistant response as
// incremental text fragments. The returned channel is closed when the stream
// ends; the final chunk carries Finished=true and the assembled reply, which
// is also appended to history. An interrupted or empty stream surfaces an
// error chunk and leaves history untouched, so no partial turn is recorded.
func (s *BranchSession) StreamReply(ctx context.Context, userMessage string) (<-chan *llm.StreamChunk, error) {
	messages, err := s.composer.ComposeMessages(s.context, userMessage, s.history)
	if err != nil {
		return nil, err
	}

	upstream, err := s.provider.StreamCompletion(ctx, messages, s.chatCfg)
	if err != nil {
		return nil, fmt.Errorf("conversation: start stream: %w", err)
	}

	out := make(chan *llm.StreamChunk, 10)
	userText := strings.TrimSpace(userMessage)

	go func() {
		defer close(out)

		var b strings.Builder
		for chunk := range upstream {
			if chunk.IsError() {
				out <- chunk
				return
			}
			if chunk.Finished {
				break
			}
			if chunk.Content != "" {
				b.WriteString(chunk.Content)
				out <- chunk
			}
		}

		assistantText := strings.TrimSpace(b.String())
		if assistantText == "" {
			out <- &llm.StreamChunk{Err: fmt.Errorf("conversation: received empty assistant response from stream")}
			return
		}

		s.appendTurn(userText, assistantText)
		out <- &llm.StreamChunk{Content: assistantText, Finished: true}
	}()

	return out, nil
}

// DescribeContext summarizes the session's resolved context and history.
func (s *BranchSession) DescribeContext() Summary {
	card := s.context.SelfCard
	name := strings.TrimSpace(card.Name)
	if name == "" {
		name = "Future Self"
	}
	return Summary{
		SessionID:        s.context.SessionID,
		BranchName:       s.context.BranchName,
		SelfName:         name,
		OptimizationGoal: card.OptimizationGoal,
		Worldview:        card.Worldview,
		TradeOff:         card.TradeOff,
		MemoryFacts:      len(s.context.Facts),
		MemoryNotes:      len(s.context.Notes),
		HistoryMessages:  len(s.history),
	}
}

func (s *BranchSession) appendTurn(userText, assistantText string) {
	s.history = append(s.history,
		llm.NewUserMessage(userText),
		llm.NewAssistantMessage(assistantText),
	)
}
