package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomorrowyou/selftree/pkg/llm"
	"github.com/tomorrowyou/selftree/pkg/prompt"
	"github.com/tomorrowyou/selftree/pkg/resolver"
	"github.com/tomorrowyou/selftree/pkg/types"
)

// fakeProvider returns fixed responses and records the messages it was
// called with.
type fakeProvider struct {
	reply        string
	err          error
	streamChunks []*llm.StreamChunk
	lastMessages []llm.Message
}

func (f *fakeProvider) Complete(_ context.Context, messages []llm.Message, _ llm.ChatConfig) (string, error) {
	f.lastMessages = messages
	return f.reply, f.err
}

func (f *fakeProvider) StreamCompletion(_ context.Context, messages []llm.Message, _ llm.ChatConfig) (<-chan *llm.StreamChunk, error) {
	f.lastMessages = messages
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan *llm.StreamChunk, len(f.streamChunks))
	for _, c := range f.streamChunks {
		out <- c
	}
	close(out)
	return out, nil
}

func testSession(provider llm.Provider) *BranchSession {
	rc := &resolver.Context{
		SessionID:  "sess-1",
		BranchName: "self-who-left",
		SelfCard: types.SelfCard{
			ID:               "f1",
			Name:             "Self Who Left",
			OptimizationGoal: "freedom",
		},
		Facts:          []types.Fact{{Fact: "Optimizes for: freedom", Source: "interview"}},
		Notes:          []string{"a note"},
		ProfileSummary: "Core values: honesty",
	}
	return NewBranchSession(rc, prompt.NewComposer(), provider, llm.DefaultChatConfig())
}

func TestReplyAppendsHistory(t *testing.T) {
	provider := &fakeProvider{reply: "  It was worth it.  "}
	session := testSession(provider)

	got, err := session.Reply(context.Background(), "Was it worth it?")
	require.NoError(t, err)
	assert.Equal(t, "It was worth it.", got)

	history := session.History()
	require.Len(t, history, 2)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, "Was it worth it?", history[0].Content)
	assert.Equal(t, llm.RoleAssistant, history[1].Role)
	assert.Equal(t, "It was worth it.", history[1].Content)

	// The provider saw system + user.
	require.Len(t, provider.lastMessages, 2)
	assert.Equal(t, llm.RoleSystem, provider.lastMessages[0].Role)
}

func TestReplyCarriesHistoryForward(t *testing.T) {
	provider := &fakeProvider{reply: "answer"}
	session := testSession(provider)

	_, err := session.Reply(context.Background(), "first")
	require.NoError(t, err)
	_, err = session.Reply(context.Background(), "second")
	require.NoError(t, err)

	// system + 2 prior history + new user message.
	assert.Len(t, provider.lastMessages, 4)
	assert.Len(t, session.History(), 4)
}

func TestReplyEmptyResponseIsErrorAndKeepsHistoryClean(t *testing.T) {
	session := testSession(&fakeProvider{reply: "   "})

	_, err := session.Reply(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty assistant response")
	assert.Empty(t, session.History())
}

func TestReplyProviderError(t *testing.T) {
	session := testSession(&fakeProvider{err: errors.New("boom")})

	_, err := session.Reply(context.Background(), "hello")
	require.Error(t, err)
	assert.Empty(t, session.History())
}

func TestStreamReplyAssemblesChunks(t *testing.T) {
	provider := &fakeProvider{streamChunks: []*llm.StreamChunk{
		{Content: "It was "},
		{Content: "worth it."},
		{Finished: true},
	}}
	session := testSession(provider)

	out, err := session.StreamReply(context.Background(), "Was it worth it?")
	require.NoError(t, err)

	var fragments []string
	var final *llm.StreamChunk
	for chunk := range out {
		require.NoError(t, chunk.Err)
		if chunk.Finished {
			final = chunk
			continue
		}
		fragments = append(fragments, chunk.Content)
	}

	assert.Equal(t, []string{"It was ", "worth it."}, fragments)
	require.NotNil(t, final)
	assert.Equal(t, "It was worth it.", final.Content)
	assert.Len(t, session.History(), 2)
}

func TestStreamReplyErrorChunkLeavesHistoryUntouched(t *testing.T) {
	provider := &fakeProvider{streamChunks: []*llm.StreamChunk{
		{Content: "partial "},
		{Err: errors.New("stream cut")},
	}}
	session := testSession(provider)

	out, err := session.StreamReply(context.Background(), "hello")
	require.NoError(t, err)

	sawError := false
	for chunk := range out {
		if chunk.IsError() {
			sawError = true
		}
	}
	assert.True(t, sawError)
	assert.Empty(t, session.History())
}

func TestStreamReplyEmptyStreamIsError(t *testing.T) {
	provider := &fakeProvider{streamChunks: []*llm.StreamChunk{{Finished: true}}}
	session := testSession(provider)

	out, err := session.StreamReply(context.Background(), "hello")
	require.NoError(t, err)

	deadline := time.After(time.Second)
	sawError := false
	for {
		select {
		case chunk, ok := <-out:
			if !ok {
				assert.True(t, sawError)
				assert.Empty(t, session.History())
				return
			}
			if chunk.IsError() {
				sawError = true
			}
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func TestResetClearsHistory(t *testing.T) {
	session := testSession(&fakeProvider{reply: "answer"})
	_, err := session.Reply(context.Background(), "first")
	require.NoError(t, err)

	session.Reset()
	assert.Empty(t, session.History())
}

func TestDescribeContext(t *testing.T) {
	session := testSession(&fakeProvider{reply: "answer"})
	_, err := session.Reply(context.Background(), "first")
	require.NoError(t, err)

	summary := session.DescribeContext()
	assert.Equal(t, "sess-1", summary.SessionID)
	assert.Equal(t, "self-who-left", summary.BranchName)
	assert.Equal(t, "Self Who Left", summary.SelfName)
	assert.Equal(t, 1, summary.MemoryFacts)
	assert.Equal(t, 1, summary.MemoryNotes)
	assert.Equal(t, 2, summary.HistoryMessages)
}
