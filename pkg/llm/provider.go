// Package llm defines the completion-service abstraction used by every
// engine that talks to a language model.
//
// Providers handle API communication and return plain strings or
// StreamChunk instances. They know nothing about personas, prompts, or
// persistence — that separation keeps them reusable and independently
// testable, and lets the engines swap a fake provider in tests.
//
// Example usage:
//
//	client, err := mistral.New(os.Getenv("MISTRAL_API_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	messages := []llm.Message{llm.NewUserMessage("Hello!")}
//	stream, err := client.StreamCompletion(ctx, messages, llm.DefaultChatConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for chunk := range stream {
//	    if chunk.IsError() {
//	        log.Fatal(chunk.Err)
//	    }
//	    fmt.Print(chunk.Content)
//	}
package llm

import (
	"context"
	"fmt"
	"time"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a system-role message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user-role message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant-role message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ChatConfig carries per-call completion parameters. The zero value is not
// usable; start from DefaultChatConfig and override what you need.
type ChatConfig struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration

	// JSONObject asks the provider to constrain output to a single JSON
	// object. Used for structured generation and insight extraction.
	JSONObject bool
}

// DefaultChatConfig mirrors the shipped runtime configuration defaults.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Model:       "mistral-small-latest",
		Temperature: 0.7,
		TopP:        0.95,
		MaxTokens:   220,
		Timeout:     30 * time.Second,
	}
}

// StreamChunk is one incremental fragment of a streamed completion.
//
// Content chunks arrive first, then exactly one chunk with Finished set.
// A chunk with Err set terminates the stream; the channel is closed after
// the final chunk either way.
type StreamChunk struct {
	Content  string
	Finished bool
	Err      error
}

// IsError reports whether this chunk carries a stream-time error.
func (c *StreamChunk) IsError() bool { return c != nil && c.Err != nil }

// ClientError is a typed transport/HTTP/empty-response failure from a
// provider. The core never retries these; retry policy belongs to callers.
type ClientError struct {
	StatusCode int // zero when the failure happened before an HTTP status
	Detail     string
	Err        error
}

func (e *ClientError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("llm: API error (status %d): %s", e.StatusCode, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("llm: %s: %v", e.Detail, e.Err)
	default:
		return "llm: " + e.Detail
	}
}

func (e *ClientError) Unwrap() error { return e.Err }

// Provider is the completion service interface.
//
// Complete sends messages and returns the full assistant response.
// StreamCompletion streams the response as incremental fragments; the
// returned channel is closed when streaming completes or fails, and
// callers should read until it closes. Both report transport/HTTP failures
// and empty responses as a *ClientError. Neither retries.
type Provider interface {
	Complete(ctx context.Context, messages []Message, cfg ChatConfig) (string, error)
	StreamCompletion(ctx context.Context, messages []Message, cfg ChatConfig) (<-chan *StreamChunk, error)
}
