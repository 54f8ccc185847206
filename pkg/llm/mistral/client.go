// Package mistral implements llm.Provider against an OpenAI-compatible
// chat-completions endpoint. Mistral's la Plateforme is the default; any
// compatible service works via WithBaseURL.
//
// The implementation uses raw HTTP streaming to handle SSE events directly,
// which tolerates the comment lines and delta-format variations that
// compatible endpoints emit.
package mistral

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/tomorrowyou/selftree/pkg/llm"
)

// DefaultBaseURL is the default Mistral API base URL.
const DefaultBaseURL = "https://api.mistral.ai/v1"

// Client talks to one OpenAI-compatible chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different OpenAI-compatible API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client. An empty apiKey falls back to the MISTRAL_API_KEY
// environment variable; a key is required.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("MISTRAL_API_KEY")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("mistral: API key is required (provide via parameter or MISTRAL_API_KEY)")
	}
	c := &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete sends messages and returns the full assistant response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, cfg llm.ChatConfig) (string, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	resp, err := c.send(ctx, messages, cfg, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &llm.ClientError{Detail: "read response body", Err: err}
	}
	if !gjson.ValidBytes(raw) {
		return "", &llm.ClientError{Detail: "invalid JSON in response"}
	}
	text := normalizeContent(gjson.GetBytes(raw, "choices.0.message.content"))
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &llm.ClientError{Detail: "empty response"}
	}
	return text, nil
}

// StreamCompletion streams the assistant response as incremental fragments.
// The channel is closed when the stream ends or an error chunk is sent.
func (c *Client) StreamCompletion(ctx context.Context, messages []llm.Message, cfg llm.ChatConfig) (<-chan *llm.StreamChunk, error) {
	var cancel context.CancelFunc = func() {}
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}

	resp, err := c.send(ctx, messages, cfg, true)
	if err != nil {
		cancel()
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go func() {
		defer cancel()
		c.processStream(ctx, resp, chunks)
	}()
	return chunks, nil
}

func (c *Client) send(ctx context.Context, messages []llm.Message, cfg llm.ChatConfig, stream bool) (*http.Response, error) {
	body := map[string]any{
		"model":       cfg.Model,
		"messages":    convertMessages(messages),
		"temperature": cfg.Temperature,
		"top_p":       cfg.TopP,
		"max_tokens":  cfg.MaxTokens,
		"stream":      stream,
	}
	if cfg.JSONObject {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, &llm.ClientError{Detail: "marshal request", Err: err}
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &llm.ClientError{Detail: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &llm.ClientError{Detail: "send request", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		detail := strings.TrimSpace(string(raw))
		if readErr != nil || detail == "" {
			detail = resp.Status
		}
		return nil, &llm.ClientError{StatusCode: resp.StatusCode, Detail: detail}
	}
	return resp, nil
}

func (c *Client) processStream(ctx context.Context, resp *http.Response, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			c.sendChunk(ctx, chunks, &llm.StreamChunk{Finished: true})
			return
		}
		if !gjson.Valid(data) {
			continue
		}
		content := normalizeContent(gjson.Get(data, "choices.0.delta.content"))
		if content == "" {
			continue
		}
		if !c.sendChunk(ctx, chunks, &llm.StreamChunk{Content: content}) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.sendChunk(ctx, chunks, &llm.StreamChunk{Err: &llm.ClientError{Detail: "stream read error", Err: err}})
		return
	}
	c.sendChunk(ctx, chunks, &llm.StreamChunk{Finished: true})
}

func (c *Client) sendChunk(ctx context.Context, chunks chan<- *llm.StreamChunk, chunk *llm.StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		chunks <- &llm.StreamChunk{Err: ctx.Err()}
		return false
	}
}

// convertMessages maps llm messages onto the typed OpenAI message union so
// the request body matches what compatible endpoints expect.
func convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// normalizeContent accepts both the plain-string content shape and the
// part-list shape ({"type":"text","text":...} fragments) some compatible
// endpoints return.
func normalizeContent(result gjson.Result) string {
	switch {
	case result.Type == gjson.String:
		return result.String()
	case result.IsArray():
		var sb strings.Builder
		for _, part := range result.Array() {
			if part.Type == gjson.String {
				sb.WriteString(part.String())
				continue
			}
			if text := part.Get("text"); text.Exists() {
				sb.WriteString(text.String())
			} else if inner := part.Get("content"); inner.Exists() {
				sb.WriteString(inner.String())
			}
		}
		return sb.String()
	default:
		return ""
	}
}
