// Package growth generates future self personas. The engine builds a
// depth-aware prompt from a generation context, calls the completion
// provider, and finalizes the returned personas with content-hashed IDs,
// tree metadata, and voice assignments.
//
// The engine is stateless: callers resolve ancestor summaries, conversation
// excerpts, and sibling names before constructing a GenerationContext.
package growth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomorrowyou/selftree/pkg/config"
	"github.com/tomorrowyou/selftree/pkg/llm"
	"github.com/tomorrowyou/selftree/pkg/types"
	"github.com/tomorrowyou/selftree/pkg/voice"
)

// idLength is the hex length of content-hashed self IDs. 10 hex chars is 40
// bits, virtually collision-free within one session.
const idLength = 10

var timeNow = time.Now // injected for testability

// GenerationError reports unusable model output during persona generation.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("growth: %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func generationErrorf(stage, format string, args ...any) error {
	return &GenerationError{Stage: stage, Err: fmt.Errorf(format, args...)}
}

// GenerationContext is everything the engine needs to generate personas at
// any depth. ParentSelf is nil for root-level generation; ancestor summary,
// excerpts, and sibling names are empty when they do not apply.
type GenerationContext struct {
	Profile     *types.UserProfile
	CurrentSelf types.SelfCard
	Count       int

	ParentSelf           *types.SelfCard
	AncestorSummary      string
	ConversationExcerpts []string
	SiblingNames         []string

	Depth       int
	TimeHorizon string
}

// Engine generates future self personas.
type Engine struct {
	provider llm.Provider
	assigner *voice.Assigner
	chatCfg  llm.ChatConfig
	settings config.GenerationSettings
}

// Option configures an Engine.
type Option func(*Engine)

// WithChatConfig overrides the completion parameters.
func WithChatConfig(cfg llm.ChatConfig) Option {
	return func(e *Engine) { e.chatCfg = cfg }
}

// WithSettings overrides the generation settings.
func WithSettings(settings config.GenerationSettings) Option {
	return func(e *Engine) { e.settings = settings }
}

// New creates a generation engine over a completion provider and a voice
// assigner.
func New(provider llm.Provider, assigner *voice.Assigner, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		assigner: assigner,
		chatCfg:  generationChatConfig(),
		settings: config.Default().Generation,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// generationChatConfig widens the default completion parameters: persona
// batches are far larger than conversation turns.
func generationChatConfig() llm.ChatConfig {
	cfg := llm.DefaultChatConfig()
	cfg.MaxTokens = 2500
	cfg.Timeout = 90 * time.Second
	return cfg
}

// HashID generates a short deterministic self ID from content: SHA-256 of
// "name|parentID|timestamp" truncated to ten hex chars. The same triple
// always produces the same ID, so generation needs no central counter.
func HashID(name string, parentID *string, timestamp float64) string {
	parent := ""
	if parentID != nil {
		parent = *parentID
	}
	raw := fmt.Sprintf("%s|%s|%v", name, parent, timestamp)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:idLength]
}

// Generate produces gc.Count future self personas at any depth. Root-level
// calls (nil ParentSelf) get depth 1 and no parent link; deeper calls get
// parent depth + 1 and ParentSelfID set. ChildrenIDs is always initialized
// empty — linking children onto the parent is the caller's second phase.
func (e *Engine) Generate(ctx context.Context, gc GenerationContext) ([]types.SelfCard, error) {
	if gc.Profile == nil {
		return nil, generationErrorf("validate", "generation context has no user profile")
	}

	message := e.buildMessage(gc)
	cfg := e.chatCfg
	cfg.JSONObject = true

	raw, err := e.provider.Complete(ctx, []llm.Message{llm.NewUserMessage(message)}, cfg)
	if err != nil {
		return nil, fmt.Errorf("growth: generation completion: %w", err)
	}

	rawCards, err := parseFutureSelves(raw)
	if err != nil {
		return nil, err
	}
	if len(rawCards) == 0 {
		return nil, generationErrorf("parse", "model returned zero personas")
	}

	var parentID *string
	depth := 1
	if gc.ParentSelf != nil {
		parentID = &gc.ParentSelf.ID
		depth = gc.Depth + 1
	}

	now := unixSeconds(timeNow())
	used := make(map[string]bool, len(rawCards))
	cards := make([]types.SelfCard, 0, len(rawCards))
	for _, rawCard := range rawCards {
		card := rawCard
		card.ID = HashID(card.Name, parentID, now)
		card.Kind = types.SelfFuture
		card.VoiceID = e.assigner.AssignDistinct(card.VisualStyle.Mood, used)
		card.ParentSelfID = parentID
		card.DepthLevel = depth
		card.ChildrenIDs = []string{}
		card.AvatarURL = nil
		cards = append(cards, card)
	}
	return cards, nil
}

// GenerateCurrentSelf derives the current self persona from a completed user
// profile. It is called once, at onboarding completion.
func (e *Engine) GenerateCurrentSelf(ctx context.Context, profile *types.UserProfile) (*types.SelfCard, error) {
	if profile == nil {
		return nil, generationErrorf("validate", "no user profile")
	}

	cfg := e.chatCfg
	cfg.JSONObject = true

	raw, err := e.provider.Complete(ctx, []llm.Message{llm.NewUserMessage(buildCurrentSelfPrompt(profile))}, cfg)
	if err != nil {
		return nil, fmt.Errorf("growth: current self completion: %w", err)
	}

	card, err := parseCurrentSelf(raw)
	if err != nil {
		return nil, err
	}

	card.ID = "self_current_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	card.Kind = types.SelfCurrent
	card.Name = "Current Self"
	card.VoiceID = e.assigner.Assign(card.VisualStyle.Mood)
	card.ParentSelfID = nil
	card.DepthLevel = 0
	card.ChildrenIDs = []string{}
	card.AvatarURL = nil
	return card, nil
}

// TimeHorizonForDepth returns the configured time horizon for a generation
// depth, falling back to the default horizon.
func (e *Engine) TimeHorizonForDepth(depth int) string {
	if horizon, ok := e.settings.TimeHorizonsByDepth[depth]; ok {
		return horizon
	}
	return e.settings.DefaultTimeHorizon
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
