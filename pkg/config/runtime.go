// Package config loads the runtime configuration that tunes the engines:
// chat model parameters, prompt and transcript windows, insight extraction
// limits, generation counts and time horizons, and the voice pool.
//
// Configuration is a YAML file layered over defaults — a partial file
// overrides only the keys it names. Load validates the result once so the
// engines can trust every limit without re-checking.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomorrowyou/selftree/pkg/llm"
)

// ChatSettings are the completion parameters for one call class.
type ChatSettings struct {
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	TopP           float64 `yaml:"top_p"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// ChatConfig converts the settings into a per-call llm.ChatConfig.
func (s ChatSettings) ChatConfig() llm.ChatConfig {
	return llm.ChatConfig{
		Model:       s.Model,
		Temperature: s.Temperature,
		TopP:        s.TopP,
		MaxTokens:   s.MaxTokens,
		Timeout:     time.Duration(s.TimeoutSeconds * float64(time.Second)),
	}
}

// PromptComposerSettings cap what the composer injects into prompts.
type PromptComposerSettings struct {
	MaxMemoryFacts  int `yaml:"max_memory_facts"`
	MaxMemoryNotes  int `yaml:"max_memory_notes"`
	MaxHistoryTurns int `yaml:"max_history_turns"`
}

// ProfileSummarySettings cap the per-list items in the profile summary.
type ProfileSummarySettings struct {
	CoreValues     int `yaml:"core_values"`
	Fears          int `yaml:"fears"`
	HiddenTensions int `yaml:"hidden_tensions"`
}

// MemorySettings tune the conversation memory recorder.
type MemorySettings struct {
	Enabled              bool `yaml:"enabled"`
	MaxTranscriptEntries int  `yaml:"max_transcript_entries"`
	AnalysisWindow       int  `yaml:"analysis_window"`
	MaxFactsPerNode      int  `yaml:"max_facts_per_node"`
	MaxNotesPerNode      int  `yaml:"max_notes_per_node"`
}

// GenerationSettings tune the branch growth engine.
type GenerationSettings struct {
	DefaultCount        int                 `yaml:"default_count"`
	AllowedCounts       []int               `yaml:"allowed_counts"`
	DefaultTimeHorizon  string              `yaml:"default_time_horizon"`
	TimeHorizonsByDepth map[int]string      `yaml:"time_horizons_by_depth"`
	MoodFallbackChains  map[string][]string `yaml:"mood_fallback_chains"`
}

// ExcerptSettings tune ancestor conversation excerpt selection.
type ExcerptSettings struct {
	MaxPerAncestor int      `yaml:"max_per_ancestor"`
	MaxTotal       int      `yaml:"max_total"`
	AllowedRoles   []string `yaml:"allowed_roles"`
}

// VoiceSettings map persona moods onto voice identifiers.
type VoiceSettings struct {
	Pool           map[string]string `yaml:"pool"`
	DefaultVoiceID string            `yaml:"default_voice_id"`
}

// Config is the full runtime configuration.
type Config struct {
	StorageRoot    string                 `yaml:"storage_root"`
	Chat           ChatSettings           `yaml:"chat"`
	PromptComposer PromptComposerSettings `yaml:"prompt_composer"`
	ProfileSummary ProfileSummarySettings `yaml:"profile_summary"`
	Memory         MemorySettings         `yaml:"conversation_memory"`
	Generation     GenerationSettings     `yaml:"future_generation"`
	Excerpts       ExcerptSettings        `yaml:"generation_context"`
	Voice          VoiceSettings          `yaml:"voice"`
}

// Default returns the shipped configuration.
func Default() *Config {
	return &Config{
		StorageRoot: "storage/sessions",
		Chat: ChatSettings{
			Model:          "mistral-small-latest",
			Temperature:    0.7,
			TopP:           0.95,
			MaxTokens:      220,
			TimeoutSeconds: 30,
		},
		PromptComposer: PromptComposerSettings{
			MaxMemoryFacts:  24,
			MaxMemoryNotes:  16,
			MaxHistoryTurns: 12,
		},
		ProfileSummary: ProfileSummarySettings{
			CoreValues:     4,
			Fears:          4,
			HiddenTensions: 3,
		},
		Memory: MemorySettings{
			Enabled:              true,
			MaxTranscriptEntries: 200,
			AnalysisWindow:       24,
			MaxFactsPerNode:      40,
			MaxNotesPerNode:      30,
		},
		Generation: GenerationSettings{
			DefaultCount:       3,
			AllowedCounts:      []int{2, 3},
			DefaultTimeHorizon: "5 years",
			TimeHorizonsByDepth: map[int]string{
				1: "5 years",
				2: "2-3 years",
				3: "1-2 years",
			},
			MoodFallbackChains: map[string][]string{
				"elevated": {"ethereal", "intense", "warm"},
				"warm":     {"grounded", "calm", "elevated"},
				"sharp":    {"intense", "elevated", "grounded"},
				"grounded": {"warm", "calm", "sharp"},
				"ethereal": {"elevated", "calm", "warm"},
				"intense":  {"sharp", "elevated", "grounded"},
				"calm":     {"grounded", "warm", "ethereal"},
			},
		},
		Excerpts: ExcerptSettings{
			MaxPerAncestor: 5,
			MaxTotal:       20,
			AllowedRoles:   []string{"user", "assistant", "memory"},
		},
		Voice: VoiceSettings{
			Pool:           map[string]string{},
			DefaultVoiceID: "",
		},
	}
}

// Load reads a YAML config file layered over Default and validates it.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if len(c.Generation.AllowedCounts) == 0 {
		return fmt.Errorf("config: future_generation.allowed_counts must not be empty")
	}
	allowed := false
	for _, n := range c.Generation.AllowedCounts {
		if n == c.Generation.DefaultCount {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("config: future_generation.default_count %d must be present in allowed_counts", c.Generation.DefaultCount)
	}
	if c.Memory.MaxTranscriptEntries < 2 {
		return fmt.Errorf("config: conversation_memory.max_transcript_entries must be at least 2")
	}
	if c.Memory.AnalysisWindow < 2 {
		return fmt.Errorf("config: conversation_memory.analysis_window must be at least 2")
	}
	if c.Excerpts.MaxPerAncestor <= 0 || c.Excerpts.MaxTotal <= 0 {
		return fmt.Errorf("config: generation_context caps must be positive")
	}
	return nil
}

// ClampCount restricts a requested generation count to the allowed set,
// snapping to the nearest allowed value.
func (c *Config) ClampCount(n int) int {
	best := c.Generation.DefaultCount
	bestDist := -1
	for _, allowed := range c.Generation.AllowedCounts {
		dist := allowed - n
		if dist < 0 {
			dist = -dist
		}
		if bestDist == -1 || dist < bestDist {
			best = allowed
			bestDist = dist
		}
	}
	return best
}
