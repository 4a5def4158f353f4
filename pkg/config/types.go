// Package config loads, validates, and resolves the council.yaml
// configuration document.
package config

import "time"

// EndpointConfig is the global connection default for model endpoints.
// Per-model overrides take precedence; empty string means "inherit".
type EndpointConfig struct {
	APIBaseURL string `yaml:"api_base_url"`
	IPAddress  string `yaml:"ip_address"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
}

// ModelRef names a model plus optional per-model endpoint overrides.
type ModelRef struct {
	Name       string `yaml:"name"`
	APIBaseURL string `yaml:"api_base_url,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// ModelsConfig declares the chairman and the council.
type ModelsConfig struct {
	Chairman       ModelRef   `yaml:"chairman"`
	CouncilMembers []ModelRef `yaml:"council_members"`
}

// DeliberationConfig tunes the three-stage protocol.
type DeliberationConfig struct {
	Rounds            int     `yaml:"rounds"`
	MaxRounds         int     `yaml:"max_rounds"`
	EnableCrossReview *bool   `yaml:"enable_cross_review"`
	QualityThreshold  float64 `yaml:"quality_threshold"`

	StageTimeoutSeconds     int `yaml:"stage_timeout_seconds"`
	SynthesisTimeoutSeconds int `yaml:"synthesis_timeout_seconds"`
}

// CrossReviewEnabled reports the effective cross-review flag (default true).
func (d *DeliberationConfig) CrossReviewEnabled() bool {
	return d.EnableCrossReview == nil || *d.EnableCrossReview
}

// StageTimeout is the per-call deadline for Stage 1 and Stage 2 calls.
func (d *DeliberationConfig) StageTimeout() time.Duration {
	return time.Duration(d.StageTimeoutSeconds) * time.Second
}

// SynthesisTimeout is the per-call deadline for Stage 3. Larger than the
// stage timeout because synthesis inputs include the whole deliberation.
func (d *DeliberationConfig) SynthesisTimeout() time.Duration {
	return time.Duration(d.SynthesisTimeoutSeconds) * time.Second
}

// TitleConfig tunes the background title-generation service.
type TitleConfig struct {
	Enabled            *bool    `yaml:"enabled"`
	MaxConcurrent      int      `yaml:"max_concurrent"`
	TimeoutSeconds     int      `yaml:"timeout_seconds"`
	RetryAttempts      int      `yaml:"retry_attempts"`
	ThinkingModelHints []string `yaml:"thinking_model_hints"`
}

// TitlesEnabled reports the effective enabled flag (default true).
func (t *TitleConfig) TitlesEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Timeout is the per-job deadline for title generation calls.
func (t *TitleConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// ServerConfig tunes the HTTP surface and local storage.
type ServerConfig struct {
	HTTPPort         int      `yaml:"http_port"`
	DataDir          string   `yaml:"data_dir"`
	EventBuffer      int      `yaml:"event_buffer"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// Config is the fully-resolved configuration, ready for use.
type Config struct {
	configDir string

	Endpoint     EndpointConfig
	Models       ModelsConfig
	Deliberation DeliberationConfig
	Titles       TitleConfig
	Server       ServerConfig

	// resolvedIP caches the auto-detected local IPv4 when ip_address is empty.
	resolvedIP string
}

// CouncilModelNames returns the council model ids in configured order.
func (c *Config) CouncilModelNames() []string {
	names := make([]string, 0, len(c.Models.CouncilMembers))
	for _, m := range c.Models.CouncilMembers {
		names = append(names, m.Name)
	}
	return names
}

// AllModelNames returns the council ids plus the chairman, deduplicated,
// council order first.
func (c *Config) AllModelNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range c.Models.CouncilMembers {
		if _, ok := seen[m.Name]; ok {
			continue
		}
		seen[m.Name] = struct{}{}
		names = append(names, m.Name)
	}
	if _, ok := seen[c.Models.Chairman.Name]; !ok {
		names = append(names, c.Models.Chairman.Name)
	}
	return names
}
