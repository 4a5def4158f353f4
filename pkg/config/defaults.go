package config

// Built-in defaults applied when council.yaml leaves a field unset.
const (
	DefaultPort        = 1234
	DefaultHTTPPort    = 8080
	DefaultDataDir     = "./data"
	DefaultEventBuffer = 256

	DefaultRounds           = 1
	DefaultMaxRounds        = 3
	MaxRoundsCeiling        = 10
	DefaultQualityThreshold = 1.5 // of 5 — 30% of the max rating

	DefaultStageTimeoutSeconds     = 120
	DefaultSynthesisTimeoutSeconds = 240

	DefaultTitleMaxConcurrent  = 2
	DefaultTitleTimeoutSeconds = 30
	DefaultTitleRetryAttempts  = 3
)

// DefaultThinkingModelHints are the case-insensitive substrings that mark a
// model id as one that emits thinking content.
func DefaultThinkingModelHints() []string {
	return []string{"thinking", "reasoning", "o1"}
}

// defaultDeliberationConfig returns the built-in deliberation settings.
func defaultDeliberationConfig() *DeliberationConfig {
	return &DeliberationConfig{
		Rounds:                  DefaultRounds,
		MaxRounds:               DefaultMaxRounds,
		QualityThreshold:        DefaultQualityThreshold,
		StageTimeoutSeconds:     DefaultStageTimeoutSeconds,
		SynthesisTimeoutSeconds: DefaultSynthesisTimeoutSeconds,
	}
}

// defaultTitleConfig returns the built-in title-generation settings.
func defaultTitleConfig() *TitleConfig {
	return &TitleConfig{
		MaxConcurrent:      DefaultTitleMaxConcurrent,
		TimeoutSeconds:     DefaultTitleTimeoutSeconds,
		RetryAttempts:      DefaultTitleRetryAttempts,
		ThinkingModelHints: DefaultThinkingModelHints(),
	}
}

// defaultServerConfig returns the built-in server settings.
func defaultServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTPPort:    DefaultHTTPPort,
		DataDir:     DefaultDataDir,
		EventBuffer: DefaultEventBuffer,
	}
}
