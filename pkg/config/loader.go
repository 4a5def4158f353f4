package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// councilYAMLConfig represents the complete council.yaml file structure.
type councilYAMLConfig struct {
	Endpoint     *EndpointConfig     `yaml:"endpoint"`
	Models       *ModelsConfig       `yaml:"models"`
	Deliberation *DeliberationConfig `yaml:"deliberation"`
	Titles       *TitleConfig        `yaml:"title_generation"`
	Server       *ServerConfig       `yaml:"server"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load council.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user values over built-in defaults
//  5. Resolve the local IP when ip_address is empty
//  6. Validate all configuration
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized",
		"council_members", len(cfg.Models.CouncilMembers),
		"chairman", cfg.Models.Chairman.Name,
		"rounds", cfg.Deliberation.Rounds,
		"titles_enabled", cfg.Titles.TitlesEnabled())

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	raw, err := loadCouncilYAML(configDir)
	if err != nil {
		return nil, NewLoadError("council.yaml", err)
	}

	// Merge user config over built-in defaults (non-zero values override).
	delib := defaultDeliberationConfig()
	if raw.Deliberation != nil {
		if err := mergo.Merge(delib, raw.Deliberation, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge deliberation config: %w", err)
		}
	}

	titles := defaultTitleConfig()
	if raw.Titles != nil {
		if err := mergo.Merge(titles, raw.Titles, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge title_generation config: %w", err)
		}
	}

	server := defaultServerConfig()
	if raw.Server != nil {
		if err := mergo.Merge(server, raw.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}

	endpoint := EndpointConfig{Port: DefaultPort}
	if raw.Endpoint != nil {
		if err := mergo.Merge(&endpoint, raw.Endpoint, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge endpoint config: %w", err)
		}
	}

	cfg := &Config{
		configDir:    configDir,
		Endpoint:     endpoint,
		Deliberation: *delib,
		Titles:       *titles,
		Server:       *server,
	}
	if raw.Models != nil {
		cfg.Models = *raw.Models
	}

	// Resolve the local address once so every endpoint resolution agrees.
	if cfg.Endpoint.APIBaseURL == "" && cfg.Endpoint.IPAddress == "" {
		cfg.resolvedIP = detectLocalIPv4()
		slog.Info("Auto-detected local address for model backend", "ip", cfg.resolvedIP)
	}

	return cfg, nil
}

func loadCouncilYAML(configDir string) (*councilYAMLConfig, error) {
	path := filepath.Join(configDir, "council.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	// Expand ${VAR} / $VAR before parsing. Missing variables expand to the
	// empty string; validation catches required fields left empty.
	data = []byte(os.ExpandEnv(string(data)))

	var config councilYAMLConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &config, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
