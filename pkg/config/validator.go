package config

import (
	"errors"
	"fmt"
)

// Validator performs comprehensive validation on loaded configuration.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation check and joins the failures so a
// broken config reports all its problems in one pass.
func (v *Validator) ValidateAll() error {
	var errs []error
	errs = append(errs, v.validateModels()...)
	errs = append(errs, v.validateDeliberation()...)
	errs = append(errs, v.validateTitles()...)
	errs = append(errs, v.validateServer()...)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (v *Validator) validateModels() []error {
	var errs []error
	m := v.cfg.Models

	if m.Chairman.Name == "" {
		errs = append(errs, NewValidationError("models", "chairman", ErrMissingRequiredField))
	}
	if len(m.CouncilMembers) < 2 {
		errs = append(errs, NewValidationError("models", "council_members",
			fmt.Errorf("%w: need at least 2 council members, got %d", ErrInvalidValue, len(m.CouncilMembers))))
	}
	seen := make(map[string]struct{})
	for i, member := range m.CouncilMembers {
		if member.Name == "" {
			errs = append(errs, NewValidationError("models", fmt.Sprintf("council_members[%d].name", i), ErrMissingRequiredField))
			continue
		}
		if _, dup := seen[member.Name]; dup {
			errs = append(errs, NewValidationError("models", fmt.Sprintf("council_members[%d]", i),
				fmt.Errorf("%w: duplicate council member %q", ErrInvalidValue, member.Name)))
		}
		seen[member.Name] = struct{}{}
	}
	return errs
}

func (v *Validator) validateDeliberation() []error {
	var errs []error
	d := v.cfg.Deliberation

	if d.MaxRounds < 1 || d.MaxRounds > MaxRoundsCeiling {
		errs = append(errs, NewValidationError("deliberation", "max_rounds",
			fmt.Errorf("%w: must be in [1, %d], got %d", ErrInvalidValue, MaxRoundsCeiling, d.MaxRounds)))
	}
	if d.Rounds < 1 || d.Rounds > d.MaxRounds {
		errs = append(errs, NewValidationError("deliberation", "rounds",
			fmt.Errorf("%w: must be in [1, max_rounds=%d], got %d", ErrInvalidValue, d.MaxRounds, d.Rounds)))
	}
	if d.QualityThreshold <= 0 || d.QualityThreshold > 5 {
		errs = append(errs, NewValidationError("deliberation", "quality_threshold",
			fmt.Errorf("%w: must be in (0, 5], got %v", ErrInvalidValue, d.QualityThreshold)))
	}
	if d.StageTimeoutSeconds <= 0 {
		errs = append(errs, NewValidationError("deliberation", "stage_timeout_seconds",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, d.StageTimeoutSeconds)))
	}
	if d.SynthesisTimeoutSeconds <= 0 {
		errs = append(errs, NewValidationError("deliberation", "synthesis_timeout_seconds",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, d.SynthesisTimeoutSeconds)))
	}
	return errs
}

func (v *Validator) validateTitles() []error {
	var errs []error
	t := v.cfg.Titles

	if t.MaxConcurrent < 1 {
		errs = append(errs, NewValidationError("title_generation", "max_concurrent",
			fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, t.MaxConcurrent)))
	}
	if t.RetryAttempts < 0 {
		errs = append(errs, NewValidationError("title_generation", "retry_attempts",
			fmt.Errorf("%w: must be non-negative, got %d", ErrInvalidValue, t.RetryAttempts)))
	}
	if t.TimeoutSeconds <= 0 {
		errs = append(errs, NewValidationError("title_generation", "timeout_seconds",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, t.TimeoutSeconds)))
	}
	return errs
}

func (v *Validator) validateServer() []error {
	var errs []error
	s := v.cfg.Server

	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		errs = append(errs, NewValidationError("server", "http_port",
			fmt.Errorf("%w: must be in [1, 65535], got %d", ErrInvalidValue, s.HTTPPort)))
	}
	if s.DataDir == "" {
		errs = append(errs, NewValidationError("server", "data_dir", ErrMissingRequiredField))
	}
	if s.EventBuffer < 1 {
		errs = append(errs, NewValidationError("server", "event_buffer",
			fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, s.EventBuffer)))
	}
	return errs
}
