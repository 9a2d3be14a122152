package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here; validation
// accepts both uppercase and lowercase levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.HTTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	// Privileged ports are refused; 0 asks the kernel for an ephemeral one.
	if port := cfg.Adapters.HTTP.Port; port != 0 && (port < 1024 || port > 65535) {
		return fmt.Errorf("adapters.http.port: %d out of range (1024-65535)", port)
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Adapters.HTTP.Port {
		return fmt.Errorf("server.metrics.port: %d collides with adapters.http.port", cfg.Server.Metrics.Port)
	}

	if cfg.Adapters.HTTP.AcceptRate > 0 && cfg.Adapters.HTTP.AcceptBurst == 0 {
		return fmt.Errorf("adapters.http.accept_burst: must be positive when accept_rate is set")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
