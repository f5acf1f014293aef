package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads overrides from environment variables named prefix + tag.
func ParseEnv(target any, prefix string) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
