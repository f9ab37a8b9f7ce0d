package config

import (
	"fmt"
	"strconv"
)

func validate(cfg *Config) error {
	if cfg.ContainerName == "" {
		return fmt.Errorf("config: %w: missing container_name", ErrInvalidConfig)
	}
	if cfg.Image == "" {
		return fmt.Errorf("config: %w: missing image", ErrInvalidConfig)
	}

	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return fmt.Errorf("config: %w: port %q is not a number", ErrInvalidConfig, cfg.Port)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("config: %w: port %d out of range", ErrInvalidConfig, port)
	}

	if cfg.Readiness.Interval <= 0 {
		return fmt.Errorf("config: %w: readiness.interval must be > 0", ErrInvalidConfig)
	}
	if cfg.Readiness.MaxAttempts < 1 {
		return fmt.Errorf("config: %w: readiness.max_attempts must be >= 1", ErrInvalidConfig)
	}

	return nil
}

// ValidateDatabase rejects database names that cannot be used as the
// application database: empty, or the reserved administrative name.
func ValidateDatabase(name string) error {
	switch name {
	case "":
		return fmt.Errorf("config: %w: database name is empty, set PG_DATABASE", ErrInvalidConfig)
	case ReservedDatabase:
		return fmt.Errorf("config: %w: database name %q is reserved, set PG_DATABASE to a new name", ErrInvalidConfig, name)
	}
	return nil
}
