package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mvp-joe/treewatch/internal/correlator"
	"github.com/mvp-joe/treewatch/internal/git"
	"github.com/mvp-joe/treewatch/internal/watcher"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrInvalidDebounce indicates a non-positive debounce window
	ErrInvalidDebounce = errors.New("invalid debounce")

	// ErrInvalidBackend indicates an unsupported watch or git backend
	ErrInvalidBackend = errors.New("invalid backend")

	// ErrInvalidMode indicates an unsupported output mode
	ErrInvalidMode = errors.New("invalid output mode")

	// ErrInvalidTTL indicates a non-positive status cache TTL
	ErrInvalidTTL = errors.New("invalid cache ttl")

	// ErrInvalidTick indicates a non-positive output tick
	ErrInvalidTick = errors.New("invalid tick")

	// ErrInvalidLogLevel indicates an unknown log level name
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateWatch(&cfg.Watch); err != nil {
		errs = append(errs, err)
	}

	if err := validateGit(&cfg.Git); err != nil {
		errs = append(errs, err)
	}

	if err := validateOutput(&cfg.Output); err != nil {
		errs = append(errs, err)
	}

	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: '%s'", ErrInvalidLogLevel, cfg.LogLevel))
	}

	return joinErrors(errs)
}

func validateWatch(cfg *WatchConfig) error {
	var errs []error

	if cfg.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("%w: watch.debounce must be positive, got %s", ErrInvalidDebounce, cfg.Debounce))
	}

	if cfg.Backend != watcher.BackendFsnotify && cfg.Backend != watcher.BackendNotify {
		errs = append(errs, fmt.Errorf("%w: watch.backend must be '%s' or '%s', got '%s'",
			ErrInvalidBackend, watcher.BackendFsnotify, watcher.BackendNotify, cfg.Backend))
	}

	return joinErrors(errs)
}

func validateGit(cfg *GitConfig) error {
	// Nothing else matters when git integration is off
	if !cfg.Enabled {
		return nil
	}

	var errs []error

	if cfg.Backend != git.BackendGoGit && cfg.Backend != git.BackendCLI {
		errs = append(errs, fmt.Errorf("%w: git.backend must be '%s' or '%s', got '%s'",
			ErrInvalidBackend, git.BackendGoGit, git.BackendCLI, cfg.Backend))
	}

	if cfg.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: git.cache_ttl must be positive, got %s", ErrInvalidTTL, cfg.CacheTTL))
	}

	return joinErrors(errs)
}

func validateOutput(cfg *OutputConfig) error {
	var errs []error

	switch cfg.Mode {
	case correlator.ModeStream, correlator.ModeEvents, correlator.ModeJSON, correlator.ModeSummary:
	default:
		errs = append(errs, fmt.Errorf("%w: output.mode must be one of stream, events, json, summary, got '%s'", ErrInvalidMode, cfg.Mode))
	}

	if cfg.Tick <= 0 {
		errs = append(errs, fmt.Errorf("%w: output.tick must be positive, got %s", ErrInvalidTick, cfg.Tick))
	}

	return joinErrors(errs)
}

// joinErrors combines multiple errors into a single error with clear
// formatting. Every input stays reachable through errors.Is.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	verbs := make([]string, len(errs))
	args := make([]any, len(errs))
	for i, err := range errs {
		verbs[i] = "%w"
		args[i] = err
	}

	return fmt.Errorf("validation failed:\n  - "+strings.Join(verbs, "\n  - "), args...)
}
