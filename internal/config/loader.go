package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir    string
	configFile string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// NewFileLoader creates a loader reading an explicit config file. Unlike the
// directory search, a missing file is an error.
func NewFileLoader(rootDir, configFile string) Loader {
	return &loader{
		rootDir:    rootDir,
		configFile: configFile,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (TREEWATCH_*)
// 2. Config file (explicit file, or .treewatch/config.yml|yaml under the root)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(l.rootDir, ".treewatch"))
	}

	// Replace . with _ in env var names (e.g., TREEWATCH_WATCH_DEBOUNCE)
	v.SetEnvPrefix("TREEWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range envKeys {
		v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Watch.Root == "" {
		cfg.Watch.Root = l.rootDir
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var envKeys = []string{
	"watch.root",
	"watch.recursive",
	"watch.debounce",
	"watch.ignore",
	"watch.gitignore",
	"watch.backend",
	"git.enabled",
	"git.backend",
	"git.cache_ttl",
	"git.recurse_untracked",
	"git.watch_git_dir",
	"output.mode",
	"output.tick",
	"log_level",
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("watch.root", defaults.Watch.Root)
	v.SetDefault("watch.recursive", defaults.Watch.Recursive)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
	v.SetDefault("watch.ignore", defaults.Watch.Ignore)
	v.SetDefault("watch.gitignore", defaults.Watch.Gitignore)
	v.SetDefault("watch.backend", defaults.Watch.Backend)

	v.SetDefault("git.enabled", defaults.Git.Enabled)
	v.SetDefault("git.backend", defaults.Git.Backend)
	v.SetDefault("git.cache_ttl", defaults.Git.CacheTTL)
	v.SetDefault("git.recurse_untracked", defaults.Git.RecurseUntracked)
	v.SetDefault("git.watch_git_dir", defaults.Git.WatchGitDir)

	v.SetDefault("output.mode", defaults.Output.Mode)
	v.SetDefault("output.tick", defaults.Output.Tick)

	v.SetDefault("log_level", defaults.LogLevel)
}
