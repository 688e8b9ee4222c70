package config

import (
	"time"

	"github.com/mvp-joe/treewatch/internal/cache"
	"github.com/mvp-joe/treewatch/internal/correlator"
	"github.com/mvp-joe/treewatch/internal/git"
	"github.com/mvp-joe/treewatch/internal/watcher"
)

// Config represents the complete treewatch configuration.
// It can be loaded from .treewatch/config.yml with environment variable overrides.
type Config struct {
	Watch    WatchConfig  `yaml:"watch" mapstructure:"watch"`
	Git      GitConfig    `yaml:"git" mapstructure:"git"`
	Output   OutputConfig `yaml:"output" mapstructure:"output"`
	LogLevel string       `yaml:"log_level" mapstructure:"log_level"` // logrus level name
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	Root      string        `yaml:"root" mapstructure:"root"`           // directory to watch; defaults to the loader's root
	Recursive bool          `yaml:"recursive" mapstructure:"recursive"` // watch subdirectories
	Debounce  time.Duration `yaml:"debounce" mapstructure:"debounce"`   // coalescing window
	Ignore    []string      `yaml:"ignore" mapstructure:"ignore"`       // extra ignore patterns, highest precedence
	Gitignore bool          `yaml:"gitignore" mapstructure:"gitignore"` // honour <root>/.gitignore
	Backend   string        `yaml:"backend" mapstructure:"backend"`     // "fsnotify" or "notify"
}

// GitConfig configures status correlation.
type GitConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend          string        `yaml:"backend" mapstructure:"backend"` // "gogit" or "cli"
	CacheTTL         time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	RecurseUntracked bool          `yaml:"recurse_untracked" mapstructure:"recurse_untracked"`
	WatchGitDir      bool          `yaml:"watch_git_dir" mapstructure:"watch_git_dir"` // invalidate on .git changes
}

// OutputConfig configures how correlated events are rendered.
type OutputConfig struct {
	Mode string        `yaml:"mode" mapstructure:"mode"` // "stream", "json" or "summary"
	Tick time.Duration `yaml:"tick" mapstructure:"tick"` // bound on each wait for events
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			Recursive: true,
			Debounce:  watcher.DefaultDebounce,
			Ignore:    []string{},
			Gitignore: true,
			Backend:   watcher.BackendFsnotify,
		},
		Git: GitConfig{
			Enabled:     true,
			Backend:     git.BackendGoGit,
			CacheTTL:    cache.DefaultTTL,
			WatchGitDir: true,
		},
		Output: OutputConfig{
			Mode: correlator.ModeStream,
			Tick: correlator.DefaultTick,
		},
		LogLevel: "info",
	}
}
