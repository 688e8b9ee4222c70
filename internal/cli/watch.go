package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mvp-joe/treewatch/internal/config"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a directory tree and report changes with git status",
	Long: `Watch a directory tree until interrupted.

Bursts of notifications for one path within the debounce window are reported
once. Paths matched by the built-in ignore list, <root>/.gitignore or
--ignore patterns are never reported. When the tree is inside a git
repository every event carries the path's current git status.

Output modes:
  stream   one line per event, after an initial repository status (default)
  events   compact "<status> <+|~|-> path" lines
  json     one JSON object per event
  summary  a status line whenever something changed`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addWatchFlags(watchCmd)
}

func addWatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("recursive", true, "watch subdirectories")
	f.Duration("debounce", 0, "coalescing window (default from config, 100ms)")
	f.StringSlice("ignore", nil, "extra ignore patterns (highest precedence)")
	f.Bool("gitignore", true, "honour <root>/.gitignore")
	f.String("backend", "", "watch backend: fsnotify or notify")
	f.Bool("git", true, "correlate events with git status")
	f.String("git-backend", "", "git backend: gogit or cli")
	f.Duration("cache-ttl", 0, "git status cache lifetime")
	f.Bool("recurse-untracked", false, "list files inside untracked directories")
	f.StringP("output", "o", "", "output mode: stream, events, json or summary")
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Watch.Root = root
	}
	if err := applyWatchFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := startSession(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return s.run(ctx)
}

// applyWatchFlags copies explicitly set flags over loaded values and
// revalidates.
func applyWatchFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	if f.Changed("recursive") {
		cfg.Watch.Recursive, _ = f.GetBool("recursive")
	}
	if f.Changed("debounce") {
		cfg.Watch.Debounce, _ = f.GetDuration("debounce")
	}
	if f.Changed("ignore") {
		extra, _ := f.GetStringSlice("ignore")
		cfg.Watch.Ignore = append(cfg.Watch.Ignore, extra...)
	}
	if f.Changed("gitignore") {
		cfg.Watch.Gitignore, _ = f.GetBool("gitignore")
	}
	if f.Changed("backend") {
		cfg.Watch.Backend, _ = f.GetString("backend")
	}
	if f.Changed("git") {
		cfg.Git.Enabled, _ = f.GetBool("git")
	}
	if f.Changed("git-backend") {
		cfg.Git.Backend, _ = f.GetString("git-backend")
	}
	if f.Changed("cache-ttl") {
		cfg.Git.CacheTTL, _ = f.GetDuration("cache-ttl")
	}
	if f.Changed("recurse-untracked") {
		cfg.Git.RecurseUntracked, _ = f.GetBool("recurse-untracked")
	}
	if f.Changed("output") {
		cfg.Output.Mode, _ = f.GetString("output")
	}

	return config.Validate(cfg)
}
