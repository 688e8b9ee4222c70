package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mvp-joe/treewatch/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "treewatch",
	Short: "Treewatch - watch a directory tree and correlate changes with git status",
	Long: `Treewatch watches a directory tree, coalesces bursts of filesystem
notifications into single events, filters them through ignore rules and
annotates each event with the path's current git status.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <root>/.treewatch/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initLogging configures the package-level logger before config is read.
func initLogging() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// loadConfig loads configuration for the tree at root, honouring --config.
func loadConfig(root string) (*config.Config, error) {
	var loader config.Loader
	if cfgFile != "" {
		loader = config.NewFileLoader(root, cfgFile)
	} else {
		loader = config.NewLoader(root)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	applyLogLevel(cfg)
	if verbose && cfgFile != "" {
		log.WithField("file", cfgFile).Debug("using config file")
	}
	return cfg, nil
}

// applyLogLevel sets the logger level from config unless --verbose asked for debug.
func applyLogLevel(cfg *config.Config) {
	if verbose {
		log.SetLevel(log.DebugLevel)
		return
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
}

// resolveRoot returns the canonical directory named by args, or the working
// directory when none is given.
func resolveRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	return canonicalRoot(root)
}

// canonicalRoot makes root absolute and resolves symlinks, so watch event
// paths and the worktree root git reports share one prefix. A root that
// does not exist is returned unresolved for the watcher to reject.
func canonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, nil
		}
		return "", fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	return resolved, nil
}
