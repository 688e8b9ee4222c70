package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/mvp-joe/treewatch/internal/cache"
	"github.com/mvp-joe/treewatch/internal/config"
	"github.com/mvp-joe/treewatch/internal/correlator"
	"github.com/mvp-joe/treewatch/internal/git"
	"github.com/mvp-joe/treewatch/internal/ignore"
	"github.com/mvp-joe/treewatch/internal/output"
	"github.com/mvp-joe/treewatch/internal/watcher"
	log "github.com/sirupsen/logrus"
)

// session is one wired watch pipeline: watcher, optional git status with
// its .git invalidation hook, correlator and sink.
type session struct {
	sink       correlator.Sink
	watcher    *watcher.Watcher
	gitWatcher *watcher.GitDirWatcher
	status     *cache.StatusCache
	correlator *correlator.Correlator
}

// startSession builds and starts the pipeline described by cfg. Startup
// errors (bad root, bad pattern) are returned; git problems only disable
// status correlation.
func startSession(cfg *config.Config, out io.Writer) (*session, error) {
	root, err := canonicalRoot(cfg.Watch.Root)
	if err != nil {
		return nil, err
	}
	cfg.Watch.Root = root

	s := &session{}
	id := uuid.NewString()
	logger := log.WithFields(log.Fields{"session": id, "root": root})

	matcher, err := ignore.New(ignore.Options{
		Root:         cfg.Watch.Root,
		UseGitignore: cfg.Watch.Gitignore,
		Extra:        cfg.Watch.Ignore,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Git.Enabled {
		if err := s.startGit(cfg, logger); err != nil {
			logger.WithError(err).Warn("git status disabled")
		}
	}

	s.watcher, err = watcher.New(watcher.Options{
		Root:      cfg.Watch.Root,
		Recursive: cfg.Watch.Recursive,
		Debounce:  cfg.Watch.Debounce,
		Backend:   cfg.Watch.Backend,
		Matcher:   matcher,
	})
	if err != nil {
		s.stopGit()
		return nil, err
	}

	s.sink, err = output.New(cfg.Output.Mode, out, s.watcher.Root())
	if err != nil {
		s.watcher.Close()
		s.stopGit()
		return nil, err
	}

	ccfg := correlator.Config{
		Events:    s.watcher.Events(),
		Sink:      s.sink,
		Mode:      cfg.Output.Mode,
		Tick:      cfg.Output.Tick,
		SessionID: id,
	}
	if s.status != nil {
		ccfg.Status = s.status
	}
	s.correlator = correlator.New(ccfg)

	logger.WithFields(log.Fields{
		"backend": cfg.Watch.Backend,
		"git":     s.status != nil,
		"mode":    cfg.Output.Mode,
	}).Info("watching")
	return s, nil
}

func (s *session) startGit(cfg *config.Config, logger *log.Entry) error {
	repoRoot, gitDir, err := git.Discover(cfg.Watch.Root)
	if err != nil {
		return err
	}

	provider, err := git.NewProvider(cfg.Git.Backend, git.Options{RecurseUntracked: cfg.Git.RecurseUntracked})
	if err != nil {
		return err
	}
	s.status = cache.New(provider, repoRoot, cache.WithTTL(cfg.Git.CacheTTL))

	if !cfg.Git.WatchGitDir {
		return nil
	}

	gw, err := watcher.NewGitDirWatcher(gitDir)
	if err != nil {
		logger.WithError(err).Warn("not watching git directory")
		return nil
	}
	err = gw.Start(func(change watcher.GitChange) {
		s.status.Invalidate()
		if change.BranchSwitched() {
			logger.WithFields(log.Fields{
				"from": change.PrevBranch,
				"to":   change.Branch,
			}).Info("branch switched")
		}
	})
	if err != nil {
		logger.WithError(err).Warn("not watching git directory")
		return nil
	}
	s.gitWatcher = gw
	return nil
}

func (s *session) stopGit() {
	if s.gitWatcher != nil {
		if err := s.gitWatcher.Stop(); err != nil {
			log.WithError(err).Debug("git directory watcher stop")
		}
	}
}

// printInitialStatus shows the repository status once, for sinks that
// want it, before any event is correlated.
func (s *session) printInitialStatus(ctx context.Context) {
	printer, ok := s.sink.(output.StatusPrinter)
	if !ok || s.status == nil {
		return
	}
	info, err := s.status.GetStatus(ctx)
	if err != nil {
		log.WithError(err).Debug("initial git status unavailable")
		return
	}
	if err := printer.PrintStatus(info); err != nil {
		log.WithError(err).Warn("failed to print initial git status")
	}
}

// run blocks until ctx is cancelled or the watcher's stream ends, then
// releases every resource.
func (s *session) run(ctx context.Context) error {
	s.printInitialStatus(ctx)
	runErr := s.correlator.Run(ctx)

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := s.watcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close watcher: %w", err))
	}
	s.stopGit()

	log.WithFields(log.Fields{
		"session": s.correlator.SessionID(),
		"emitted": s.correlator.Emitted(),
	}).Debug("session finished")
	return errors.Join(errs...)
}
