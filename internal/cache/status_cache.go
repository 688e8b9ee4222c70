// Package cache memoizes git status snapshots for a bounded time so that a
// burst of file events costs at most one status computation.
package cache

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mvp-joe/treewatch/internal/git"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a snapshot is served before it is recomputed.
const DefaultTTL = 500 * time.Millisecond

// snapshot is replaced wholesale on every computation and never mutated.
type snapshot struct {
	info       *git.GitInfo
	err        error
	computedAt time.Time
	generation uint64
}

// StatusCache serves GitInfo snapshots for one repository root. Readers never
// block each other; concurrent misses share a single computation.
type StatusCache struct {
	provider git.StatusProvider
	root     string
	ttl      time.Duration
	now      func() time.Time

	current    atomic.Pointer[snapshot]
	generation atomic.Uint64
	group      singleflight.Group
}

// Option configures a StatusCache.
type Option func(*StatusCache)

// WithTTL sets the snapshot lifetime. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(c *StatusCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *StatusCache) {
		c.now = now
	}
}

// New creates a cache computing snapshots for root with provider.
func New(provider git.StatusProvider, root string, opts ...Option) *StatusCache {
	c := &StatusCache{
		provider: provider,
		root:     root,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured snapshot lifetime.
func (c *StatusCache) TTL() time.Duration {
	return c.ttl
}

// GetStatus returns the cached snapshot if it is younger than the TTL and has
// not been invalidated; otherwise it computes a fresh one. A failed
// computation is cached like a successful one.
func (c *StatusCache) GetStatus(ctx context.Context) (*git.GitInfo, error) {
	gen := c.generation.Load()
	if s := c.current.Load(); c.fresh(s, gen) {
		return s.info, s.err
	}

	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		if s := c.current.Load(); c.fresh(s, gen) {
			return s, nil
		}
		return c.compute(context.WithoutCancel(ctx), gen), nil
	})

	select {
	case res := <-ch:
		s := res.Val.(*snapshot)
		return s.info, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetFileStatus resolves path, absolute or relative to the repository root,
// against the current snapshot. It reports false when the path is clean or
// git is unavailable.
func (c *StatusCache) GetFileStatus(ctx context.Context, path string) (git.FileStatus, bool) {
	info, err := c.GetStatus(ctx)
	if err != nil {
		return git.StatusUnknown, false
	}
	return info.Lookup(path)
}

// Invalidate forces the next GetStatus to recompute regardless of age.
func (c *StatusCache) Invalidate() {
	c.generation.Add(1)
}

func (c *StatusCache) fresh(s *snapshot, gen uint64) bool {
	return s != nil && s.generation == gen && c.now().Sub(s.computedAt) < c.ttl
}

func (c *StatusCache) compute(ctx context.Context, gen uint64) *snapshot {
	start := c.now()
	info, err := c.provider.Compute(ctx, c.root)

	s := &snapshot{info: info, err: err, computedAt: c.now(), generation: gen}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return s
	}

	// A snapshot computed before an invalidation is still returned to the
	// callers that asked for it but is never published.
	if gen == c.generation.Load() {
		c.current.Store(s)
	}

	fields := log.Fields{"root": c.root, "elapsed": c.now().Sub(start)}
	if err != nil {
		log.WithFields(fields).WithError(err).Debug("git status unavailable")
	} else {
		log.WithFields(fields).WithField("entries", len(info.FileStatuses)).Debug("git status computed")
	}
	return s
}
