// Package correlator joins the watcher's event stream with git status. It is
// the single consumer of the stream: every event invalidates the status
// cache, is annotated with the path's current status and handed to a sink.
package correlator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mvp-joe/treewatch/internal/git"
	"github.com/mvp-joe/treewatch/internal/watcher"
	log "github.com/sirupsen/logrus"
)

// DefaultTick bounds each wait on the event stream.
const DefaultTick = 100 * time.Millisecond

// Output modes.
const (
	ModeStream  = "stream"
	ModeEvents  = "events"
	ModeJSON    = "json"
	ModeSummary = "summary"
)

// ErrShutdown is returned when Run is called on a correlator that has
// already shut down.
var ErrShutdown = errors.New("correlator is shut down")

// State is the correlator's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateDraining
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// StatusSource is the read side of the status cache.
type StatusSource interface {
	GetStatus(ctx context.Context) (*git.GitInfo, error)
	GetFileStatus(ctx context.Context, path string) (git.FileStatus, bool)
	Invalidate()
}

// Result is one correlated event.
type Result struct {
	SessionID string
	Event     watcher.WatchEvent

	// Status is meaningful only when HasStatus is set.
	Status    git.FileStatus
	HasStatus bool
}

// Sink receives correlated output.
type Sink interface {
	Emit(Result) error
	Heartbeat(*git.GitInfo) error
}

// Config wires a Correlator.
type Config struct {
	Events <-chan watcher.WatchEvent

	// Status is nil when git integration is disabled.
	Status StatusSource

	Sink      Sink
	Mode      string
	Tick      time.Duration
	SessionID string
}

// Correlator consumes watch events until the stream closes or its context
// is cancelled.
type Correlator struct {
	cfg   Config
	state atomic.Int32
	log   *log.Entry

	emitted atomic.Int64
}

// New creates a Correlator. A missing Tick or SessionID is filled in.
func New(cfg Config) *Correlator {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeStream
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	return &Correlator{
		cfg: cfg,
		log: log.WithField("session", cfg.SessionID),
	}
}

// SessionID identifies this run in emitted results.
func (c *Correlator) SessionID() string {
	return c.cfg.SessionID
}

// State returns the current lifecycle state.
func (c *Correlator) State() State {
	return State(c.state.Load())
}

// Emitted returns how many results reached the sink.
func (c *Correlator) Emitted() int64 {
	return c.emitted.Load()
}

// Run processes events until the stream closes or ctx is cancelled. Either
// way the correlator ends in StateShutdown, which is terminal.
func (c *Correlator) Run(ctx context.Context) error {
	if c.State() == StateShutdown {
		return ErrShutdown
	}
	defer c.state.Store(int32(StateShutdown))

	c.log.WithField("mode", c.cfg.Mode).Debug("correlator started")

	timer := time.NewTimer(c.cfg.Tick)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			c.log.Debug("correlator cancelled")
			return nil
		}

		timer.Reset(c.cfg.Tick)
		select {
		case <-ctx.Done():
			c.log.Debug("correlator cancelled")
			return nil

		case ev, ok := <-c.cfg.Events:
			if !ok {
				c.log.Debug("event stream closed")
				return nil
			}
			c.state.Store(int32(StateDraining))
			c.handle(ctx, ev)
			c.state.Store(int32(StateIdle))

		case <-timer.C:
			if c.cfg.Mode == ModeSummary {
				c.heartbeat(ctx)
			}
		}
	}
}

func (c *Correlator) handle(ctx context.Context, ev watcher.WatchEvent) {
	res := Result{SessionID: c.cfg.SessionID, Event: ev}

	if c.cfg.Status != nil && !ev.IsError() {
		c.cfg.Status.Invalidate()
		res.Status, res.HasStatus = c.cfg.Status.GetFileStatus(ctx, ev.Path())
	}

	if err := c.cfg.Sink.Emit(res); err != nil {
		c.log.WithError(err).Warn("emit failed")
		return
	}
	c.emitted.Add(1)
}

func (c *Correlator) heartbeat(ctx context.Context) {
	var info *git.GitInfo
	if c.cfg.Status != nil {
		// Errors degrade to a heartbeat without git information
		info, _ = c.cfg.Status.GetStatus(ctx)
	}
	if err := c.cfg.Sink.Heartbeat(info); err != nil {
		c.log.WithError(err).Warn("heartbeat failed")
	}
}
