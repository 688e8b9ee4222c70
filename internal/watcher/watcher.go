// Package watcher turns OS filesystem notifications into a stream of
// debounced, ignore-filtered WatchEvents.
//
// The pipeline is Source -> Debouncer -> Translator -> queue -> Events().
// A Watcher owns all of it; Close tears it down on every exit path.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Source backends.
const (
	BackendFsnotify = "fsnotify"
	BackendNotify   = "notify"
)

// Options configures a Watcher.
type Options struct {
	// Root is the directory to watch.
	Root string

	// Recursive also watches every subdirectory, including new ones.
	Recursive bool

	// Debounce is the aggregation window. Default DefaultDebounce.
	Debounce time.Duration

	// Backend selects the Source implementation. Default BackendFsnotify.
	Backend string

	// Matcher filters events. nil disables filtering.
	Matcher IgnoreMatcher
}

// Watcher is a scoped subscription handle.
type Watcher struct {
	root       string
	source     Source
	debouncer  *Debouncer
	translator *Translator
	queue      *eventQueue
	closeOnce  sync.Once
	closeErr   error
}

// New subscribes to opts.Root and starts delivering events. Subscription
// failures are returned here and leave nothing running.
func New(opts Options) (*Watcher, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}

	source, err := newSource(opts.Backend, root, opts.Matcher)
	if err != nil {
		return nil, err
	}

	translator, err := NewTranslator(root, opts.Matcher)
	if err != nil {
		source.Close()
		return nil, err
	}

	w := &Watcher{
		root:       root,
		source:     source,
		translator: translator,
		queue:      newEventQueue(),
	}
	w.debouncer = NewDebouncer(opts.Debounce, w.deliver)

	if err := source.Subscribe(root, opts.Recursive, w); err != nil {
		source.Close()
		w.debouncer.Close()
		w.queue.close()
		translator.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"root":      root,
		"recursive": opts.Recursive,
		"backend":   backendName(opts.Backend),
	}).Debug("watch subscription established")

	return w, nil
}

func newSource(backend, root string, matcher IgnoreMatcher) (Source, error) {
	switch backendName(backend) {
	case BackendFsnotify:
		var skip func(string) bool
		if matcher != nil {
			skip = func(path string) bool {
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return false
				}
				return matcher.Matches(rel, true)
			}
		}
		s, err := newFsnotifySource(skip)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendNotify:
		return newNotifySource(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func backendName(backend string) string {
	if backend == "" {
		return BackendFsnotify
	}
	return backend
}

// Root returns the absolute watch root.
func (w *Watcher) Root() string {
	return w.root
}

// Events returns the event stream. It is closed after Close once all
// remaining events have been received.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.queue.out
}

// Close unsubscribes, lets an in-flight debounce window finish, and closes
// the stream. Safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.source.Close()
		w.debouncer.Close()
		w.queue.close()
		w.translator.Close()
	})
	return w.closeErr
}

// HandleRaw implements Handler.
func (w *Watcher) HandleRaw(ev RawEvent) {
	w.debouncer.Add(ev)
}

// HandleError implements Handler. Errors bypass the debouncer.
func (w *Watcher) HandleError(err error) {
	log.Warnf("watch error: %v", err)
	w.queue.push(NewError(err.Error()))
}

// deliver receives the debouncer's net events.
func (w *Watcher) deliver(raw RawEvent) {
	if ev, ok := w.translator.Translate(raw); ok {
		w.queue.push(ev)
	}
}
