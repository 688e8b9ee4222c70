package watcher

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rjeczalik/notify"
)

// notifyBufferSize bounds the notify delivery channel. notify drops events
// when the channel is full, so it is kept large.
const notifyBufferSize = 1024

// notifySource implements Source with rjeczalik/notify, which supports
// recursive watches natively through the "/..." path suffix.
type notifySource struct {
	events   chan notify.EventInfo
	root     string
	handler  Handler
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

func newNotifySource() *notifySource {
	return &notifySource{
		events: make(chan notify.EventInfo, notifyBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Subscribe registers the watch and starts forwarding events.
func (s *notifySource) Subscribe(root string, recursive bool, h Handler) error {
	if err := validateRoot(root); err != nil {
		return err
	}

	s.root = filepath.Clean(root)
	s.handler = h

	target := s.root
	if recursive {
		target = filepath.Join(s.root, "...")
	}
	if err := notify.Watch(target, s.events, notify.All); err != nil {
		return fmt.Errorf("failed to watch %s: %w", target, err)
	}

	s.started = true
	go s.watch()
	return nil
}

// Close unregisters the watch and waits for the forwarding goroutine.
func (s *notifySource) Close() error {
	s.stopOnce.Do(func() {
		if !s.started {
			return
		}
		notify.Stop(s.events)
		close(s.stopCh)
		<-s.doneCh
	})
	return nil
}

func (s *notifySource) watch() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		case ei := <-s.events:
			path := filepath.Clean(ei.Path())
			if path == s.root && ei.Event()&(notify.Remove|notify.Rename) != 0 {
				s.handler.HandleError(fmt.Errorf("watch root %s was removed", s.root))
				continue
			}
			s.handler.HandleRaw(RawEvent{
				Paths: []string{path},
				Kind:  mapNotifyEvent(ei.Event()),
			})
		}
	}
}

// mapNotifyEvent converts a notify event to a raw kind.
func mapNotifyEvent(ev notify.Event) RawKind {
	switch {
	case ev&notify.Create != 0:
		return RawCreate
	case ev&(notify.Remove|notify.Rename) != 0:
		return RawRemove
	case ev&notify.Write != 0:
		return RawModify
	default:
		return RawAny
	}
}
