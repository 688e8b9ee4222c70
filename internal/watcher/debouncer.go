package watcher

import (
	"sync"
	"time"
)

// DefaultDebounce is the default debounce window.
const DefaultDebounce = 100 * time.Millisecond

// pendingPath accumulates the raw kinds seen for one path inside a window.
type pendingPath struct {
	first RawKind
	last  RawKind
}

// Debouncer merges raw notifications into per-path net effects. A window
// opens with the first notification of a batch and has a fixed length; when
// it expires every pending path is emitted at most once, in first-seen order.
type Debouncer struct {
	window time.Duration
	emit   func(RawEvent)

	mu       sync.Mutex
	pending  map[string]*pendingPath
	order    []string
	timer    *time.Timer
	closed   bool
	inFlight sync.WaitGroup // One count per open window
}

// NewDebouncer creates a debouncer that calls emit with net events. A
// non-positive window uses DefaultDebounce.
func NewDebouncer(window time.Duration, emit func(RawEvent)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{
		window:  window,
		emit:    emit,
		pending: make(map[string]*pendingPath),
	}
}

// Add records a raw notification. Ignored after Close.
func (d *Debouncer) Add(ev RawEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	for _, path := range ev.Paths {
		if p, ok := d.pending[path]; ok {
			p.last = ev.Kind
			continue
		}
		d.pending[path] = &pendingPath{first: ev.Kind, last: ev.Kind}
		d.order = append(d.order, path)
	}

	if d.timer == nil && len(d.pending) > 0 {
		d.inFlight.Add(1)
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

// flush runs when a window expires.
func (d *Debouncer) flush() {
	defer d.inFlight.Done()

	d.mu.Lock()
	pending := d.pending
	order := d.order
	d.pending = make(map[string]*pendingPath)
	d.order = nil
	d.timer = nil
	d.mu.Unlock()

	for _, path := range order {
		kind, ok := netKind(pending[path])
		if !ok {
			continue
		}
		d.emit(RawEvent{Paths: []string{path}, Kind: kind})
	}
}

// Close stops accepting notifications and waits for an open window to
// complete and deliver its batch.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.inFlight.Wait()
}

// netKind reduces a window's history to one kind. ok is false when the path
// was created and removed inside the window.
func netKind(p *pendingPath) (RawKind, bool) {
	existedBefore := p.first != RawCreate
	existsAfter := p.last != RawRemove

	switch {
	case !existedBefore && !existsAfter:
		return 0, false
	case !existedBefore:
		return RawCreate, true
	case !existsAfter:
		return RawRemove, true
	case p.first == RawAny && p.last == RawAny:
		return RawAny, true
	default:
		return RawModify, true
	}
}
