package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maypok86/otter"
)

// decisionCacheSize bounds the number of memoised ignore decisions.
const decisionCacheSize = 4096

// Translator converts debounced raw events into public events and drops the
// ones whose paths are all ignored.
type Translator struct {
	root      string
	matcher   IgnoreMatcher
	decisions otter.Cache[string, bool]
}

// NewTranslator creates a translator for paths under root. matcher may be nil,
// in which case nothing is ignored.
func NewTranslator(root string, matcher IgnoreMatcher) (*Translator, error) {
	decisions, err := otter.MustBuilder[string, bool](decisionCacheSize).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build ignore decision cache: %w", err)
	}
	return &Translator{
		root:      filepath.Clean(root),
		matcher:   matcher,
		decisions: decisions,
	}, nil
}

// Translate maps ev to a WatchEvent. ok is false when the event is dropped.
func (t *Translator) Translate(ev RawEvent) (WatchEvent, bool) {
	path, ok := t.firstVisible(ev.Paths)
	if !ok {
		return WatchEvent{}, false
	}

	switch ev.Kind {
	case RawCreate:
		return NewCreated(path), true
	case RawRemove:
		return NewDeleted(path), true
	default:
		// RawModify and ambiguous notifications both surface as Modified
		return NewModified(path), true
	}
}

// Close releases the decision cache.
func (t *Translator) Close() {
	t.decisions.Close()
}

// firstVisible returns the first path that is not ignored.
func (t *Translator) firstVisible(paths []string) (string, bool) {
	for _, p := range paths {
		if !t.ignored(p) {
			return p, true
		}
	}
	return "", false
}

// ignored resolves p against the root and consults the matcher. Paths outside
// the root are never ignored.
func (t *Translator) ignored(p string) bool {
	if t.matcher == nil {
		return false
	}

	rel, err := filepath.Rel(t.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if rel == "." {
		return false
	}

	info, err := os.Lstat(p)
	if err != nil {
		// Gone (usually a removal): it may have been a directory, so
		// directory-only patterns such as node_modules/ must also apply.
		return t.decide(rel, false) || t.decide(rel, true)
	}
	return t.decide(rel, info.IsDir())
}

// decide consults the matcher through the decision cache.
func (t *Translator) decide(rel string, isDir bool) bool {
	key := rel
	if isDir {
		key += string(filepath.Separator)
	}
	if v, ok := t.decisions.Get(key); ok {
		return v
	}

	v := t.matcher.Matches(rel, isDir)
	t.decisions.Set(key, v)
	return v
}
