package output

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mvp-joe/treewatch/internal/correlator"
	"github.com/mvp-joe/treewatch/internal/git"
	"github.com/mvp-joe/treewatch/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for sinks:
// - Text lines carry the kind, the root-relative path and the status
// - JSON lines decode with the status name and session id
// - Events lines use the one-letter status and a change marker
// - Text and summary sinks print the initial repository status with file counts
// - JSON heartbeats carry per-status counts
// - Summary prints only when events arrived or git state changed
// - Unknown modes are rejected

func root() string {
	return filepath.Join(string(filepath.Separator), "repo")
}

func TestTextSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink, err := New(correlator.ModeStream, &buf, root())
	require.NoError(t, err)

	require.NoError(t, sink.Emit(correlator.Result{
		Event:     watcher.NewModified(filepath.Join(root(), "src", "main.go")),
		Status:    git.StatusModified,
		HasStatus: true,
	}))
	require.NoError(t, sink.Emit(correlator.Result{Event: watcher.NewError("watch root removed")}))
	require.NoError(t, sink.Heartbeat(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "modified")
	assert.Contains(t, lines[0], filepath.Join("src", "main.go"))
	assert.NotContains(t, lines[0], root()+string(filepath.Separator))
	assert.True(t, strings.HasSuffix(lines[0], "[modified]"))
	assert.Contains(t, lines[1], "watch root removed")
}

func TestJSONSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink, err := New(correlator.ModeJSON, &buf, root())
	require.NoError(t, err)

	require.NoError(t, sink.Emit(correlator.Result{
		SessionID: "abc",
		Event:     watcher.NewCreated("/repo/a.txt"),
		Status:    git.StatusUntracked,
		HasStatus: true,
	}))
	require.NoError(t, sink.Emit(correlator.Result{SessionID: "abc", Event: watcher.NewDeleted("/repo/gone.txt")}))
	require.NoError(t, sink.Heartbeat(&git.GitInfo{Branch: "main"}))

	dec := json.NewDecoder(&buf)

	var first map[string]any
	require.NoError(t, dec.Decode(&first))
	assert.Equal(t, "event", first["type"])
	assert.Equal(t, "abc", first["session"])
	assert.Equal(t, "created", first["kind"])
	assert.Equal(t, "/repo/a.txt", first["path"])
	assert.Equal(t, "untracked", first["git_status"])

	var second map[string]any
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "deleted", second["kind"])
	assert.NotContains(t, second, "git_status")

	var hb map[string]any
	require.NoError(t, dec.Decode(&hb))
	assert.Equal(t, "heartbeat", hb["type"])
	assert.Equal(t, "main", hb["git"].(map[string]any)["branch"])
	assert.Contains(t, hb, "counts")
}

func TestJSONSink_HeartbeatCounts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink, err := New(correlator.ModeJSON, &buf, root())
	require.NoError(t, err)

	require.NoError(t, sink.Heartbeat(testInfo()))
	require.NoError(t, sink.Heartbeat(nil))

	dec := json.NewDecoder(&buf)
	var hb struct {
		Counts *git.StatusCounts `json:"counts"`
	}
	require.NoError(t, dec.Decode(&hb))
	require.NotNil(t, hb.Counts)
	assert.Equal(t, git.StatusCounts{Modified: 2, Staged: 1, Untracked: 1, Total: 5}, *hb.Counts)

	var empty map[string]any
	require.NoError(t, dec.Decode(&empty))
	assert.NotContains(t, empty, "counts")
}

func testInfo() *git.GitInfo {
	return &git.GitInfo{
		Root:   root(),
		Branch: "feature/x",
		Ahead:  2,
		Behind: 1,
		FileStatuses: map[string]git.FileStatus{
			"a.go":    git.StatusModified,
			"b.go":    git.StatusModified,
			"c.go":    git.StatusStaged,
			"tmp/":    git.StatusUntracked,
			"gone.go": git.StatusDeleted,
		},
	}
}

func TestEventsSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink, err := New(correlator.ModeEvents, &buf, root())
	require.NoError(t, err)

	emit := func(r correlator.Result) {
		require.NoError(t, sink.Emit(r))
	}
	emit(correlator.Result{Event: watcher.NewCreated("/repo/a.txt"), Status: git.StatusUntracked, HasStatus: true})
	emit(correlator.Result{Event: watcher.NewModified("/repo/src/main.go"), Status: git.StatusModified, HasStatus: true})
	emit(correlator.Result{Event: watcher.NewDeleted("/repo/old.go")})
	emit(correlator.Result{Event: watcher.NewRenamed("/repo/x.go", "/repo/y.go"), Status: git.StatusStaged, HasStatus: true})
	emit(correlator.Result{Event: watcher.NewError("watch root removed")})
	require.NoError(t, sink.Heartbeat(testInfo()))

	assert.Equal(t, strings.Join([]string{
		"? + a.txt",
		"M ~ " + filepath.Join("src", "main.go"),
		"  - old.go",
		"S R x.go -> y.go",
		"! watch root removed",
	}, "\n")+"\n", buf.String())
}

func TestTextSink_PrintStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink, err := New(correlator.ModeStream, &buf, root())
	require.NoError(t, err)

	printer, ok := sink.(StatusPrinter)
	require.True(t, ok)

	info := testInfo()
	info.HasConflicts = true
	require.NoError(t, printer.PrintStatus(info))

	assert.Equal(t, "Branch: feature/x\n"+
		"Status: 2 ahead, 1 behind\n"+
		"CONFLICTS DETECTED\n"+
		"Files: 2 modified, 1 staged, 1 untracked\n\n", buf.String())

	buf.Reset()
	require.NoError(t, printer.PrintStatus(&git.GitInfo{Branch: "main"}))
	assert.Equal(t, "Branch: main\nFiles: 0 modified, 0 staged, 0 untracked\n\n", buf.String())
}

func TestSummarySink_PrintStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink, err := New(correlator.ModeSummary, &buf, root())
	require.NoError(t, err)

	printer, ok := sink.(StatusPrinter)
	require.True(t, ok)

	info := testInfo()
	require.NoError(t, printer.PrintStatus(info))
	assert.Equal(t, "[feature/x] ahead=2 behind=1 | M:2 S:1 U:1 total=5\n\n", buf.String())

	// The first heartbeat does not repeat an unchanged line
	require.NoError(t, sink.Heartbeat(info))
	assert.Equal(t, "[feature/x] ahead=2 behind=1 | M:2 S:1 U:1 total=5\n\n", buf.String())
}

func TestSinks_StatusPrinter(t *testing.T) {
	t.Parallel()

	for mode, want := range map[string]bool{
		correlator.ModeStream:  true,
		correlator.ModeSummary: true,
		correlator.ModeEvents:  false,
		correlator.ModeJSON:    false,
	} {
		sink, err := New(mode, &bytes.Buffer{}, root())
		require.NoError(t, err)
		_, ok := sink.(StatusPrinter)
		assert.Equal(t, want, ok, mode)
	}
}

func TestSummarySink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink, err := New(correlator.ModeSummary, &buf, root())
	require.NoError(t, err)

	info := &git.GitInfo{
		Branch:       "main",
		Ahead:        1,
		FileStatuses: map[string]git.FileStatus{"a.txt": git.StatusUntracked},
	}

	require.NoError(t, sink.Heartbeat(info))
	require.NoError(t, sink.Heartbeat(info))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"), "unchanged state prints once")

	require.NoError(t, sink.Emit(correlator.Result{Event: watcher.NewModified("/repo/a.txt")}))
	require.NoError(t, sink.Emit(correlator.Result{Event: watcher.NewModified("/repo/b.txt")}))
	require.NoError(t, sink.Heartbeat(info))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "[main] ahead=1 behind=0 | M:0 S:0 U:1 total=1")
	assert.True(t, strings.HasSuffix(lines[1], "events=2"))

	require.NoError(t, sink.Heartbeat(nil))
	assert.Contains(t, buf.String(), "git unavailable")
}

func TestNew_UnknownMode(t *testing.T) {
	t.Parallel()

	_, err := New("xml", &bytes.Buffer{}, root())
	assert.ErrorIs(t, err, ErrUnknownMode)
}
