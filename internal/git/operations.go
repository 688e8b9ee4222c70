package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CLIProvider computes status by running the git binary. It matches git's
// own view of the repository exactly, at the cost of process spawns.
type CLIProvider struct {
	opts Options
	bin  string
}

// NewCLIProvider creates a StatusProvider that shells out to git.
func NewCLIProvider(opts Options) *CLIProvider {
	return &CLIProvider{opts: opts, bin: "git"}
}

// Compute runs the git commands that make up a snapshot.
func (p *CLIProvider) Compute(ctx context.Context, root string) (*GitInfo, error) {
	toplevel, err := p.run(ctx, root, "rev-parse", "--show-toplevel")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable("no repository at %s", root)
	}
	top := strings.TrimSpace(toplevel)

	if _, err := p.run(ctx, top, "rev-parse", "--verify", "-q", "HEAD"); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable("HEAD has no commits")
	}

	info := &GitInfo{
		Root:         top,
		Branch:       DetachedBranch,
		FileStatuses: make(map[string]FileStatus),
	}

	if out, err := p.run(ctx, top, "symbolic-ref", "--short", "-q", "HEAD"); err == nil {
		info.Branch = strings.TrimSpace(out)
		info.Ahead, info.Behind = p.upstreamCounts(ctx, top, info.Branch)
	}

	untracked := "--untracked-files=normal"
	if p.opts.RecurseUntracked {
		untracked = "--untracked-files=all"
	}
	out, err := p.run(ctx, top, "status", "--porcelain=v1", "-z", untracked)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable("status: %v", err)
	}

	for _, entry := range parsePorcelain(out) {
		info.FileStatuses[entry.path] = entry.status
		if entry.status == StatusConflicted {
			info.HasConflicts = true
		}
	}
	return info, nil
}

func (p *CLIProvider) upstreamCounts(ctx context.Context, dir, branch string) (uint, uint) {
	upstream := "refs/remotes/" + UpstreamRemote + "/" + branch
	if _, err := p.run(ctx, dir, "show-ref", "--verify", "-q", upstream); err != nil {
		return 0, 0
	}

	out, err := p.run(ctx, dir, "rev-list", "--left-right", "--count", "HEAD..."+upstream)
	if err != nil {
		log.WithField("branch", branch).WithError(err).Warn("ahead/behind computation failed")
		return 0, 0
	}

	ahead, behind, err := parseLeftRight(out)
	if err != nil {
		log.WithField("branch", branch).WithError(err).Warn("unexpected rev-list output")
		return 0, 0
	}
	return ahead, behind
}

func (p *CLIProvider) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(output), nil
}

type porcelainEntry struct {
	path   string
	status FileStatus
}

// parsePorcelain parses `git status --porcelain=v1 -z` output. Rename and
// copy records carry the original path as an extra NUL-terminated field.
func parsePorcelain(out string) []porcelainEntry {
	fields := strings.Split(out, "\x00")
	entries := make([]porcelainEntry, 0, len(fields))

	for i := 0; i < len(fields); i++ {
		rec := fields[i]
		if len(rec) < 4 {
			continue
		}
		x, y := rec[0], rec[1]
		path := rec[3:]

		if x == codeRenamed || x == codeCopied {
			i++
		}
		if x == '!' {
			continue
		}

		entries = append(entries, porcelainEntry{
			path:   path,
			status: Classify(x, y, unmergedPair(x, y)),
		})
	}
	return entries
}

// parseLeftRight parses "<ahead>\t<behind>" from rev-list --left-right --count.
func parseLeftRight(out string) (uint, uint, error) {
	parts := strings.Fields(out)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want 2 counts, got %q", strings.TrimSpace(out))
	}
	ahead, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	behind, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint(ahead), uint(behind), nil
}
