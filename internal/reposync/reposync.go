// Package reposync provides the repo-wide locking and version-control
// staging helpers used by the apply, import, unbundle and pull-state
// commands: a single flock held for the duration of the operation, plus
// a thin "stage this file" helper.
//
// Staging shells out to the git binary rather than linking a git
// library: autoschematic only needs `git add`, and the repository's
// version-control plumbing otherwise belongs to the user.
package reposync

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const lockFilename = ".autoschematic.repolock"

// RepoLock holds a repo-root flock for the duration of a mutating
// operation. Concurrent autoschematic invocations against the same repo
// serialize on this.
type RepoLock struct {
	lock *flock.Flock
}

// WaitForFlock blocks (polling, bounded by ctx) until it acquires the
// repo-root lock file. It uses flock's TryLockContext, which retries a
// non-blocking lock every 200ms until it succeeds or ctx is done, rather
// than a blocking flock syscall.
func WaitForFlock(ctx context.Context, repoRoot string) (*RepoLock, error) {
	path := filepath.Join(repoRoot, lockFilename)
	l := flock.New(path)

	locked, err := l.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("could not acquire repo lock %s", path)
	}
	return &RepoLock{lock: l}, nil
}

// Release drops the repo lock. Safe to call on a nil *RepoLock.
func (r *RepoLock) Release() error {
	if r == nil || r.lock == nil {
		return nil
	}
	return r.lock.Unlock()
}

// StageFile runs `git add` for path inside repoRoot: record that a file
// changed so a later commit (performed outside autoschematic, by CI or
// by hand) picks it up.
// A repoRoot that is not a git work tree is not an error here -- plenty
// of autoschematic deployments manage version control out of band.
func StageFile(ctx context.Context, repoRoot, path string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "add", "--", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if isNotAGitRepo(err, out) {
			return nil
		}
		return fmt.Errorf("git add %s: %w: %s", path, err, out)
	}
	return nil
}

func isNotAGitRepo(err error, out []byte) bool {
	_, ok := err.(*exec.ExitError)
	return ok && strings.Contains(string(out), "not a git repository")
}
