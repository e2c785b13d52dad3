// Package safetylock implements the safety-lock sentinel file: while
// present, the mutating commands (apply, import, unbundle, run-task)
// refuse to run.
package safetylock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/autoschematic-sh/autoschematic/internal/errtypes"
)

const sentinelName = ".autoschematic.lock"

func sentinelPath(repoRoot string) string {
	return filepath.Join(repoRoot, sentinelName)
}

// Locked reports whether the safety lock sentinel file is present.
func Locked(repoRoot string) (bool, error) {
	_, err := os.Stat(sentinelPath(repoRoot))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking safety lock: %w", err)
}

// Lock creates the sentinel file, recording when it was engaged and the
// given reason.
func Lock(repoRoot, reason string) error {
	body := fmt.Sprintf("locked at %s: %s\n", time.Now().UTC().Format(time.RFC3339), reason)
	if err := os.WriteFile(sentinelPath(repoRoot), []byte(body), 0o644); err != nil {
		return fmt.Errorf("engaging safety lock: %w", err)
	}
	return nil
}

// Unlock removes the sentinel file. No error if it was already absent.
func Unlock(repoRoot string) error {
	if err := os.Remove(sentinelPath(repoRoot)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("releasing safety lock: %w", err)
	}
	return nil
}

// Check returns errtypes.ErrSafetyLocked if the lock is engaged, nil
// otherwise. Callers wrap every mutating entry point with this.
func Check(repoRoot string) error {
	locked, err := Locked(repoRoot)
	if err != nil {
		return err
	}
	if locked {
		return errtypes.ErrSafetyLocked
	}
	return nil
}
