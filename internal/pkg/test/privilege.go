// Copyright (c) 2018-2023, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package test holds small test-gating helpers shared across package tests
// that exercise privilege escalation or require running as a particular
// user.
package test

import (
	"os"
	"testing"
)

// EnsurePrivilege skips the test unless it is run as root.
func EnsurePrivilege(t *testing.T) {
	t.Helper()
	if os.Getuid() != 0 {
		t.Skip("test requires root privileges")
	}
}

// DropPrivilege is a no-op placeholder for parity with upstream's
// setuid-binary test harness; this module never runs setuid.
func DropPrivilege(t *testing.T) {
	t.Helper()
}

// ResetPrivilege is a no-op placeholder, see DropPrivilege.
func ResetPrivilege(t *testing.T) {
	t.Helper()
}
