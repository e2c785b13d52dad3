// Copyright (c) 2023, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package rootless resolves the uid/gid a sandboxed connector process
// should be treated as running under, honoring the rootless-uid/gid
// environment variables a parent sandbox process sets for its child.
package rootless

import (
	"os"
	"os/user"
	"strconv"
)

const (
	// NSEnv marks that the current process is running inside a namespace
	// constructed by internal/sandbox.
	NSEnv = "_AUTOSCHEMATIC_NAMESPACE"
	// UIDEnv carries the uid the sandboxed process should report itself as.
	UIDEnv = "_AUTOSCHEMATIC_ROOTLESS_UID"
	// GIDEnv carries the gid the sandboxed process should report itself as.
	GIDEnv = "_AUTOSCHEMATIC_ROOTLESS_GID"
)

// Getuid retrieves the uid stored in UIDEnv, or the current euid if unset.
func Getuid() (uid int, err error) {
	u := os.Getenv(UIDEnv)
	if u != "" {
		return strconv.Atoi(u)
	}
	return os.Geteuid(), nil
}

// Getgid retrieves the gid stored in GIDEnv, or the current egid if unset.
func Getgid() (uid int, err error) {
	g := os.Getenv(GIDEnv)
	if g != "" {
		return strconv.Atoi(g)
	}
	return os.Getegid(), nil
}

// GetUser retrieves the User struct for the uid stored in UIDEnv, or the
// current user if unset.
func GetUser() (*user.User, error) {
	u := os.Getenv(UIDEnv)
	if u != "" {
		return user.LookupId(u)
	}
	return user.Current()
}

// InNS returns true if the current process is running inside a namespace
// constructed by internal/sandbox.
func InNS() bool {
	_, envSet := os.LookupEnv(NSEnv)
	return envSet
}
