// Copyright (c) 2019-2023, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package bin provides access to the small set of external binaries the
// sandbox launcher shells out to.
package bin

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/autoschematic-sh/autoschematic/internal/logging"
	"github.com/autoschematic-sh/autoschematic/internal/pkg/util/env"
)

// FindBin returns the path to the named binary, or an error if it is not found.
func FindBin(name string) (path string, err error) {
	switch name {
	case "mount", "umount", "newuidmap", "newgidmap", "git":
		return findOnPath(name)
	default:
		return "", fmt.Errorf("executable name %q is not known to FindBin", name)
	}
}

// findOnPath performs a simple search on PATH for the named executable,
// returning its full path. env.DefaultPath is appended to PATH to ensure
// standard locations are searched, since some distributions don't include
// sbin on a user's PATH.
func findOnPath(name string) (path string, err error) {
	oldPath := os.Getenv("PATH")
	defer os.Setenv("PATH", oldPath)
	os.Setenv("PATH", oldPath+":"+env.DefaultPath)

	path, err = exec.LookPath(name)
	if err == nil {
		logging.Debugf("found %q at %q", name, path)
	}
	return path, err
}
