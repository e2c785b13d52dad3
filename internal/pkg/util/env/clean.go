// Copyright (c) 2018-2023, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package env

import (
	"strings"

	"github.com/autoschematic-sh/autoschematic/internal/logging"
)

const (
	// DefaultPath defines the default value for PATH inside a sandbox.
	DefaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// AlwaysPassKeys lists host environment variables that are always passed
// into a connector sandbox regardless of its configured env map.
var AlwaysPassKeys = map[string]struct{}{
	"TERM":        {},
	"http_proxy":  {},
	"HTTP_PROXY":  {},
	"https_proxy": {},
	"HTTPS_PROXY": {},
	"no_proxy":    {},
	"NO_PROXY":    {},
}

// AddHostEnv reports whether the named host environment variable should be
// forwarded into a sandbox when cleanEnv is set.
func AddHostEnv(key string, cleanEnv bool) bool {
	if _, ok := AlwaysPassKeys[key]; ok {
		return true
	}
	return !cleanEnv
}

// HostEnvMap returns a map of host env vars eligible to pass into a sandbox.
func HostEnvMap(hostEnvs []string, cleanEnv bool) map[string]string {
	hostEnv := map[string]string{}

	for _, envVar := range hostEnvs {
		parts := strings.SplitN(envVar, "=", 2)
		if len(parts) < 2 {
			continue
		}
		if !AddHostEnv(parts[0], cleanEnv) {
			continue
		}
		hostEnv[parts[0]] = parts[1]
	}

	return hostEnv
}

// SetFromListLogged applies a list of "KEY=VALUE" env entries to the current
// process environment, logging and skipping malformed entries rather than
// failing the whole batch.
func SetFromListLogged(environ []string, setenv func(key, val string) error) {
	for _, e := range environ {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			logging.Debugf("can't process environment variable %q", e)
			continue
		}
		if err := setenv(parts[0], parts[1]); err != nil {
			logging.Warnf("could not set %s: %v", parts[0], err)
		}
	}
}
