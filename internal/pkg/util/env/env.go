// Copyright (c) 2018-2023, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package env

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// SetFromList sets environment variables from an environ argument list.
func SetFromList(environ []string) error {
	for _, env := range environ {
		splitted := strings.SplitN(env, "=", 2)
		if len(splitted) != 2 {
			return fmt.Errorf("can't process environment variable %s", env)
		}
		if err := os.Setenv(splitted[0], splitted[1]); err != nil {
			return err
		}
	}
	return nil
}

// FileMap returns a map of KEY=VALUE env vars read from a connector/prefix
// env file. Blank lines and lines starting with '#' are ignored. Env
// files are not shell-evaluated: no quoting or variable expansion, one
// literal KEY=VALUE per line.
func FileMap(f string) (map[string]string, error) {
	file, err := os.Open(f)
	if err != nil {
		return nil, fmt.Errorf("could not open environment file %q: %w", f, err)
	}
	defer file.Close()

	envMap := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed line in environment file %q: %q", f, line)
		}
		envMap[parts[0]] = parts[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("while reading environment file %q: %w", f, err)
	}

	return envMap, nil
}

// MergeMap merges two maps of environment variables, with values in b
// replacing values also set in a. Later callers in
// internal/connectorcache apply this in the order: prefix env file, prefix
// env map, connector env file, connector env map.
func MergeMap(a map[string]string, b map[string]string) map[string]string {
	for k, v := range b {
		a[k] = v
	}
	return a
}
