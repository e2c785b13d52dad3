// Copyright (c) 2018-2023, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetFromList(t *testing.T) {
	tt := []struct {
		name    string
		environ []string
		wantErr bool
	}{
		{
			name: "all ok",
			environ: []string{
				"HOME=/home/tester",
				"PATH=/usr/bin",
			},
			wantErr: false,
		},
		{
			name: "bad envs",
			environ: []string{
				"HOME=/home/tester",
				"TEST",
			},
			wantErr: true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := SetFromList(tc.environ)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestHostEnvMap(t *testing.T) {
	host := []string{"FOO=bar", "TERM=xterm", "SECRET=shh"}

	clean := HostEnvMap(host, true)
	require.Equal(t, map[string]string{"TERM": "xterm"}, clean)

	dirty := HostEnvMap(host, false)
	require.Equal(t, map[string]string{"FOO": "bar", "TERM": "xterm", "SECRET": "shh"}, dirty)
}

func TestFileMap(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
		wantErr bool
	}{
		{
			name:    "simple",
			content: "FOO=BAR\nABC=123\n",
			want:    map[string]string{"FOO": "BAR", "ABC": "123"},
		},
		{
			name:    "comments and blanks",
			content: "# comment\n\nFOO=BAR\n",
			want:    map[string]string{"FOO": "BAR"},
		},
		{
			name:    "malformed",
			content: "NOTAVAR\n",
			wantErr: true,
		},
	}

	dir := t.TempDir()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := filepath.Join(dir, tc.name)
			require.NoError(t, os.WriteFile(f, []byte(tc.content), 0o644))

			got, err := FileMap(f)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestMergeMap(t *testing.T) {
	a := map[string]string{"A": "1", "B": "2"}
	b := map[string]string{"B": "3", "C": "4"}
	got := MergeMap(a, b)
	require.Equal(t, map[string]string{"A": "1", "B": "3", "C": "4"}, got)
}
