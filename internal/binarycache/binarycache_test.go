package binarycache

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/require"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(body)), Mode: 0o644}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestFetchConnectorReleaseDownloadsAndExtracts(t *testing.T) {
	archive := buildTarGz(t, map[string]string{"myconn": "#!/bin/sh\necho hi\n"})

	assetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer assetSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/repos/acme/myconn/releases/tags/v1.0.0":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":1,"tag_name":"v1.0.0","assets":[{"id":42,"name":"myconn-linux-amd64.tar.gz"}]}`))
		case r.URL.Path == "/repos/acme/myconn/releases/assets/42":
			http.Redirect(w, r, assetSrv.URL, http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer apiSrv.Close()

	client := github.NewClient(nil)
	base, err := client.BaseURL.Parse(apiSrv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	dir := t.TempDir()
	cache, err := New(dir, client)
	require.NoError(t, err)

	manifest := ConnectorManifest{Type: "binary-tarpc", ExecutableName: "myconn"}
	outDir, err := cache.FetchConnectorRelease(context.Background(), "acme", "myconn", "v1.0.0", manifest, "linux-amd64")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(outDir, "myconn"))
	require.FileExists(t, filepath.Join(outDir, cleanFilename))
}

func TestFetchConnectorReleaseSkipsCleanCache(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "acme", "myconn", "v1.0.0")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, cleanFilename), nil, 0o644))

	cache, err := New(dir, nil)
	require.NoError(t, err)

	got, err := cache.FetchConnectorRelease(context.Background(), "acme", "myconn", "v1.0.0", ConnectorManifest{ExecutableName: "myconn"}, "linux-amd64")
	require.NoError(t, err)
	require.Equal(t, outDir, got)
}

func TestVerifyDigestMismatch(t *testing.T) {
	err := VerifyDigest([]byte("hello"), "sha256:0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
}
