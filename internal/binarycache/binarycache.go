// Package binarycache downloads and caches connector release archives
// from GitHub. Releases are fetched to
// {cache_folder}/{owner}/{repo}/{version}/ and guarded by a per-release
// flock held during extraction, with a ".clean" sentinel marking a
// fully-extracted release -- a second caller sees the sentinel and
// skips straight to using the cached directory.
//
// Release metadata and asset download both go through
// github.com/google/go-github.
package binarycache

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/go-github/v66/github"
	digest "github.com/opencontainers/go-digest"

	securejoin "github.com/cyphar/filepath-securejoin"
)

const (
	lockFilename  = ".lock"
	cleanFilename = ".clean"
)

// ConnectorManifest is the subset of a connector's release manifest the
// cache needs to pick the right release asset.
type ConnectorManifest struct {
	Type           string // e.g. "binary-tarpc"
	ExecutableName string
}

// Cache downloads and extracts connector release archives under
// CacheFolder, one directory per (owner, repo, version).
type Cache struct {
	CacheFolder string
	Client      *github.Client
}

// New constructs a Cache rooted at cacheFolder, creating it if absent.
// A nil client falls back to an unauthenticated github.NewClient(nil),
// sufficient for public connector repos but subject to GitHub's stricter
// anonymous rate limit.
func New(cacheFolder string, client *github.Client) (*Cache, error) {
	if err := os.MkdirAll(cacheFolder, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache folder %s: %w", cacheFolder, err)
	}
	if client == nil {
		client = github.NewClient(nil)
	}
	return &Cache{CacheFolder: cacheFolder, Client: client}, nil
}

// FetchConnectorRelease returns the directory containing the extracted
// release for (owner, repo, version), downloading and unpacking it on
// first use. Concurrent callers for the same release block on a flock
// over the release directory rather than racing to extract.
func (c *Cache) FetchConnectorRelease(ctx context.Context, owner, repo, version string, manifest ConnectorManifest, arch string) (string, error) {
	outDir := filepath.Join(c.CacheFolder, owner, repo, version)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating release dir %s: %w", outDir, err)
	}

	lockPath := filepath.Join(outDir, lockFilename)
	l := flock.New(lockPath)
	locked, err := l.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("locking %s: %w", lockPath, err)
	}
	if !locked {
		return "", fmt.Errorf("could not acquire release lock %s", lockPath)
	}
	defer l.Unlock()

	cleanPath := filepath.Join(outDir, cleanFilename)
	if _, err := os.Stat(cleanPath); err == nil {
		return outDir, nil
	}

	release, _, err := c.Client.Repositories.GetReleaseByTag(ctx, owner, repo, version)
	if err != nil {
		return "", fmt.Errorf("fetching release %s/%s@%s: %w", owner, repo, version, err)
	}

	assetName := assetNameFor(manifest, arch)
	var asset *github.ReleaseAsset
	for _, a := range release.Assets {
		if a.GetName() == assetName {
			asset = a
			break
		}
	}
	if asset == nil {
		return "", fmt.Errorf("no asset named %s in release %s/%s@%s", assetName, owner, repo, version)
	}
	if !strings.HasSuffix(assetName, ".tar.gz") {
		return "", fmt.Errorf("asset %s is not a tar.gz archive", assetName)
	}

	rc, redirectURL, err := c.Client.Repositories.DownloadReleaseAsset(ctx, owner, repo, asset.GetID(), http.DefaultClient)
	if err != nil {
		return "", fmt.Errorf("opening asset %s: %w", assetName, err)
	}
	if rc == nil {
		rc, err = downloadFollowingRedirect(ctx, redirectURL)
		if err != nil {
			return "", fmt.Errorf("downloading asset %s: %w", assetName, err)
		}
	}
	defer rc.Close()

	if err := extractTarGz(outDir, rc); err != nil {
		return "", fmt.Errorf("extracting %s: %w", assetName, err)
	}

	if f, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		_ = f.Close()
	}

	return outDir, nil
}

func assetNameFor(m ConnectorManifest, arch string) string {
	if m.Type == "binary-tarpc" {
		return fmt.Sprintf("%s-%s.tar.gz", m.ExecutableName, arch)
	}
	return fmt.Sprintf("%s-noarch.tar.gz", m.ExecutableName)
}

func downloadFollowingRedirect(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// extractTarGz unpacks a gzip-compressed tar stream into outDir,
// resolving every entry path through filepath-securejoin so a malicious
// or malformed archive cannot write outside the release directory.
func extractTarGz(outDir string, r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		target, err := securejoin.SecureJoin(outDir, hdr.Name)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			//nolint:gosec
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}

// VerifyDigest checks body against an expected "algo:hex" digest string,
// using github.com/opencontainers/go-digest the way OCI image layers are
// checksummed, for connector archives published alongside a manifest
// digest.
func VerifyDigest(body []byte, expected string) error {
	want, err := digest.Parse(expected)
	if err != nil {
		return fmt.Errorf("parsing digest %s: %w", expected, err)
	}
	got := want.Algorithm().FromBytes(body)
	if got != want {
		return fmt.Errorf("digest mismatch: want %s, got %s", want, got)
	}
	return nil
}
