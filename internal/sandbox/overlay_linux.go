//go:build linux

package sandbox

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/autoschematic-sh/autoschematic/internal/pkg/util/fs/overlay"
)

// bindMountWithOverlay bind-mounts src onto the lower dir of a fresh
// tmpfs-backed lower/upper/work set and mounts a writable overlay of it
// at dst, so writes through dst land in the tmpfs upper dir.
func bindMountWithOverlay(root, src, dst string) error {
	overlayBase := filepath.Join("/tmp", uuid.NewString()+".overlay")
	if err := overlay.EnsureOverlayDir(overlayBase, true, 0o755); err != nil {
		return fmt.Errorf("creating overlay base: %w", err)
	}
	if err := unix.Mount("tmpfs", overlayBase, "tmpfs", 0, ""); err != nil {
		return fmt.Errorf("mounting tmpfs at overlay base: %w", err)
	}

	lower := filepath.Join(overlayBase, "lower")
	upper := filepath.Join(overlayBase, "upper")
	work := filepath.Join(overlayBase, "work")
	for _, d := range []string{lower, upper, work} {
		if err := overlay.EnsureOverlayDir(d, true, 0o755); err != nil {
			return fmt.Errorf("creating overlay dir %s: %w", d, err)
		}
	}
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("resolving overlay source %s: %w", src, err)
	}
	// Reject src/upper filesystems the kernel overlay driver can't use as
	// a lowerdir/upperdir (NFS, FUSE, ...) before attempting the mounts.
	if err := overlay.CheckLower(srcAbs); err != nil {
		return describeOverlayRejection("overlay source", srcAbs, err)
	}
	if err := overlay.CheckUpper(upper); err != nil {
		return describeOverlayRejection("overlay upper dir", upper, err)
	}
	if err := unix.Mount(srcAbs, lower, "", unix.MS_BIND, ""); err != nil {
		_ = overlay.DetachAndDelete(overlayBase)
		return fmt.Errorf("bind-mounting %s to lower: %w", src, err)
	}

	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s,userxattr", lower, upper, work)
	if err := unix.Mount("overlay", dst, "overlay", 0, opts); err != nil {
		// Tear down the lower bind mount and the tmpfs base we already
		// built rather than leaving them mounted under a failed overlay.
		_ = overlay.DetachMount(context.Background(), lower)
		_ = overlay.DetachAndDelete(overlayBase)
		return fmt.Errorf("mounting overlayfs at %s: %w", dst, err)
	}
	_ = root
	return nil
}

// describeOverlayRejection annotates a CheckLower/CheckUpper failure,
// calling out filesystem-incompatibility errors by name since those are
// actionable (move the prefix off NFS/FUSE/...) unlike a generic statfs
// failure.
func describeOverlayRejection(what, path string, err error) error {
	if overlay.IsIncompatible(err) {
		return fmt.Errorf("%s %s: %w (unsupported as an overlay directory)", what, path, err)
	}
	return fmt.Errorf("%s %s: %w", what, path, err)
}
