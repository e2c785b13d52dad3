package connectorcache

import (
	"context"
	"os"

	"github.com/blang/semver/v4"

	"github.com/autoschematic-sh/autoschematic/internal/errtypes"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// HostVersion is this build's protocol version, compared against every
// connector's version() response.
const HostVersion = "1.0.0"

// EnvNoVersionCheck, set to any non-empty value, bypasses the version
// match enforced by checkVersion.
const EnvNoVersionCheck = "AUTOSCHEMATIC_NO_VERSION_CHECK"

// checkVersion calls conn.Version() and compares it against HostVersion
// using semantic-version equality, skipping the check entirely when
// EnvNoVersionCheck is set. A malformed connector version string is
// treated as a mismatch rather than a parse error (a malformed
// HostVersion skips the check); the connector remains usable for
// non-init ops, which report their own errors.
func checkVersion(ctx context.Context, shortname string, conn protocol.Connector) error {
	if os.Getenv(EnvNoVersionCheck) != "" {
		return nil
	}

	connVerStr, err := conn.Version(ctx)
	if err != nil {
		return err
	}

	hostVer, err := semver.Parse(HostVersion)
	if err != nil {
		return nil // host version itself malformed: never block on our own build
	}
	connVer, err := semver.Parse(connVerStr)
	if err != nil || !connVer.EQ(hostVer) {
		return &errtypes.InvalidConnectorVersionError{
			Shortname: shortname,
			ConnVer:   connVerStr,
			HostVer:   HostVersion,
		}
	}
	return nil
}
