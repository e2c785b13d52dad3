package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/autoschematic-sh/autoschematic/internal/addressing"
	"github.com/autoschematic-sh/autoschematic/internal/outputmap"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// ImportEvent is a progress notification emitted during ImportAll,
// consumed by cmd/internal/cli to print progress and by any future
// server/LSP surface.
type ImportEvent struct {
	Kind   string // start_import, skip_existing, start_get, wrote_file, get_success, not_found
	Prefix string
	Addr   string
	Path   string
}

// ImportResource pulls one physical resource address into the repo as a
// file at its virtual address, skipping addresses that already exist
// on disk or have an output file unless overwriteExisting is set.
func ImportResource(
	ctx context.Context,
	shortname string,
	conn protocol.Connector,
	prefix, phyAddr string,
	overwriteExisting bool,
	events chan<- ImportEvent,
) error {
	phyAddr = strings.TrimPrefix(phyAddr, "/")

	virtAddr, err := addressing.ResolvePhyToVirt(ctx, conn, phyAddr)
	if err != nil {
		return err
	}

	phyPath := filepath.Join(prefix, phyAddr)
	virtPath := filepath.Join(prefix, virtAddr)
	phyOutExists, err := outputmap.Exists(prefix, phyAddr)
	if err != nil {
		return err
	}
	virtOutExists, err := outputmap.Exists(prefix, virtAddr)
	if err != nil {
		return err
	}

	exists := func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	}

	switch {
	case exists(virtPath) && !overwriteExisting:
		send(events, ImportEvent{Kind: "skip_existing", Prefix: prefix, Addr: virtAddr})
		return nil
	case exists(phyPath) && !overwriteExisting:
		send(events, ImportEvent{Kind: "skip_existing", Prefix: prefix, Addr: phyAddr})
		return nil
	case phyOutExists && !overwriteExisting:
		send(events, ImportEvent{Kind: "skip_existing", Prefix: prefix, Addr: phyAddr})
		return nil
	case virtOutExists && !overwriteExisting:
		send(events, ImportEvent{Kind: "skip_existing", Prefix: prefix, Addr: virtAddr})
		return nil
	}

	send(events, ImportEvent{Kind: "start_get", Prefix: prefix, Addr: phyAddr})

	out, err := conn.Get(ctx, phyAddr)
	if err != nil {
		return fmt.Errorf("%s::get(%s): %w", shortname, phyAddr, err)
	}
	if out == nil {
		send(events, ImportEvent{Kind: "not_found", Prefix: prefix, Addr: phyAddr})
		return nil
	}

	send(events, ImportEvent{Kind: "get_success", Prefix: prefix, Addr: virtAddr})

	if err := os.MkdirAll(filepath.Dir(virtPath), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", virtPath, err)
	}
	if err := os.WriteFile(virtPath, out.ResourceDefinition, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", virtPath, err)
	}
	send(events, ImportEvent{Kind: "wrote_file", Prefix: prefix, Path: virtPath})

	if len(out.Outputs) > 0 {
		delta := make(map[string]*string, len(out.Outputs))
		for k, v := range out.Outputs {
			v := v
			delta[k] = &v
		}
		if _, err := outputmap.ApplyDelta(prefix, virtAddr, delta); err != nil {
			return err
		}
		if virtAddr != phyAddr {
			if _, err := outputmap.WriteLink(prefix, phyAddr, virtAddr); err != nil {
				return err
			}
		}
	}

	return nil
}

func send(events chan<- ImportEvent, ev ImportEvent) {
	if events != nil {
		events <- ev
	}
}
