// Package outputmap persists the per-resource output map
// (<prefix>/.outputs/<addr>.out.json): apply-delta merge, empty-map
// deletion, and physical-address link files that reference a virtual
// output file. The file format is JSON.
package outputmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

const outputsDirName = ".outputs"

// Path returns the output file path for addr under prefix, without
// creating it.
func Path(prefix, addr string) (string, error) {
	rel := addr + ".out.json"
	return securejoin.SecureJoin(filepath.Join(prefix, outputsDirName), rel)
}

// record is the on-disk shape. A link record carries only Link; readers
// follow at most one indirection.
type record struct {
	Link   string            `json:"link,omitempty"`
	Values map[string]string `json:"values,omitempty"`
}

func readRecord(path string) (*record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading output map %s: %w", path, err)
	}
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parsing output map %s: %w", path, err)
	}
	return &r, nil
}

// Read loads the fully-resolved output map at addr, following one link
// indirection if the file at addr is a link.
func Read(prefix, addr string) (protocol.OutputMapFile, error) {
	path, err := Path(prefix, addr)
	if err != nil {
		return nil, err
	}
	r, err := readRecord(path)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return protocol.OutputMapFile{}, nil
	}
	if r.Link != "" {
		linkPath, err := Path(prefix, r.Link)
		if err != nil {
			return nil, err
		}
		target, err := readRecord(linkPath)
		if err != nil {
			return nil, err
		}
		if target == nil || target.Link != "" {
			return protocol.OutputMapFile{}, nil
		}
		return protocol.OutputMapFile(target.Values), nil
	}
	return protocol.OutputMapFile(r.Values), nil
}

// Get reads a single key from the output map at addr.
func Get(prefix, addr, key string) (string, bool, error) {
	m, err := Read(prefix, addr)
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func writeRecord(path string, r *record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir for %s: %w", path, err)
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output map %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing output map %s: %w", path, err)
	}
	return nil
}

// ApplyDelta merges delta into the existing map at addr: Some(v) inserts
// or overwrites, nil removes the key, keys absent from delta are
// preserved. If the resulting map is empty the file is deleted. Returns
// the path written to (or deleted), or "" if there was nothing to do.
func ApplyDelta(prefix, addr string, delta protocol.OutputMap) (string, error) {
	path, err := Path(prefix, addr)
	if err != nil {
		return "", err
	}
	existing, err := Read(prefix, addr)
	if err != nil {
		return "", err
	}
	merged := protocol.OutputMapFile{}
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range delta {
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = *v
		}
	}
	if len(merged) == 0 {
		return Delete(prefix, addr)
	}
	if err := writeRecord(path, &record{Values: merged}); err != nil {
		return "", err
	}
	return path, nil
}

// Delete removes the output file at addr if present, returning its path
// (or "" if nothing existed).
func Delete(prefix, addr string) (string, error) {
	path, err := Path(prefix, addr)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat output map %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("removing output map %s: %w", path, err)
	}
	return path, nil
}

// WriteLink writes a link file at phyAddr pointing at virtAddr's output
// file, returning the link file's path. Used when the physical address
// differs from the virtual one.
func WriteLink(prefix, phyAddr, virtAddr string) (string, error) {
	path, err := Path(prefix, phyAddr)
	if err != nil {
		return "", err
	}
	if err := writeRecord(path, &record{Link: virtAddr}); err != nil {
		return "", err
	}
	return path, nil
}

// Exists reports whether an output file is present at addr (link or
// values), without resolving link indirection.
func Exists(prefix, addr string) (bool, error) {
	path, err := Path(prefix, addr)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
