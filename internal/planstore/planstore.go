// Package planstore persists the last PlanReport produced for each
// (prefix, shortname, addr), bridging the `plan` and `apply` CLI
// invocations: apply requires a plan report to already be on disk and
// not yet fully applied, which is a cross-process requirement since
// plan and apply are separate command invocations. Reports live in a
// single bbolt database file at the path given to Open.
package planstore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/autoschematic-sh/autoschematic/internal/workflow/report"
)

var plansBucket = []byte("plans")

// Store wraps a single bbolt database file holding one PlanReport per
// resource key.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening plan store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(plansBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing plan store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func key(prefix, shortname, addr string) []byte {
	return []byte(prefix + "\x00" + shortname + "\x00" + addr)
}

// Put persists report under (prefix, shortname, addr), overwriting any
// earlier plan for the same resource.
func (s *Store) Put(prefix, shortname, addr string, r *report.PlanReport) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding plan report: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(plansBucket).Put(key(prefix, shortname, addr), b)
	})
}

// Get loads the last plan report for (prefix, shortname, addr), if any.
func (s *Store) Get(prefix, shortname, addr string) (*report.PlanReport, bool, error) {
	var out *report.PlanReport
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(plansBucket).Get(key(prefix, shortname, addr))
		if b == nil {
			return nil
		}
		var r report.PlanReport
		if err := json.Unmarshal(b, &r); err != nil {
			return fmt.Errorf("decoding plan report: %w", err)
		}
		out = &r
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Delete removes the plan report for (prefix, shortname, addr). Apply
// does not call it: a consumed report stays in the store with
// FullyApplied set.
func (s *Store) Delete(prefix, shortname, addr string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(plansBucket).Delete(key(prefix, shortname, addr))
	})
}
