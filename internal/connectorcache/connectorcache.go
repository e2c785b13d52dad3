// Package connectorcache is the connector cache and lifecycle manager: a
// (prefix, shortname) -> running connector handle map, spawning
// connectors on demand and reusing them across calls.
//
// A per-key RWMutex pool serializes concurrent first-time requests for
// the same (prefix, shortname): the second caller blocks on the key's
// lock and observes the first caller's now-cached handle instead of
// racing to spawn a second instance.
package connectorcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/autoschematic-sh/autoschematic/internal/config"
	"github.com/autoschematic-sh/autoschematic/internal/keystore"
	"github.com/autoschematic-sh/autoschematic/internal/pkg/util/env"
	"github.com/autoschematic-sh/autoschematic/internal/sandbox"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// InitStatus tracks where a connector is in its spawn/init lifecycle.
type InitStatus int

const (
	Offline InitStatus = iota
	Spawning
	Initializing
	Running
)

// Key identifies one connector instance by the prefix it runs under and
// its shortname within that prefix.
type Key struct {
	Prefix    string
	Shortname string
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.Prefix, k.Shortname) }

// Spawner launches a new connector process for (shortname, prefix),
// resolving its rootfs/binary and building the sandbox; supplied by the
// caller (cmd/internal/cli wiring) so this package stays independent of
// internal/binarycache's release-resolution policy.
type Spawner func(ctx context.Context, shortname, prefix string, spec config.Spec, env map[string]string) (*sandbox.Handle, error)

type entry struct {
	handle *sandbox.Handle
}

// Cache is a handle to multiple running connector instances, spawned and
// initialized on demand. The server, CLI, and LSP entry points share one
// Cache so repeated operations against the same connector reuse its
// process instead of respawning it.
type Cache struct {
	spawn    Spawner
	keystore keystore.KeyStore

	mu      sync.Mutex // guards the maps below and the locks map itself
	entries map[Key]*entry
	locks   map[Key]*sync.RWMutex
	status  map[Key]InitStatus
	filters map[Key]map[string]protocol.FilterResult
}

// New constructs an empty Cache. ks may be nil if no keystore is
// configured.
func New(spawn Spawner, ks keystore.KeyStore) *Cache {
	return &Cache{
		spawn:    spawn,
		keystore: ks,
		entries:  map[Key]*entry{},
		locks:    map[Key]*sync.RWMutex{},
		status:   map[Key]InitStatus{},
		filters:  map[Key]map[string]protocol.FilterResult{},
	}
}

func (c *Cache) lockFor(key Key) *sync.RWMutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		c.locks[key] = l
	}
	return l
}

// Status reports the live resource usage of every spawned connector.
func (c *Cache) Status() map[Key]sandbox.Status {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	res := make(map[Key]sandbox.Status, len(keys))
	for _, k := range keys {
		c.mu.Lock()
		e, ok := c.entries[k]
		c.mu.Unlock()
		if ok {
			res[k] = e.handle.Status()
		}
	}
	return res
}

// GetConnector returns an already-running connector, or ok=false if it
// has not been spawned yet.
func (c *Cache) GetConnector(shortname, prefix string) (protocol.Connector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[Key{Prefix: prefix, Shortname: shortname}]
	if !ok {
		return nil, false
	}
	return e.handle.Client, true
}

// Subscribe attaches a receiver to a cached connector's stdout/stderr
// broadcast inbox. ok is false when the connector has not been spawned
// yet. Call cancel to detach the receiver.
func (c *Cache) Subscribe(shortname, prefix string) (ch <-chan string, cancel func(), ok bool) {
	c.mu.Lock()
	e, ok := c.entries[Key{Prefix: prefix, Shortname: shortname}]
	c.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	ch, cancel = e.handle.Subscribe()
	return ch, cancel, true
}

// GetOrSpawnConnector returns the cached connector for (prefix,
// connectorDef.Shortname), spawning and optionally init()-ing it if
// absent. Concurrent calls for the same key serialize on that key's lock,
// so only one spawn ever happens per (prefix, shortname).
//
// Env resolution order: prefix env-file, prefix env map, connector
// env-file, connector env map, each later source overriding keys set by
// an earlier one.
func (c *Cache) GetOrSpawnConnector(
	ctx context.Context,
	cfg *config.AutoschematicConfig,
	prefix string,
	connectorDef config.Connector,
	doInit bool,
) (protocol.Connector, error) {
	key := Key{Prefix: prefix, Shortname: connectorDef.Shortname}

	prefixDef, ok := cfg.Prefixes[prefix]
	if !ok {
		return nil, fmt.Errorf("no such prefix %q", prefix)
	}

	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	e, cached := c.entries[key]
	c.mu.Unlock()

	if cached {
		// An already-Running connector must not be re-initialized (and its
		// filter cache wiped) on every call, only the first time it is
		// observed offline after being cached.
		if doInit && c.statusFor(key) == Offline {
			c.setStatus(key, Initializing)
			if err := e.handle.Client.Init(ctx); err != nil {
				return nil, fmt.Errorf("init connector %s: %w", key, err)
			}
			if err := checkVersion(ctx, key.Shortname, e.handle.Client); err != nil {
				c.setStatus(key, Offline)
				return nil, err
			}
			c.clearFilterCache(key)
		}
		c.setStatus(key, Running)
		return e.handle.Client, nil
	}

	resolvedEnv, err := resolveEnv(prefixDef, connectorDef)
	if err != nil {
		return nil, err
	}

	c.setStatus(key, Spawning)
	handle, err := c.spawn(ctx, connectorDef.Shortname, prefix, connectorDef.Spec, resolvedEnv)
	if err != nil {
		c.setStatus(key, Offline)
		return nil, fmt.Errorf("spawning connector %s: %w", key, err)
	}

	if doInit {
		c.setStatus(key, Initializing)
		if err := handle.Client.Init(ctx); err != nil {
			return nil, fmt.Errorf("init connector %s: %w", key, err)
		}
		if err := checkVersion(ctx, key.Shortname, handle.Client); err != nil {
			// The handle stays cached (Offline) so the caller aborts while
			// the process remains reachable for non-init ops.
			c.setStatus(key, Offline)
			c.mu.Lock()
			c.entries[key] = &entry{handle: handle}
			c.mu.Unlock()
			return nil, err
		}
	}
	c.setStatus(key, Running)

	c.mu.Lock()
	c.entries[key] = &entry{handle: handle}
	c.mu.Unlock()

	return handle.Client, nil
}

func resolveEnv(prefixDef config.Prefix, connectorDef config.Connector) (map[string]string, error) {
	merged := map[string]string{}
	if prefixDef.EnvFile != "" {
		fileEnv, err := env.FileMap(prefixDef.EnvFile)
		if err != nil {
			return nil, err
		}
		merged = env.MergeMap(merged, fileEnv)
	}
	merged = env.MergeMap(merged, prefixDef.Env)
	if connectorDef.EnvFile != "" {
		fileEnv, err := env.FileMap(connectorDef.EnvFile)
		if err != nil {
			return nil, err
		}
		merged = env.MergeMap(merged, fileEnv)
	}
	merged = env.MergeMap(merged, connectorDef.Env)
	return merged, nil
}

// InitConnector re-runs init() on an already-spawned connector, clearing
// its filter cache. Returns ok=false if it is not currently cached.
func (c *Cache) InitConnector(ctx context.Context, shortname, prefix string) (bool, error) {
	key := Key{Prefix: prefix, Shortname: shortname}
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	c.clearFilterCache(key)
	if err := e.handle.Client.Init(ctx); err != nil {
		return true, err
	}
	if err := checkVersion(ctx, shortname, e.handle.Client); err != nil {
		return true, err
	}
	return true, nil
}

// FilterCached calls Connector.Filter(addr), caching the result per
// (connector, addr) since filter() is contractually a pure function of
// its address and is the single most frequently invoked op in a workflow
// pass. Calling init() on a connector invalidates its whole filter cache.
func (c *Cache) FilterCached(ctx context.Context, shortname, prefix, addr string) (protocol.FilterResult, error) {
	key := Key{Prefix: prefix, Shortname: shortname}

	c.mu.Lock()
	fc, ok := c.filters[key]
	if !ok {
		fc = map[string]protocol.FilterResult{}
		c.filters[key] = fc
	}
	cached, hit := fc[addr]
	e, present := c.entries[key]
	c.mu.Unlock()

	if hit {
		return cached, nil
	}
	if !present {
		return protocol.FilterNone, nil
	}

	res, err := e.handle.Client.Filter(ctx, addr)
	if err != nil {
		return protocol.FilterNone, err
	}

	c.mu.Lock()
	c.filters[key][addr] = res
	c.mu.Unlock()
	return res, nil
}

func (c *Cache) clearFilterCache(key Key) {
	c.mu.Lock()
	delete(c.filters, key)
	c.mu.Unlock()
}

func (c *Cache) setStatus(key Key, s InitStatus) {
	c.mu.Lock()
	c.status[key] = s
	c.mu.Unlock()
}

// statusFor reports a key's init status, defaulting to Offline when the
// key has never been recorded.
func (c *Cache) statusFor(key Key) InitStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status[key]
}

// Clear tears down every cached connector (killing its sandboxed
// process) and drops all cache state.
func (c *Cache) Clear() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = map[Key]*entry{}
	c.filters = map[Key]map[string]protocol.FilterResult{}
	c.status = map[Key]InitStatus{}
	c.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := e.handle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
