// Package cluster is the orchestrator that ties slotmap, connection, and
// resolver together into a redis.Conn-compatible cluster client: it owns
// the connection pools, drives topology refresh from CLUSTER SLOTS, and
// exposes the same redir/pipeline/multi-key/pub-sub surface the original
// flat-map implementation did.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/rmker/clustercore/config"
	"github.com/rmker/clustercore/connection"
	"github.com/rmker/clustercore/logger"
	"github.com/rmker/clustercore/resolver"
	"github.com/rmker/clustercore/routing"
	"github.com/rmker/clustercore/slotmap"
	"github.com/rmker/clustercore/telemetry"
)

// Conn is the handle a Container entry carries for one node: a pool a
// caller borrows an actual redis.Conn from. Pools, not bare connections,
// are what the container tracks, since a node's real connections are
// opened and recycled on demand.
type Conn = *redis.Pool

// Cluster is a redis cluster manager and node pool: it resolves routes
// through a connection.Container, and creates/caches one *redis.Pool per
// node address.
type Cluster struct {
	// EntryAddrs are any node addresses in the cluster, used to bootstrap
	// topology discovery while the current topology holds no nodes.
	EntryAddrs []string

	// DialOptionsWithoutPool configures dials when CreateConnPool is nil.
	DialOptionsWithoutPool []redis.DialOption

	// DefaultPoolTimeout is the IdleTimeout of pools built by
	// defaultCreatePool.
	DefaultPoolTimeout time.Duration

	// CreateConnPool builds the pool for a newly discovered node address.
	// If nil, defaultCreatePool is used.
	CreateConnPool func(ctx context.Context, addr string) (*redis.Pool, error)

	sink telemetry.Sink

	// mu protects pools and the redirect override table; container itself
	// is swapped via atomic.Pointer so readers never block on mu.
	mu             sync.Mutex
	pools          map[string]*redis.Pool
	redirOverrides map[uint16]string
	reloading      atomic.Bool

	container atomic.Pointer[connection.Container[Conn]]
}

// New builds a Cluster from cfg, ready to have its topology loaded via
// ReloadSlotMapping.
func New(cfg *config.Config, sink telemetry.Sink) *Cluster {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	c := &Cluster{
		EntryAddrs:         append([]string(nil), cfg.EntryAddrs...),
		DefaultPoolTimeout: cfg.DefaultPoolTimeout,
		sink:               sink,
		pools:              make(map[string]*redis.Pool),
		redirOverrides:     make(map[uint16]string),
	}
	empty := connection.New[Conn](slotmap.NewSlotMap(nil), nil, cfg.ReadFromReplicaStrategy, 0, sink)
	c.container.Store(empty)
	return c
}

func (c *Cluster) currentContainer() *connection.Container[Conn] {
	return c.container.Load()
}

/* redis.Pool compatible APIs */

// Get returns a redis.Conn that handles MOVED/ASK redirection
// automatically.
func (c *Cluster) Get() redis.Conn {
	return &redirconn{cl: c, redir: true, readOnly: false}
}

// GetContext is Get, accepting a context for the caller's own bookkeeping
// (individual commands still pick up their own timeouts via DoContext).
func (c *Cluster) GetContext(_ context.Context) redis.Conn {
	return &redirconn{cl: c, redir: true, readOnly: false}
}

// GetReadonlyConn is Get, but commands route to a replica per the
// container's ReadFromReplicaStrategy when one is available.
func (c *Cluster) GetReadonlyConn() redis.Conn {
	return &redirconn{cl: c, redir: true, readOnly: true}
}

// GetNoRedirConn is Get without automatic redirection, leaving MOVED/ASK
// handling to the caller.
func (c *Cluster) GetNoRedirConn() redis.Conn {
	return &redirconn{cl: c, redir: false, readOnly: false}
}

// Stats returns the redis.PoolStats of every currently open node pool.
func (c *Cluster) Stats() map[string]redis.PoolStats {
	ps := make(map[string]redis.PoolStats)
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, p := range c.pools {
		ps[addr] = p.Stats()
	}
	return ps
}

// ActiveCount returns the total active connection count across every node
// pool.
func (c *Cluster) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.pools {
		n += p.ActiveCount()
	}
	return n
}

// IdleCount returns the total idle connection count across every node
// pool.
func (c *Cluster) IdleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.pools {
		n += p.IdleCount()
	}
	return n
}

// Close closes every open pool and clears the topology.
func (c *Cluster) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, p := range c.pools {
		p.Close()
		delete(c.pools, addr)
	}
	c.redirOverrides = make(map[uint16]string)
	old := c.currentContainer()
	c.container.Store(connection.New[Conn](slotmap.NewSlotMap(nil), nil, connection.FromRoundRobin(), 0, c.sink))
	old.Close()
}

/* redis.Pool compatible APIs end */

// GetRandomRealConn returns a real redis.Conn from an arbitrary connected
// node, used by pub/sub setup.
func (c *Cluster) GetRandomRealConn(ctx context.Context) (redis.Conn, error) {
	conns, ok := c.currentContainer().RandomConnections(1, connection.User)
	if !ok || len(conns) == 0 {
		if len(c.EntryAddrs) == 0 {
			return nil, errors.New("cluster: no connected nodes and no entry addresses")
		}
		addr := c.EntryAddrs[rand.Intn(len(c.EntryAddrs))] //nolint:gosec
		return c.connFromPool(ctx, addr)
	}
	return c.connFromPool(ctx, conns[0].Addr)
}

// GetPubSubConn wraps a random real connection in redis.PubSubConn.
func (c *Cluster) GetPubSubConn(ctx context.Context) (*redis.PubSubConn, error) {
	conn, err := c.GetRandomRealConn(ctx)
	if err != nil {
		return nil, err
	}
	return &redis.PubSubConn{Conn: conn}, nil
}

// GetShardedPubSubConn returns a ShardedPubSubConn bound to this cluster.
func (c *Cluster) GetShardedPubSubConn() *ShardedPubSubConn {
	return &ShardedPubSubConn{cl: c}
}

// VerbosSlotMapping returns a human-readable dump of the current topology.
func (c *Cluster) VerbosSlotMapping() string {
	nodes := c.currentContainer().SlotMapNodes()
	var lines []string
	i := 0
	for primary, addrs := range nodes {
		i++
		lines = append(lines, fmt.Sprintf("%d) Primary: %s", i, primary))
		for j, r := range addrs.Replicas() {
			lines = append(lines, fmt.Sprintf("   Replica %d: %s", j+1, r))
		}
	}
	return strings.Join(lines, "\n")
}

// addrConnForSlot resolves slot (and readOnly preference) to an address
// and a connection borrowed from that address's pool via the live
// container, honoring any MOVED override still pending a full topology
// reload.
func (c *Cluster) addrConnForSlot(ctx context.Context, slot int, readOnly bool) (string, redis.Conn, error) {
	if slot < 0 {
		slot = rand.Intn(slotmap.TotalSlots) //nolint:gosec
	}
	s := uint16(slot)

	c.mu.Lock()
	override, overridden := c.redirOverrides[s]
	c.mu.Unlock()
	if overridden {
		conn, err := c.connFromPool(ctx, override)
		return override, conn, err
	}

	slotAddr := routing.Master
	if readOnly {
		slotAddr = routing.ReplicaOptional
	}
	route := routing.SingleNode(routing.SpecificNodeRoute{Route: routing.NewRoute(s, slotAddr)})
	results, err := resolver.Resolve[Conn](c.currentContainer(), route)
	if err != nil || len(results) == 0 {
		if reloadErr := c.ReloadSlotMapping(ctx); reloadErr != nil {
			return "", nil, fmt.Errorf("cluster: resolve slot %d: %w", slot, err)
		}
		results, err = resolver.Resolve[Conn](c.currentContainer(), route)
		if err != nil || len(results) == 0 {
			return "", nil, fmt.Errorf("cluster: no node for slot %d", slot)
		}
	}
	conn, err := results[0].Conn.GetContext(ctx)
	return results[0].Addr, conn, err
}

func (c *Cluster) connFromPool(ctx context.Context, addr string) (redis.Conn, error) {
	pool, err := c.poolForAddr(ctx, addr)
	if err != nil {
		return nil, err
	}
	return pool.GetContext(ctx)
}

func (c *Cluster) poolForAddr(ctx context.Context, addr string) (*redis.Pool, error) {
	if addr == "" {
		return nil, errors.New("cluster: empty address")
	}
	c.mu.Lock()
	if p, ok := c.pools[addr]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	p, err := c.createPool(ctx, addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.pools[addr]; ok {
		c.mu.Unlock()
		p.Close()
		return existing, nil
	}
	c.pools[addr] = p
	c.mu.Unlock()
	return p, nil
}

func (c *Cluster) createPool(ctx context.Context, addr string) (*redis.Pool, error) {
	if c.CreateConnPool != nil {
		return c.CreateConnPool(ctx, addr)
	}
	return c.defaultCreatePool(addr), nil
}

func (c *Cluster) defaultCreatePool(addr string) *redis.Pool {
	return &redis.Pool{
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr, c.DialOptionsWithoutPool...)
		},
		MaxIdle:     8,
		IdleTimeout: c.DefaultPoolTimeout,
	}
}

// onRedir records a MOVED redirect as a standing override until a topology
// reload installs a changed topology (a reload that finds the topology
// unchanged leaves overrides in place), and kicks off that reload in the
// background, matching the original optimistic-patch-then-reload
// strategy.
func (c *Cluster) onRedir(_ context.Context, ri *RedirInfo) bool {
	if ri == nil || ri.Kind != "MOVED" || ri.Slot >= slotmap.TotalSlots {
		return false
	}
	slot := uint16(ri.Slot)

	c.mu.Lock()
	cur, has := c.redirOverrides[slot]
	changed := !has || cur != ri.Addr
	if changed {
		c.redirOverrides[slot] = ri.Addr
	}
	c.mu.Unlock()

	if changed {
		go func() {
			if err := c.ReloadSlotMapping(context.Background()); err != nil {
				logger.Warn("cluster", fmt.Sprintf("slot mapping reload after MOVED failed: %v", err))
			}
		}()
	}
	return changed
}
