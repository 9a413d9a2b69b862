package connection

import (
	"math/rand"

	"github.com/rmker/clustercore/routing"
	"github.com/rmker/clustercore/slotmap"
	"github.com/rmker/clustercore/telemetry"
)

// AddrConn pairs a resolved address with the connection handle a caller
// should use for it.
type AddrConn[C any] struct {
	Addr string
	Conn C
}

// Container is the live registry of cluster node connections: an
// address-keyed connection map, the slot map routing slots onto shard
// addresses, the active replica-read strategy, and refresh bookkeeping.
// A Container is immutable with respect to its SlotMap and strategy once
// built; topology refreshes build a new Container and the owning cluster
// client swaps it in.
type Container[C any] struct {
	connectionMap *shardedMap[*ClusterNode[C]]
	slotMap       *slotmap.SlotMap
	strategy      ReadFromReplicaStrategy
	topologyHash  uint64

	refreshAddressesStarted *shardedMap[struct{}]
	refreshOperations       *shardedMap[*RefreshState[C]]
	refreshAddressesDone    *shardedMap[struct{}]

	telemetry telemetry.Sink
}

// New builds a Container from an initial connection map and slot map. The
// telemetry sink is incremented once per connection already present in
// connMap (mirroring the original's constructor-time count_connections!).
func New[C any](slotMap *slotmap.SlotMap, connMap ConnectionsMap[C], strategy ReadFromReplicaStrategy, topologyHash uint64, sink telemetry.Sink) *Container[C] {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	c := &Container[C]{
		connectionMap:           newShardedMap[*ClusterNode[C]](),
		slotMap:                 slotMap,
		strategy:                strategy,
		topologyHash:            topologyHash,
		refreshAddressesStarted: newShardedMap[struct{}](),
		refreshOperations:       newShardedMap[*RefreshState[C]](),
		refreshAddressesDone:    newShardedMap[struct{}](),
		telemetry:               sink,
	}
	count := 0
	for addr, node := range connMap {
		c.connectionMap.Set(addr, node)
		count += node.ConnectionsCount()
	}
	c.telemetry.IncrTotalConnections(count)
	return c
}

// Close decrements telemetry by the total connection count this Container
// currently holds. It is the analogue of the original's Drop impl: a
// Container superseded by a newer topology (or discarded on Cluster.Close)
// must call Close exactly once so the telemetry sink's running total stays
// in lockstep with connection_map's contents (spec invariant 3). Close is
// not idempotent: every call decrements the sink again. It is the caller's
// responsibility to invoke — a Container does not close itself.
func (c *Container[C]) Close() {
	count := 0
	c.connectionMap.Range(func(_ string, node *ClusterNode[C]) bool {
		count += node.ConnectionsCount()
		return true
	})
	c.telemetry.DecrTotalConnections(count)
}

// GetCurrentTopologyHash returns the topology hash this Container was
// built from.
func (c *Container[C]) GetCurrentTopologyHash() uint64 {
	return c.topologyHash
}

// Strategy returns the replica-selection strategy this Container applies
// to ReplicaOptional/ReplicaRequired routes.
func (c *Container[C]) Strategy() ReadFromReplicaStrategy {
	return c.strategy
}

// Len returns the number of distinct node addresses in the connection map.
func (c *Container[C]) Len() int {
	return c.connectionMap.Len()
}

// IsEmpty reports whether the connection map holds no nodes.
func (c *Container[C]) IsEmpty() bool {
	return c.Len() == 0
}

// NodeForAddress returns the ClusterNode registered at address, if any.
func (c *Container[C]) NodeForAddress(address string) (*ClusterNode[C], bool) {
	return c.connectionMap.Get(address)
}

// ConnectionForAddress resolves address directly to a connection, bypassing
// slot routing.
func (c *Container[C]) ConnectionForAddress(address string, connType ConnectionType) (C, bool) {
	node, ok := c.connectionMap.Get(address)
	if !ok {
		var zero C
		return zero, false
	}
	return node.GetConnection(connType), true
}

// ConnectionDetailsForAddress is like ConnectionForAddress but returns the
// full ConnectionDetails, including AZ/IP metadata.
func (c *Container[C]) ConnectionDetailsForAddress(address string, connType ConnectionType) (ConnectionDetails[C], bool) {
	node, ok := c.connectionMap.Get(address)
	if !ok {
		return ConnectionDetails[C]{}, false
	}
	return node.GetConnectionDetails(connType), true
}

// AZForAddress returns the availability zone recorded for address's user
// connection, if any.
func (c *Container[C]) AZForAddress(address string) (string, bool) {
	node, ok := c.connectionMap.Get(address)
	if !ok || node.AZ() == nil {
		return "", false
	}
	return *node.AZ(), true
}

// IsPrimary reports whether address is a primary in the current slot map.
func (c *Container[C]) IsPrimary(address string) bool {
	return c.slotMap.IsPrimary(address)
}

// SlotMapNodes returns the primary-address -> shard-addresses view of the
// current topology, for diagnostics (VerbosSlotMapping and similar).
func (c *Container[C]) SlotMapNodes() map[string]*slotmap.ShardAddrs {
	return c.slotMap.NodesMap()
}

// ReplaceOrAddConnectionForAddress installs node at address, replacing
// whatever was there. Telemetry is adjusted by the delta in connection
// count between the old and new node.
func (c *Container[C]) ReplaceOrAddConnectionForAddress(address string, node *ClusterNode[C]) {
	old, existed := c.connectionMap.Get(address)
	c.connectionMap.Set(address, node)
	newCount := node.ConnectionsCount()
	if !existed {
		c.telemetry.IncrTotalConnections(newCount)
		return
	}
	oldCount := old.ConnectionsCount()
	switch {
	case newCount > oldCount:
		c.telemetry.IncrTotalConnections(newCount - oldCount)
	case oldCount > newCount:
		c.telemetry.DecrTotalConnections(oldCount - newCount)
	}
}

// RemoveNode drops address from the connection map and decrements
// telemetry by however many connections it held.
func (c *Container[C]) RemoveNode(address string) {
	node, ok := c.connectionMap.Delete(address)
	if !ok {
		return
	}
	c.telemetry.DecrTotalConnections(node.ConnectionsCount())
}

// ExtendConnectionMap merges other into the connection map, replacing any
// address already present and adjusting telemetry by the net delta.
func (c *Container[C]) ExtendConnectionMap(other ConnectionsMap[C]) {
	for addr, node := range other {
		c.ReplaceOrAddConnectionForAddress(addr, node)
	}
}

// AllNodeConnections returns one AddrConn per node currently registered,
// using connType.
func (c *Container[C]) AllNodeConnections(connType ConnectionType) []AddrConn[C] {
	out := make([]AddrConn[C], 0, c.connectionMap.Len())
	c.connectionMap.Range(func(addr string, node *ClusterNode[C]) bool {
		out = append(out, AddrConn[C]{Addr: addr, Conn: node.GetConnection(connType)})
		return true
	})
	return out
}

// AllPrimaryConnections returns one AddrConn per address the slot map
// considers a primary.
func (c *Container[C]) AllPrimaryConnections(connType ConnectionType) []AddrConn[C] {
	out := make([]AddrConn[C], 0)
	c.connectionMap.Range(func(addr string, node *ClusterNode[C]) bool {
		if c.slotMap.IsPrimary(addr) {
			out = append(out, AddrConn[C]{Addr: addr, Conn: node.GetConnection(connType)})
		}
		return true
	})
	return out
}

// RandomConnections returns up to amount distinct connections chosen
// without repetition. It returns false if the map is empty.
func (c *Container[C]) RandomConnections(amount int, connType ConnectionType) ([]AddrConn[C], bool) {
	all := c.AllNodeConnections(connType)
	if len(all) == 0 {
		return nil, false
	}
	if amount >= len(all) {
		return all, true
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:amount], true
}

// ConnectionForRoute resolves route to an address and connection,
// honoring the container's replica-selection strategy and falling back to
// the shard's primary when a replica route can't be satisfied directly.
func (c *Container[C]) ConnectionForRoute(route routing.Route) (AddrConn[C], bool) {
	result, ok := c.lookupRoute(route)
	if ok {
		return result, true
	}
	if route.SlotAddr == routing.Master {
		return AddrConn[C]{}, false
	}
	return c.lookupRoute(routing.NewRoute(route.Slot, routing.Master))
}

func (c *Container[C]) lookupRoute(route routing.Route) (AddrConn[C], bool) {
	value, ok := c.slotMap.SlotValueForSlot(route.Slot)
	if !ok {
		return AddrConn[C]{}, false
	}

	switch route.SlotAddr {
	case routing.Master:
		return c.connAtAddress(value.Addrs.Primary(), User)
	case routing.ReplicaOptional:
		if c.strategy.Kind == AlwaysFromPrimary {
			return c.connAtAddress(value.Addrs.Primary(), User)
		}
		if conn, ok := c.selectReplica(value); ok {
			return conn, true
		}
		return c.connAtAddress(value.Addrs.Primary(), User)
	case routing.ReplicaRequired:
		if conn, ok := c.selectReplica(value); ok {
			return conn, true
		}
		return c.connAtAddress(value.Addrs.Primary(), User)
	default:
		return AddrConn[C]{}, false
	}
}

func (c *Container[C]) connAtAddress(address string, connType ConnectionType) (AddrConn[C], bool) {
	conn, ok := c.ConnectionForAddress(address, connType)
	if !ok {
		return AddrConn[C]{}, false
	}
	return AddrConn[C]{Addr: address, Conn: conn}, true
}

// selectReplica applies the container's strategy across value's shard
// replicas, filtering to those actually present in the connection map.
func (c *Container[C]) selectReplica(value *slotmap.SlotMapValue) (AddrConn[C], bool) {
	replicas := value.Addrs.Replicas()
	if len(replicas) == 0 {
		return AddrConn[C]{}, false
	}

	connected := make([]string, 0, len(replicas))
	for _, addr := range replicas {
		if _, ok := c.connectionMap.Get(addr); ok {
			connected = append(connected, addr)
		}
	}
	if len(connected) == 0 {
		return AddrConn[C]{}, false
	}

	if c.strategy.Kind == AZAffinity {
		inAZ := make([]string, 0, len(connected))
		for _, addr := range connected {
			if az, ok := c.AZForAddress(addr); ok && az == c.strategy.AZ {
				inAZ = append(inAZ, addr)
			}
		}
		if len(inAZ) > 0 {
			addr := inAZ[value.NextReplicaIndex(len(inAZ))]
			return c.connAtAddress(addr, User)
		}
	}

	addr := connected[value.NextReplicaIndex(len(connected))]
	return c.connAtAddress(addr, User)
}
