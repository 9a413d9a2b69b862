package slotmap

import (
	"sort"
	"sync/atomic"
)

// SlotRange is one non-overlapping range of hash slots assigned to a
// shard, as given by a topology snapshot (e.g. CLUSTER SLOTS).
type SlotRange struct {
	Start        uint16
	EndInclusive uint16
	Addrs        *ShardAddrs
}

// SlotMapValue is what a slot range resolves to: the shard's addresses
// plus a round-robin cursor shared by every range that points at the same
// shard. The cursor resets to zero whenever the owning SlotMap is rebuilt.
type SlotMapValue struct {
	Addrs           *ShardAddrs
	lastUsedReplica atomic.Int64
}

func newSlotMapValue(addrs *ShardAddrs) *SlotMapValue {
	return &SlotMapValue{Addrs: addrs}
}

// LastUsedReplica returns the current round-robin cursor value.
func (v *SlotMapValue) LastUsedReplica() int {
	return int(v.lastUsedReplica.Load())
}

// NextReplicaIndex advances the round-robin cursor and returns an index in
// [0, n) to use for this call. Concurrent callers each get a distinct,
// monotonically increasing turn via a CAS loop, matching the weak
// compare-exchange loop the original implementation uses: losing a race
// just means retrying against the new value rather than blocking.
func (v *SlotMapValue) NextReplicaIndex(n int) int {
	if n <= 0 {
		return 0
	}
	for {
		cur := v.lastUsedReplica.Load()
		next := cur + 1
		if v.lastUsedReplica.CompareAndSwap(cur, next) {
			idx := int(next % int64(n))
			if idx < 0 {
				idx += n
			}
			return idx
		}
	}
}

// entry is one (end_inclusive -> value) pair kept sorted by EndInclusive
// so slot lookup is a predecessor binary search.
type entry struct {
	start uint16
	end   uint16
	value *SlotMapValue
}

// SlotMap is a read-only-after-construction mapping from hash slots to the
// shard that currently owns them. It supports concurrent lookups with no
// locking; a topology refresh builds a brand new SlotMap and swaps it in
// at the container level rather than mutating this one in place.
type SlotMap struct {
	ranges    []entry          // sorted by end, non-overlapping
	byPrimary map[string]*ShardAddrs
}

// NewSlotMap builds a SlotMap from a set of non-overlapping slot ranges.
// Ranges that share the same primary address share one *SlotMapValue (and
// therefore one round-robin cursor). Overlapping ranges are the caller's
// responsibility to avoid; behavior is undefined if they overlap.
//
// Unlike the original design, no ReadFromReplicaStrategy is accepted here:
// the container that owns this SlotMap is the sole source of truth for
// strategy at route time (see connection.Container).
func NewSlotMap(ranges []SlotRange) *SlotMap {
	m := &SlotMap{byPrimary: make(map[string]*ShardAddrs, len(ranges))}

	values := make(map[string]*SlotMapValue, len(ranges))
	for _, r := range ranges {
		v, ok := values[r.Addrs.Primary()]
		if !ok {
			v = newSlotMapValue(r.Addrs)
			values[r.Addrs.Primary()] = v
		}
		m.ranges = append(m.ranges, entry{start: r.Start, end: r.EndInclusive, value: v})
		m.byPrimary[r.Addrs.Primary()] = r.Addrs
	}

	sort.Slice(m.ranges, func(i, j int) bool { return m.ranges[i].end < m.ranges[j].end })
	return m
}

// SlotValueForSlot returns the SlotMapValue whose range contains slot, or
// false if no range covers it. Lookup is O(log N) in the number of ranges.
func (m *SlotMap) SlotValueForSlot(slot uint16) (*SlotMapValue, bool) {
	i := sort.Search(len(m.ranges), func(i int) bool { return m.ranges[i].end >= slot })
	if i == len(m.ranges) {
		return nil, false
	}
	e := m.ranges[i]
	if slot < e.start || slot > e.end {
		return nil, false
	}
	return e.value, true
}

// AddressesForAllPrimaries returns the deduplicated set of primary
// addresses covered by this slot map.
func (m *SlotMap) AddressesForAllPrimaries() []string {
	out := make([]string, 0, len(m.byPrimary))
	for addr := range m.byPrimary {
		out = append(out, addr)
	}
	return out
}

// IsPrimary reports whether address is a primary address in this slot map.
func (m *SlotMap) IsPrimary(address string) bool {
	_, ok := m.byPrimary[address]
	return ok
}

// NodesMap returns the primary address -> ShardAddrs side mapping, for
// enumeration purposes (e.g. printing the current topology).
func (m *SlotMap) NodesMap() map[string]*ShardAddrs {
	out := make(map[string]*ShardAddrs, len(m.byPrimary))
	for k, v := range m.byPrimary {
		out[k] = v
	}
	return out
}
