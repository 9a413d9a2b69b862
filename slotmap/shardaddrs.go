package slotmap

// ShardAddrs is the immutable address tuple for one shard: one primary
// plus an ordered list of replicas. Order influences round-robin replica
// selection but is otherwise not meaningful.
//
// Multiple slot ranges that belong to the same shard share a single
// *ShardAddrs, so a shard's round-robin cursor (held alongside it in
// SlotMapValue) is per-shard rather than per-range.
type ShardAddrs struct {
	primary  string
	replicas []string
}

// NewShardAddrs builds a ShardAddrs. The replica slice is copied so the
// caller's slice may be reused or mutated afterwards.
func NewShardAddrs(primary string, replicas []string) *ShardAddrs {
	cp := make([]string, len(replicas))
	copy(cp, replicas)
	return &ShardAddrs{primary: primary, replicas: cp}
}

// Primary returns the shard's primary address.
func (s *ShardAddrs) Primary() string {
	return s.primary
}

// Replicas returns the shard's replicas in construction order. The
// returned slice must not be mutated by callers.
func (s *ShardAddrs) Replicas() []string {
	return s.replicas
}
