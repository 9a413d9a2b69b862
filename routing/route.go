// Package routing defines the tagged types a caller uses to describe where
// a command should go: a single slot/address/random node, or a multi-node
// fan-out across all primaries or all nodes.
package routing

// SlotAddr selects which member of a shard a slot-based Route targets.
type SlotAddr int

const (
	// Master routes to the shard's primary, regardless of strategy.
	Master SlotAddr = iota
	// ReplicaOptional prefers a replica per the container's read-from
	// strategy but falls back to the primary if none is connected.
	ReplicaOptional
	// ReplicaRequired prefers a replica even under AlwaysFromPrimary,
	// only falling back to the primary if no replica is connected.
	ReplicaRequired
)

func (s SlotAddr) String() string {
	switch s {
	case Master:
		return "Master"
	case ReplicaOptional:
		return "ReplicaOptional"
	case ReplicaRequired:
		return "ReplicaRequired"
	default:
		return "Unknown"
	}
}

// Route identifies a single slot and which member of its shard to use.
type Route struct {
	Slot     uint16
	SlotAddr SlotAddr
}

// NewRoute builds a Route for the given slot and slot address.
func NewRoute(slot uint16, slotAddr SlotAddr) Route {
	return Route{Slot: slot, SlotAddr: slotAddr}
}
