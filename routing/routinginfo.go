package routing

// SingleNodeRoutingInfo is the family of routes that resolve to exactly
// one node: a random connected node, a slot-based route, or a direct
// address lookup.
type SingleNodeRoutingInfo interface {
	isSingleNode()
}

// RandomRoute picks any connected node.
type RandomRoute struct{}

func (RandomRoute) isSingleNode() {}

// SpecificNodeRoute dispatches by slot, honoring the container's
// replica-selection strategy for the given SlotAddr.
type SpecificNodeRoute struct {
	Route Route
}

func (SpecificNodeRoute) isSingleNode() {}

// ByAddressRoute targets one address directly, bypassing slot lookup.
type ByAddressRoute struct {
	Addr string
}

func (ByAddressRoute) isSingleNode() {}

// MultipleNodeRoutingInfo is the family of routes that resolve to more
// than one node.
type MultipleNodeRoutingInfo interface {
	isMultiNode()
}

// AllMastersRoute yields one connection per distinct primary.
type AllMastersRoute struct{}

func (AllMastersRoute) isMultiNode() {}

// AllNodesRoute yields one connection per entry in the connections map.
type AllNodesRoute struct{}

func (AllNodesRoute) isMultiNode() {}

// RoutingInfo is the tagged sum a caller attaches to a command: either a
// SingleNode variant or a MultiNode variant. For a value built with
// SingleNode or MultiNode, exactly one of the two accessors below returns
// non-nil; for the zero value, neither does.
type RoutingInfo struct {
	single SingleNodeRoutingInfo
	multi  MultipleNodeRoutingInfo
}

// SingleNode wraps a SingleNodeRoutingInfo into a RoutingInfo.
func SingleNode(info SingleNodeRoutingInfo) RoutingInfo {
	return RoutingInfo{single: info}
}

// MultiNode wraps a MultipleNodeRoutingInfo into a RoutingInfo.
func MultiNode(info MultipleNodeRoutingInfo) RoutingInfo {
	return RoutingInfo{multi: info}
}

// Single returns the single-node variant and true, or (nil, false) if this
// RoutingInfo is a multi-node route.
func (r RoutingInfo) Single() (SingleNodeRoutingInfo, bool) {
	if r.single == nil {
		return nil, false
	}
	return r.single, true
}

// Multi returns the multi-node variant and true, or (nil, false) if this
// RoutingInfo is a single-node route.
func (r RoutingInfo) Multi() (MultipleNodeRoutingInfo, bool) {
	if r.multi == nil {
		return nil, false
	}
	return r.multi, true
}
