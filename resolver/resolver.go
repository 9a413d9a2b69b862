// Package resolver turns a routing.RoutingInfo into the concrete set of
// (address, connection) pairs a command should be sent to.
package resolver

import (
	"errors"
	"fmt"

	"github.com/rmker/clustercore/connection"
	"github.com/rmker/clustercore/routing"
)

// ErrNoConnections is returned when a route can't be satisfied because the
// container has nothing connected to dispatch to.
var ErrNoConnections = errors.New("resolver: no connections available for route")

// Resolve dispatches info against container, returning every
// (address, connection) pair the route touches. Single-node routes return
// exactly one pair; multi-node routes return one per matching node.
func Resolve[C any](container *connection.Container[C], info routing.RoutingInfo) ([]connection.AddrConn[C], error) {
	if single, ok := info.Single(); ok {
		conn, err := resolveSingle(container, single)
		if err != nil {
			return nil, err
		}
		return []connection.AddrConn[C]{conn}, nil
	}

	multi, ok := info.Multi()
	if !ok {
		return nil, fmt.Errorf("resolver: RoutingInfo carries neither a single nor multi route")
	}
	return resolveMulti(container, multi)
}

func resolveSingle[C any](container *connection.Container[C], info routing.SingleNodeRoutingInfo) (connection.AddrConn[C], error) {
	switch r := info.(type) {
	case routing.RandomRoute:
		conns, ok := container.RandomConnections(1, connection.User)
		if !ok || len(conns) == 0 {
			return connection.AddrConn[C]{}, ErrNoConnections
		}
		return conns[0], nil
	case routing.SpecificNodeRoute:
		conn, ok := container.ConnectionForRoute(r.Route)
		if !ok {
			return connection.AddrConn[C]{}, fmt.Errorf("resolver: no connection for slot %d (%s): %w", r.Route.Slot, r.Route.SlotAddr, ErrNoConnections)
		}
		return conn, nil
	case routing.ByAddressRoute:
		conn, ok := container.ConnectionForAddress(r.Addr, connection.User)
		if !ok {
			return connection.AddrConn[C]{}, fmt.Errorf("resolver: no connection registered at address %q: %w", r.Addr, ErrNoConnections)
		}
		return connection.AddrConn[C]{Addr: r.Addr, Conn: conn}, nil
	default:
		return connection.AddrConn[C]{}, fmt.Errorf("resolver: unknown SingleNodeRoutingInfo %T", info)
	}
}

func resolveMulti[C any](container *connection.Container[C], info routing.MultipleNodeRoutingInfo) ([]connection.AddrConn[C], error) {
	switch info.(type) {
	case routing.AllMastersRoute:
		conns := container.AllPrimaryConnections(connection.User)
		if len(conns) == 0 {
			return nil, ErrNoConnections
		}
		return conns, nil
	case routing.AllNodesRoute:
		conns := container.AllNodeConnections(connection.User)
		if len(conns) == 0 {
			return nil, ErrNoConnections
		}
		return conns, nil
	default:
		return nil, fmt.Errorf("resolver: unknown MultipleNodeRoutingInfo %T", info)
	}
}
