package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingInfo_SingleVariant(t *testing.T) {
	ri := SingleNode(SpecificNodeRoute{Route: NewRoute(500, Master)})

	single, ok := ri.Single()
	assert.True(t, ok)
	assert.Equal(t, SpecificNodeRoute{Route: NewRoute(500, Master)}, single)

	_, ok = ri.Multi()
	assert.False(t, ok)
}

func TestRoutingInfo_MultiVariant(t *testing.T) {
	ri := MultiNode(AllNodesRoute{})

	multi, ok := ri.Multi()
	assert.True(t, ok)
	assert.Equal(t, AllNodesRoute{}, multi)

	_, ok = ri.Single()
	assert.False(t, ok)
}

func TestByAddressRoute(t *testing.T) {
	ri := SingleNode(ByAddressRoute{Addr: "10.0.0.1:6379"})
	single, _ := ri.Single()
	addrRoute, ok := single.(ByAddressRoute)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1:6379", addrRoute.Addr)
}
