package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmker/clustercore/routing"
	"github.com/rmker/clustercore/slotmap"
	"github.com/rmker/clustercore/telemetry"
)

// node builds a ClusterNode[int] whose user connection is the int userConn
// (optionally tagged with az) and whose management connection, if mgmt is
// non-nil, is *mgmt.
func node(userConn int, az string, mgmt *int) *ClusterNode[int] {
	details := ConnectionDetails[int]{Conn: userConn}
	if az != "" {
		details.AZ = &az
	}
	n := &ClusterNode[int]{UserConnection: details}
	if mgmt != nil {
		n.ManagementConnection = &ConnectionDetails[int]{Conn: *mgmt}
	}
	return n
}

func mgmtOf(v int) *int { return &v }

// buildSetupA mirrors slotmap's Setup A: primary1 (1-1000, no replicas),
// primary2 (1002-2000, replica2-1 in az-a), primary3 (2001-3000,
// replica3-1 in az-a, replica3-2 in az-b).
func buildSetupA(t *testing.T) *Container[int] {
	t.Helper()
	sm := slotmap.NewSlotMap([]slotmap.SlotRange{
		{Start: 1, EndInclusive: 1000, Addrs: slotmap.NewShardAddrs("primary1", nil)},
		{Start: 1002, EndInclusive: 2000, Addrs: slotmap.NewShardAddrs("primary2", []string{"replica2-1"})},
		{Start: 2001, EndInclusive: 3000, Addrs: slotmap.NewShardAddrs("primary3", []string{"replica3-1", "replica3-2"})},
	})

	connMap := ConnectionsMap[int]{
		"primary1":   node(10, "az-a", mgmtOf(11)),
		"primary2":   node(20, "az-a", nil),
		"replica2-1": node(21, "az-a", nil),
		"primary3":   node(30, "az-b", mgmtOf(31)),
		"replica3-1": node(310, "az-a", nil),
		"replica3-2": node(320, "az-b", mgmtOf(321)),
	}

	return New[int](sm, connMap, FromRoundRobin(), 0xfeed, telemetry.NewAtomicSink())
}

func TestConnectionForRoute_Master(t *testing.T) {
	c := buildSetupA(t)
	got, ok := c.ConnectionForRoute(routing.NewRoute(500, routing.Master))
	require.True(t, ok)
	assert.Equal(t, "primary1", got.Addr)
	assert.Equal(t, 10, got.Conn)
}

func TestConnectionForRoute_ReplicaOptional_AlwaysFromPrimary(t *testing.T) {
	sm := slotmap.NewSlotMap([]slotmap.SlotRange{
		{Start: 2001, EndInclusive: 3000, Addrs: slotmap.NewShardAddrs("primary3", []string{"replica3-1", "replica3-2"})},
	})
	connMap := ConnectionsMap[int]{
		"primary3":   node(30, "", nil),
		"replica3-1": node(310, "", nil),
	}
	c := New[int](sm, connMap, FromPrimary(), 1, telemetry.NewAtomicSink())

	got, ok := c.ConnectionForRoute(routing.NewRoute(2500, routing.ReplicaOptional))
	require.True(t, ok)
	assert.Equal(t, "primary3", got.Addr, "AlwaysFromPrimary never selects a replica for an optional route")
}

func TestConnectionForRoute_ReplicaOptional_RoundRobin(t *testing.T) {
	c := buildSetupA(t)

	seen := map[string]bool{}
	for i := 0; i < 8; i++ {
		got, ok := c.ConnectionForRoute(routing.NewRoute(2500, routing.ReplicaOptional))
		require.True(t, ok)
		seen[got.Addr] = true
	}
	assert.Subset(t, []string{"replica3-1", "replica3-2"}, keysOf(seen))
	assert.True(t, len(seen) > 0)
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestConnectionForRoute_ReplicaRequired_FallsBackWhenNoReplicaConnected(t *testing.T) {
	sm := slotmap.NewSlotMap([]slotmap.SlotRange{
		{Start: 1002, EndInclusive: 2000, Addrs: slotmap.NewShardAddrs("primary2", []string{"replica2-1"})},
	})
	// replica2-1 is in the shard's topology but never registered as a live
	// connection, so ReplicaRequired must still fall back to the primary.
	connMap := ConnectionsMap[int]{
		"primary2": node(20, "", nil),
	}
	c := New[int](sm, connMap, FromRoundRobin(), 1, telemetry.NewAtomicSink())

	got, ok := c.ConnectionForRoute(routing.NewRoute(1500, routing.ReplicaRequired))
	require.True(t, ok)
	assert.Equal(t, "primary2", got.Addr)
}

func TestConnectionForRoute_AZAffinity_PrefersZone(t *testing.T) {
	c := buildSetupA(t)
	c.strategy = FromAZAffinity("az-b")

	got, ok := c.ConnectionForRoute(routing.NewRoute(2500, routing.ReplicaOptional))
	require.True(t, ok)
	assert.Equal(t, "replica3-2", got.Addr, "az-b has exactly one matching replica")
}

func TestConnectionForRoute_AZAffinity_FallsBackToRoundRobinOutOfZone(t *testing.T) {
	c := buildSetupA(t)
	c.strategy = FromAZAffinity("az-nowhere")

	got, ok := c.ConnectionForRoute(routing.NewRoute(2500, routing.ReplicaOptional))
	require.True(t, ok)
	assert.Contains(t, []string{"replica3-1", "replica3-2"}, got.Addr)
}

func TestConnectionForRoute_MissingSlotFallsBackNowhere(t *testing.T) {
	c := buildSetupA(t)
	_, ok := c.ConnectionForRoute(routing.NewRoute(1001, routing.Master))
	assert.False(t, ok, "slot 1001 is in the gap between shard ranges")
}

func TestRandomConnections_PreferManagement(t *testing.T) {
	c := buildSetupA(t)
	got, ok := c.RandomConnections(3, PreferManagement)
	require.True(t, ok)
	assert.Len(t, got, 3)

	all, ok := c.RandomConnections(100, PreferManagement)
	require.True(t, ok)
	var conns []int
	for _, ac := range all {
		conns = append(conns, ac.Conn)
	}
	assert.ElementsMatch(t, []int{11, 20, 21, 31, 310, 321}, conns)
}

func TestExtendConnectionMap_TelemetryDelta(t *testing.T) {
	sink := telemetry.NewAtomicSink()
	sm := slotmap.NewSlotMap([]slotmap.SlotRange{
		{Start: 1, EndInclusive: 100, Addrs: slotmap.NewShardAddrs("p1", nil)},
	})
	c := New[int](sm, ConnectionsMap[int]{"p1": node(1, "", nil)}, FromRoundRobin(), 1, sink)
	assert.EqualValues(t, 1, sink.Total())

	c.ExtendConnectionMap(ConnectionsMap[int]{
		"p1": node(1, "", mgmtOf(2)), // same address, now with a management conn
		"p2": node(3, "", nil),
	})
	assert.EqualValues(t, 3, sink.Total())
}

func TestRemoveNode_Telemetry(t *testing.T) {
	sink := telemetry.NewAtomicSink()
	sm := slotmap.NewSlotMap([]slotmap.SlotRange{
		{Start: 1, EndInclusive: 100, Addrs: slotmap.NewShardAddrs("p1", nil)},
	})
	c := New[int](sm, ConnectionsMap[int]{"p1": node(1, "", mgmtOf(2))}, FromRoundRobin(), 1, sink)
	assert.EqualValues(t, 2, sink.Total())

	c.RemoveNode("p1")
	assert.EqualValues(t, 0, sink.Total())
	_, ok := c.NodeForAddress("p1")
	assert.False(t, ok)
}

func TestIsPrimary_AllPrimaryConnections(t *testing.T) {
	c := buildSetupA(t)
	assert.True(t, c.IsPrimary("primary1"))
	assert.False(t, c.IsPrimary("replica3-1"))

	primaries := c.AllPrimaryConnections(User)
	var addrs []string
	for _, ac := range primaries {
		addrs = append(addrs, ac.Addr)
	}
	assert.ElementsMatch(t, []string{"primary1", "primary2", "primary3"}, addrs)
}

func TestLenIsEmpty(t *testing.T) {
	c := buildSetupA(t)
	assert.Equal(t, 6, c.Len())
	assert.False(t, c.IsEmpty())
}

func TestRefreshBookkeeping_Lifecycle(t *testing.T) {
	c := buildSetupA(t)
	addr := "primary2"

	assert.False(t, c.IsRefreshStarted(addr))
	assert.True(t, c.MarkRefreshStarted(addr), "first call starts the refresh")
	assert.False(t, c.MarkRefreshStarted(addr), "second call observes it already started")

	state := &RefreshState[int]{Handle: "task-handle"}
	c.SetRefreshOperation(addr, state)
	got, ok := c.GetRefreshOperation(addr)
	require.True(t, ok)
	assert.Equal(t, "task-handle", got.Handle)

	assert.False(t, c.IsRefreshDone(addr))
	result := node(999, "", nil)
	c.MarkRefreshDone(addr, result)
	assert.True(t, c.IsRefreshDone(addr))
	got, _ = c.GetRefreshOperation(addr)
	assert.Same(t, result, got.Result)

	c.ClearRefreshState(addr)
	assert.False(t, c.IsRefreshStarted(addr))
	assert.False(t, c.IsRefreshDone(addr))
	_, ok = c.GetRefreshOperation(addr)
	assert.False(t, ok)
}

func TestClose_DecrementsTelemetryByTotalHeld(t *testing.T) {
	sink := telemetry.NewAtomicSink()
	sm := slotmap.NewSlotMap([]slotmap.SlotRange{
		{Start: 1, EndInclusive: 100, Addrs: slotmap.NewShardAddrs("p1", nil)},
	})
	c := New[int](sm, ConnectionsMap[int]{"p1": node(1, "", mgmtOf(2))}, FromRoundRobin(), 1, sink)
	assert.EqualValues(t, 2, sink.Total())

	c.Close()
	assert.EqualValues(t, 0, sink.Total())
}

// TestClose_SupersededContainerDoesNotLeakIntoSharedSink models a topology
// rebuild: a new Container is built against the same sink the old one used,
// and the old Container's Close must bring the total back down to exactly
// what the new Container alone accounts for.
func TestClose_SupersededContainerDoesNotLeakIntoSharedSink(t *testing.T) {
	sink := telemetry.NewAtomicSink()
	sm := slotmap.NewSlotMap([]slotmap.SlotRange{
		{Start: 1, EndInclusive: 100, Addrs: slotmap.NewShardAddrs("p1", nil)},
	})
	oldContainer := New[int](sm, ConnectionsMap[int]{"p1": node(1, "", nil)}, FromRoundRobin(), 1, sink)
	assert.EqualValues(t, 1, sink.Total())

	newContainer := New[int](sm, ConnectionsMap[int]{"p1": node(2, "", mgmtOf(3))}, FromRoundRobin(), 2, sink)
	assert.EqualValues(t, 3, sink.Total(), "old and new containers both counted until old closes")

	oldContainer.Close()
	assert.EqualValues(t, 2, sink.Total(), "only the new container's connections remain")
	_ = newContainer
}

func TestGetCurrentTopologyHash(t *testing.T) {
	c := buildSetupA(t)
	assert.EqualValues(t, 0xfeed, c.GetCurrentTopologyHash())
}
