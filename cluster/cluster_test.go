package cluster

import (
	"errors"
	"testing"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedirInfo_Moved(t *testing.T) {
	ri := ParseRedirInfo(redis.Error("MOVED 3999 127.0.0.1:7001"))
	require.NotNil(t, ri)
	assert.Equal(t, "MOVED", ri.Kind)
	assert.Equal(t, 3999, ri.Slot)
	assert.Equal(t, "127.0.0.1:7001", ri.Addr)
}

func TestParseRedirInfo_Ask(t *testing.T) {
	ri := ParseRedirInfo(redis.Error("ASK 3999 127.0.0.1:7001"))
	require.NotNil(t, ri)
	assert.Equal(t, "ASK", ri.Kind)
}

func TestParseRedirInfo_NotARedirect(t *testing.T) {
	assert.Nil(t, ParseRedirInfo(redis.Error("WRONGTYPE operation against a key")))
	assert.Nil(t, ParseRedirInfo(errors.New("plain error")))
}

func TestCmdSlot_UsesFirstKeyByDefault(t *testing.T) {
	a := cmdSlot("GET", "user:{1000}")
	b := cmdSlot("SET", "user:{1000}", "value")
	assert.Equal(t, a, b)
}

func TestCmdSlot_EvalUsesThirdArg(t *testing.T) {
	// EVAL script numkeys key ...: the key lives at args[2].
	evalSlot := cmdSlot("EVAL", "return 1", "1", "mykey")
	getSlot := cmdSlot("GET", "mykey")
	assert.Equal(t, getSlot, evalSlot)
}

func TestCmdSlot_NoArgsIsRandom(t *testing.T) {
	assert.Equal(t, -1, cmdSlot("PING"))
}

func TestChnSlot_AgreesOnSameSlot(t *testing.T) {
	slot, err := ChnSlot("chan:{a}:1", "chan:{a}:2")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, slot, 0)
}

func TestChnSlot_RejectsDifferentSlots(t *testing.T) {
	_, err := ChnSlot("chan-one", "chan-two")
	assert.Error(t, err)
}

func TestComputeTopologyHash_OrderIndependent(t *testing.T) {
	a := []parsedSlotRange{
		{start: 0, end: 100, primary: "p1"},
		{start: 101, end: 200, primary: "p2", replicas: []string{"r2"}},
	}
	b := []parsedSlotRange{
		{start: 101, end: 200, primary: "p2", replicas: []string{"r2"}},
		{start: 0, end: 100, primary: "p1"},
	}
	assert.Equal(t, computeTopologyHash(a), computeTopologyHash(b))
}

func TestComputeTopologyHash_ChangesWithTopology(t *testing.T) {
	a := []parsedSlotRange{{start: 0, end: 100, primary: "p1"}}
	b := []parsedSlotRange{{start: 0, end: 100, primary: "p2"}}
	assert.NotEqual(t, computeTopologyHash(a), computeTopologyHash(b))
}
