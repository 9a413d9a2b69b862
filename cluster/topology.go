package cluster

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/gomodule/redigo/redis"

	"github.com/rmker/clustercore/connection"
	"github.com/rmker/clustercore/logger"
	"github.com/rmker/clustercore/slotmap"
)

// ReloadSlotMapping re-fetches CLUSTER SLOTS from a connected node (or one
// of EntryAddrs if none are connected yet), and swaps in the resulting
// topology. Only one reload runs at a time: a call made while another is
// in flight returns nil immediately without waiting for it.
func (c *Cluster) ReloadSlotMapping(ctx context.Context) error {
	if !c.reloading.CompareAndSwap(false, true) {
		return nil
	}
	defer c.reloading.Store(false)

	nodes := c.candidateNodes()
	if len(nodes) == 0 {
		return errors.New("cluster: no candidate nodes to reload topology from")
	}

	var lastErr error
	for _, addr := range nodes {
		conn, err := c.connFromPool(ctx, addr)
		if err != nil {
			lastErr = err
			continue
		}
		rep, err := conn.Do("CLUSTER", "SLOTS")
		conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if err := c.installTopology(ctx, rep); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("cluster: all candidate nodes failed reload: %w", lastErr)
}

// candidateNodes prefers addresses already known from the current
// topology (covers the common "one node unreachable" case without
// re-dialing the seed list) and falls back to EntryAddrs.
func (c *Cluster) candidateNodes() []string {
	nodes := c.currentContainer().AllNodeConnections(connection.User)
	if len(nodes) > 0 {
		addrs := make([]string, len(nodes))
		for i, n := range nodes {
			addrs[i] = n.Addr
		}
		return addrs
	}
	return c.EntryAddrs
}

type parsedSlotRange struct {
	start, end int
	primary    string
	replicas   []string
}

func (c *Cluster) installTopology(ctx context.Context, rep interface{}) error {
	raw, err := redis.Values(rep, nil)
	if err != nil {
		return err
	}

	var ranges []parsedSlotRange
	for _, slotEntry := range raw {
		fields, err := redis.Values(slotEntry, nil)
		if err != nil {
			return err
		}
		var start, end int
		rest, err := redis.Scan(fields, &start, &end)
		if err != nil {
			return err
		}

		var addrs []string
		for _, nodeEntry := range rest {
			nf, err := redis.Values(nodeEntry, nil)
			if err != nil {
				return err
			}
			var ip string
			var port int
			if _, err := redis.Scan(nf, &ip, &port); err != nil {
				return err
			}
			addrs = append(addrs, fmt.Sprintf("%s:%d", ip, port))
		}
		if len(addrs) == 0 {
			continue
		}
		ranges = append(ranges, parsedSlotRange{start: start, end: end, primary: addrs[0], replicas: addrs[1:]})
	}

	topologyHash := computeTopologyHash(ranges)
	if topologyHash == c.currentContainer().GetCurrentTopologyHash() {
		logger.Debug("cluster", "topology unchanged, skipping rebuild")
		return nil
	}

	slotRanges := make([]slotmap.SlotRange, 0, len(ranges))
	connMap := connection.ConnectionsMap[Conn]{}
	for _, r := range ranges {
		slotRanges = append(slotRanges, slotmap.SlotRange{
			Start:        uint16(r.start),
			EndInclusive: uint16(r.end),
			Addrs:        slotmap.NewShardAddrs(r.primary, r.replicas),
		})
		if err := c.ensureNode(ctx, connMap, r.primary); err != nil {
			return err
		}
		for _, replica := range r.replicas {
			if err := c.ensureNode(ctx, connMap, replica); err != nil {
				return err
			}
		}
	}

	newSlotMap := slotmap.NewSlotMap(slotRanges)
	old := c.currentContainer()
	strategy := old.Strategy()
	newContainer := connection.New[Conn](newSlotMap, connMap, strategy, topologyHash, c.sink)
	c.container.Store(newContainer)
	old.Close()

	c.mu.Lock()
	c.redirOverrides = make(map[uint16]string)
	c.mu.Unlock()

	return nil
}

// ensureNode reuses an already-open pool for addr if one exists, creating
// one otherwise, and registers it under connMap.
func (c *Cluster) ensureNode(ctx context.Context, connMap connection.ConnectionsMap[Conn], addr string) error {
	if _, done := connMap[addr]; done {
		return nil
	}
	pool, err := c.poolForAddr(ctx, addr)
	if err != nil {
		return fmt.Errorf("cluster: open pool for %s: %w", addr, err)
	}
	connMap[addr] = connection.NewClusterNode[Conn](connection.NewConnectionDetails[Conn](pool))
	return nil
}

// computeTopologyHash derives a stable fingerprint of a CLUSTER SLOTS
// snapshot so an unchanged topology short-circuits a full container
// rebuild. Ranges are sorted first so hash stability doesn't depend on
// the order Redis happens to return them in.
func computeTopologyHash(ranges []parsedSlotRange) uint64 {
	sorted := append([]parsedSlotRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	h := fnv.New64a()
	for _, r := range sorted {
		fmt.Fprintf(h, "%d-%d:%s", r.start, r.end, r.primary)
		for _, replica := range r.replicas {
			fmt.Fprintf(h, ",%s", replica)
		}
		h.Write([]byte{';'})
	}
	return h.Sum64()
}
