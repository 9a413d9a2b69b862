package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/rmker/clustercore/slotmap"
)

// multiset fans MSET out across shards via a pipeLiner, one MSET command
// per distinct slot among the given key/value pairs.
func multiset(ctx context.Context, c *redirconn, args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if len(args)%2 != 0 {
		return nil, errors.New("wrong number of arguments for MSET")
	}

	bySlot := make(map[uint16][]interface{})
	var order []uint16
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprintf("%s", args[i])
		slot := slotmap.HashSlot(key)
		if _, exists := bySlot[slot]; !exists {
			order = append(order, slot)
		}
		bySlot[slot] = append(bySlot[slot], key, args[i+1])
	}

	p := newPipeliner(c.cl)
	defer p.close()
	for _, slot := range order {
		if err := p.send("MSET", bySlot[slot]...); err != nil {
			return nil, err
		}
	}
	if err := p.flush(ctx); err != nil {
		return nil, err
	}

	var res interface{}
	for range order {
		reply, err := p.receive()
		if err != nil {
			return nil, err
		}
		res = reply
	}
	return res, nil
}

// multiget fans MGET out across shards and reassembles the per-key
// replies in the caller's original order.
func multiget(ctx context.Context, c *redirconn, args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, nil
	}

	bySlot := make(map[uint16][]interface{})
	var order []uint16
	keys := make([]string, len(args))
	for i, arg := range args {
		key := fmt.Sprintf("%s", arg)
		keys[i] = key
		slot := slotmap.HashSlot(key)
		if _, exists := bySlot[slot]; !exists {
			order = append(order, slot)
		}
		bySlot[slot] = append(bySlot[slot], key)
	}

	p := newPipeliner(c.cl)
	defer p.close()
	for _, slot := range order {
		if err := p.send("MGET", bySlot[slot]...); err != nil {
			return nil, err
		}
	}
	if err := p.flush(ctx); err != nil {
		return nil, err
	}

	resByKey := make(map[string]interface{}, len(keys))
	for _, slot := range order {
		reply, err := p.receive()
		if err != nil {
			return nil, err
		}
		slotKeys := bySlot[slot]
		replySlice, ok := reply.([]interface{})
		for i := range slotKeys {
			key := fmt.Sprintf("%s", slotKeys[i])
			if ok && i < len(replySlice) {
				resByKey[key] = replySlice[i]
			} else {
				resByKey[key] = nil
			}
		}
	}

	res := make([]interface{}, len(keys))
	for i, key := range keys {
		res[i] = resByKey[key]
	}
	return res, nil
}
