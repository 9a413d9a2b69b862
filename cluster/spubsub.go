package cluster

import (
	"context"
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/rmker/clustercore/slotmap"
)

// ShardedPubSubConn wraps a Conn with convenience API for Redis Cluster's
// sharded pub/sub (SSUBSCRIBE/SUNSUBSCRIBE), which requires the
// connection to live on the shard owning the channel's slot.
type ShardedPubSubConn struct {
	cl   *Cluster
	conn redis.Conn
}

// ChnSlot returns the single slot every given channel name hashes to, or
// an error if they don't all agree (sharded pub/sub requires one shard).
func ChnSlot(channels ...interface{}) (int, error) {
	slot := -1
	for _, ch := range channels {
		name, err := redis.String(ch, nil)
		if err != nil {
			return -1, err
		}
		if name == "" {
			continue
		}
		sl := int(slotmap.HashSlot(name))
		if slot < 0 {
			slot = sl
		} else if sl != slot {
			return -1, errors.New("channels must be in the same slot")
		}
	}
	return slot, nil
}

// Close closes the underlying connection.
func (c *ShardedPubSubConn) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SSubscribe subscribes to the given sharded channels, dialing the shard
// that owns them.
func (c *ShardedPubSubConn) SSubscribe(ctx context.Context, channels ...interface{}) error {
	slot, err := ChnSlot(channels...)
	if err != nil {
		return err
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	_, conn, err := c.cl.addrConnForSlot(ctx, slot, false)
	if err != nil {
		return err
	}
	c.conn = conn

	if err := c.conn.Send("SSUBSCRIBE", channels...); err != nil {
		return err
	}
	return c.conn.Flush()
}

// SUnsubscribe unsubscribes from the given sharded channels, or from all
// of them if none are given.
func (c *ShardedPubSubConn) SUnsubscribe(channels ...interface{}) error {
	if c.conn == nil {
		return errors.New("nil conn")
	}
	if err := c.conn.Send("SUNSUBSCRIBE", channels...); err != nil {
		return err
	}
	return c.conn.Flush()
}

// Ping sends a PING on an already-subscribed connection.
func (c *ShardedPubSubConn) Ping(data string) error {
	if c.conn == nil {
		return errors.New("nil conn")
	}
	if err := c.conn.Send("PING", data); err != nil {
		return err
	}
	return c.conn.Flush()
}

// Receive returns a pushed message as a Subscription, Message, Pong or
// error, to be used in a type switch.
func (c *ShardedPubSubConn) Receive() interface{} {
	if c.conn == nil {
		return errors.New("nil conn")
	}
	return c.receiveInternal(c.conn.Receive())
}

// ReceiveWithTimeout is Receive, bounded by timeout.
func (c *ShardedPubSubConn) ReceiveWithTimeout(timeout time.Duration) interface{} {
	if c.conn == nil {
		return errors.New("nil conn")
	}
	return c.receiveInternal(redis.ReceiveWithTimeout(c.conn, timeout))
}

// ReceiveContext is Receive, terminable via ctx.
func (c *ShardedPubSubConn) ReceiveContext(ctx context.Context) interface{} {
	if c.conn == nil {
		return errors.New("nil conn")
	}
	return c.receiveInternal(redis.ReceiveContext(c.conn, ctx))
}

func (c *ShardedPubSubConn) receiveInternal(replyArg interface{}, errArg error) interface{} {
	reply, err := redis.Values(replyArg, errArg)
	if err != nil {
		return err
	}

	var kind string
	reply, err = redis.Scan(reply, &kind)
	if err != nil {
		return err
	}

	switch kind {
	case "smessage":
		var m redis.Message
		if _, err := redis.Scan(reply, &m.Channel, &m.Data); err != nil {
			return err
		}
		return m
	case "ssubscribe", "sunsubscribe":
		s := redis.Subscription{Kind: kind}
		if _, err := redis.Scan(reply, &s.Channel, &s.Count); err != nil {
			return err
		}
		return s
	case "pong":
		var p redis.Pong
		if _, err := redis.Scan(reply, &p.Data); err != nil {
			return err
		}
		return p
	}
	return errors.New("redigo: unknown pubsub notification")
}
