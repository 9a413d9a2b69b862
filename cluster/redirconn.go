package cluster

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/rmker/clustercore/slotmap"
)

// redirconn implements redis.Conn for a Cluster: it resolves each
// command's slot, borrows a connection from that node's pool, and
// transparently follows MOVED/ASK redirects.

const (
	opNil = iota
	opDo
	opPipeline
)

type redirconn struct {
	cl       *Cluster
	redir    bool
	readOnly bool

	mu       sync.Mutex
	ppl      *pipeLiner
	lastRc   redis.Conn
	lastAddr string
	lastOp   int
}

// RedirInfo is a parsed MOVED/ASK redirection error.
type RedirInfo struct {
	Kind string
	Slot int
	Addr string
	Raw  string
}

// ParseRedirInfo parses a redis.Error's "MOVED <slot> <addr>" or
// "ASK <slot> <addr>" text into a RedirInfo, or returns nil if err isn't
// one.
func ParseRedirInfo(err error) *RedirInfo {
	re, ok := err.(redis.Error)
	if !ok {
		return nil
	}
	parts := strings.Fields(re.Error())
	if len(parts) != 3 || (parts[0] != "MOVED" && parts[0] != "ASK") {
		return nil
	}
	slot, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}
	return &RedirInfo{Kind: parts[0], Slot: slot, Addr: parts[2], Raw: re.Error()}
}

func (c *redirconn) hookDo(ctx context.Context, cmd string, args ...interface{}) (reply interface{}, err error, hooked bool) {
	switch cmd {
	case "MSET":
		rep, err := multiset(ctx, c, args...)
		return rep, err, true
	case "MGET":
		rep, err := multiget(ctx, c, args...)
		return rep, err, true
	default:
		return nil, nil, false
	}
}

func connDoContext(conn redis.Conn, ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	if conn == nil {
		return nil, errors.New("invalid conn")
	}
	if cwt, ok := conn.(redis.ConnWithContext); ok {
		return cwt.DoContext(ctx, cmd, args...)
	}
	return conn.Do(cmd, args...)
}

// Close closes the connection.
func (c *redirconn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ppl != nil {
		return c.ppl.close()
	}
	if c.lastRc != nil {
		c.lastRc.Close()
		c.lastRc = nil
		c.lastAddr = ""
	}
	return nil
}

// Err returns a non-nil value when the connection is not usable.
func (c *redirconn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastOp == opDo && c.lastRc != nil {
		return c.lastRc.Err()
	} else if c.lastOp == opPipeline && c.ppl != nil {
		return c.ppl.err()
	}
	return nil
}

// Do sends a command with context.Background().
func (c *redirconn) Do(cmd string, args ...interface{}) (interface{}, error) {
	return c.DoContext(context.Background(), cmd, args...)
}

// DoWithTimeout sends a command bounded by timeout.
func (c *redirconn) DoWithTimeout(timeout time.Duration, cmd string, args ...interface{}) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.DoContext(ctx, cmd, args...)
}

func cmdSlot(cmd string, args ...interface{}) int {
	sk := 0
	switch cmd {
	case "EVAL", "EVAL_RO", "EVALSHA", "EVALSHA_RO":
		sk = 2
	}
	if len(args) <= sk {
		return -1
	}
	key, ok := args[sk].(string)
	if !ok {
		return -1
	}
	return int(slotmap.HashSlot(key))
}

func (c *redirconn) getConn(ctx context.Context, lastOp int, cmd string, args ...interface{}) (redis.Conn, error) {
	slot := cmdSlot(cmd, args...)

	var addr string
	if slot < 0 {
		c.mu.Lock()
		addr = c.lastAddr
		c.mu.Unlock()
	}

	var conn redis.Conn
	var err error
	if addr == "" {
		addr, conn, err = c.cl.addrConnForSlot(ctx, slot, c.readOnly)
		if err != nil {
			return nil, err
		}
	} else {
		conn, err = c.cl.connFromPool(ctx, addr)
		if err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	c.lastOp = lastOp
	if c.lastRc != nil && c.lastRc != conn {
		c.lastRc.Close()
	}
	c.lastAddr = addr
	c.lastRc = conn
	c.mu.Unlock()
	return conn, nil
}

// DoContext sends a command, following a MOVED/ASK redirect once if the
// server returns one and c.redir is set.
func (c *redirconn) DoContext(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	if repl, err, hooked := c.hookDo(ctx, cmd, args...); hooked {
		return repl, err
	}
	conn, err := c.getConn(ctx, opDo, cmd, args...)
	if err != nil {
		return nil, err
	}
	repl, err := connDoContext(conn, ctx, cmd, args...)
	if err == nil || !c.redir {
		return repl, err
	}
	ri := ParseRedirInfo(err)
	if ri == nil {
		return repl, err
	}
	c.cl.onRedir(ctx, ri)
	redirConn, dialErr := c.cl.connFromPool(ctx, ri.Addr)
	if dialErr != nil {
		return repl, err
	}
	repl2, err2 := connDoContext(redirConn, ctx, cmd, args...)
	c.mu.Lock()
	c.lastAddr = ri.Addr
	c.lastRc = redirConn
	c.mu.Unlock()
	return repl2, err2
}

// Send appends cmd to this connection's pipeline buffer.
func (c *redirconn) Send(cmd string, args ...interface{}) error {
	c.mu.Lock()
	if c.ppl == nil {
		c.ppl = newPipeliner(c.cl)
	}
	c.lastOp = opPipeline
	c.mu.Unlock()
	return c.ppl.send(cmd, args...)
}

// Flush runs every pipelined command, fanned out by shard.
func (c *redirconn) Flush() error {
	c.mu.Lock()
	if c.ppl == nil {
		c.mu.Unlock()
		return nil
	}
	c.lastOp = opPipeline
	ppl := c.ppl
	c.mu.Unlock()
	return ppl.flush(context.Background())
}

// Receive returns the next pipelined reply. Since Flush already collected
// every reply, this never blocks on I/O.
func (c *redirconn) Receive() (interface{}, error) {
	c.mu.Lock()
	if c.ppl == nil {
		c.mu.Unlock()
		return nil, errors.New("no send request before")
	}
	c.lastOp = opPipeline
	ppl := c.ppl
	c.mu.Unlock()
	return ppl.receive()
}

// ReceiveWithTimeout implements redis.ConnWithTimeout; timeout is ignored
// since Receive never performs I/O here.
func (c *redirconn) ReceiveWithTimeout(_ time.Duration) (interface{}, error) {
	return c.Receive()
}

// ReceiveContext implements redis.ConnWithContext; ctx is ignored for the
// same reason as ReceiveWithTimeout.
func (c *redirconn) ReceiveContext(_ context.Context) (interface{}, error) {
	return c.Receive()
}
