package cluster

import (
	"context"
	"errors"
	"sync"

	"github.com/gomodule/redigo/redis"
)

// pipeLiner splits a pipeline into per-node batches keyed by the address
// each command's slot resolves to, runs every batch concurrently, and handles MOVED
// redirects by rebuilding just the redirected commands into new batches.

type cmd struct {
	commandName string
	args        []interface{}
	reply       interface{}
	replyErr    error
	slot        int
	addr        string
	ri          *RedirInfo
}

// batch is every command bound for one node address.
type batch struct {
	addr string
	conn redis.Conn
	cmds []*cmd
}

type pipeLiner struct {
	cl       *Cluster
	cmds     []*cmd
	readOnly bool
	flushed  bool
	recvPos  int
	batches  map[string]*batch
}

func newPipeliner(cl *Cluster) *pipeLiner {
	return &pipeLiner{cl: cl, recvPos: -1}
}

func (bt *batch) run(ctx context.Context, p *pipeLiner) error {
	var err error
	if bt.conn == nil && bt.addr != "" {
		bt.conn, err = p.cl.connFromPool(ctx, bt.addr)
		if err != nil {
			return err
		}
	}
	if bt.conn == nil {
		return errors.New("nil conn")
	}
	for _, cm := range bt.cmds {
		if err := bt.conn.Send(cm.commandName, cm.args...); err != nil {
			return err
		}
	}
	if err := bt.conn.Flush(); err != nil {
		return err
	}
	for _, cm := range bt.cmds {
		cm.reply, cm.replyErr = bt.conn.Receive()
		if cm.replyErr != nil {
			if ri := ParseRedirInfo(cm.replyErr); ri != nil {
				cm.ri = ri
				if ri.Kind == "MOVED" {
					p.cl.onRedir(ctx, ri)
				}
			}
		}
	}
	return nil
}

func (p *pipeLiner) buildBatches(ctx context.Context) error {
	p.batches = make(map[string]*batch)
	for _, cm := range p.cmds {
		cm.slot = cmdSlot(cm.commandName, cm.args...)
		addr, _, err := p.cl.addrConnForSlot(ctx, cm.slot, p.readOnly)
		if err != nil {
			return err
		}
		cm.addr = addr
		bt, ok := p.batches[addr]
		if !ok {
			bt = &batch{addr: addr}
			p.batches[addr] = bt
		}
		bt.cmds = append(bt.cmds, cm)
	}
	return nil
}

func (p *pipeLiner) buildRedirectBatches() int {
	for _, bt := range p.batches {
		bt.cmds = nil
	}
	count := 0
	for _, cm := range p.cmds {
		if cm == nil || cm.ri == nil {
			continue
		}
		bt, ok := p.batches[cm.ri.Addr]
		if !ok {
			bt = &batch{addr: cm.ri.Addr}
			p.batches[cm.ri.Addr] = bt
		}
		bt.cmds = append(bt.cmds, cm)
		cm.ri = nil
		count++
	}
	return count
}

func (p *pipeLiner) doRedirect(ctx context.Context) {
	if p.buildRedirectBatches() > 0 {
		p.runBatches(ctx)
	}
}

func (p *pipeLiner) runBatches(ctx context.Context) {
	if len(p.batches) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, bt := range p.batches {
		if bt == nil || len(bt.cmds) == 0 {
			continue
		}
		wg.Add(1)
		go func(b *batch) {
			defer wg.Done()
			_ = b.run(ctx, p)
		}(bt)
	}
	wg.Wait()
}

func (p *pipeLiner) send(commandName string, args ...interface{}) error {
	p.cmds = append(p.cmds, &cmd{commandName: commandName, args: args})
	return nil
}

func (p *pipeLiner) close() error {
	p.reset()
	return nil
}

// flush builds and runs every batch, following up with one redirect pass
// for any MOVED/ASK replies it collected.
func (p *pipeLiner) flush(ctx context.Context) error {
	if p.flushed || len(p.cmds) == 0 {
		return nil
	}
	if err := p.buildBatches(ctx); err != nil {
		return err
	}
	p.runBatches(ctx)
	p.doRedirect(ctx)
	p.flushed = true
	return nil
}

func (p *pipeLiner) receive() (interface{}, error) {
	if !p.flushed {
		return nil, errors.New("need to flush before receive")
	}
	if len(p.cmds) == 0 {
		return nil, nil
	}
	if p.recvPos >= len(p.cmds)-1 {
		return nil, errors.New("no more reply")
	}
	p.recvPos++
	reply, err := p.cmds[p.recvPos].reply, p.cmds[p.recvPos].replyErr
	if p.recvPos == len(p.cmds)-1 {
		p.reset()
	}
	return reply, err
}

func (p *pipeLiner) err() error {
	for _, cm := range p.cmds {
		if cm.replyErr != nil {
			return cm.replyErr
		}
	}
	return nil
}

func (p *pipeLiner) reset() {
	p.cmds = nil
	p.flushed = false
	p.recvPos = -1
	for addr, bt := range p.batches {
		if bt.conn != nil {
			bt.conn.Close()
		}
		delete(p.batches, addr)
	}
}
