// Package sim runs a whole cluster in one process: every node is a real runtime wired to
// pipes, a router carries lines between them, drops peer traffic at a configured rate and
// answers the store protocol from an in-memory badger store.
//
// The router optionally records every line in a gowal journal so tests can check
// properties of the message history after the cluster has stopped.
package sim

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/distnode/core/message"
	"github.com/vadiminshakov/distnode/core/node"
	"github.com/vadiminshakov/distnode/core/seqkv"
)

// ClientID is the source of every request the cluster's Call sends.
const ClientID = "c1"

const handshakeTimeout = 5 * time.Second

type Config struct {
	Nodes int
	// DropRate is the probability that a line between two nodes is lost.
	// Client and store traffic is never dropped.
	DropRate   float64
	Seed       int64
	StoreNode  string
	JournalDir string
}

type member struct {
	id     string
	inbox  *mailbox
	done   chan error
	exited chan struct{}
}

type Cluster struct {
	conf    Config
	ids     []string
	members map[string]*member
	kv      *kvService
	journal *journal

	rngMu sync.Mutex
	rng   *rand.Rand

	callMu sync.Mutex
	calls  map[uint64]chan *message.Raw
	nextID atomic.Uint64

	dropped atomic.Uint64
	pumps   sync.WaitGroup

	errMu sync.Mutex
	err   error

	stopOnce sync.Once
	stopErr  error
}

// Start launches conf.Nodes runtimes named n0..n{N-1}, each running the protocol factory
// returns for it, and completes the init handshake with all of them.
func Start[T any](ctx context.Context, conf Config, factory func(id string) node.Protocol[T]) (*Cluster, error) {
	if conf.Nodes <= 0 {
		return nil, errors.New("cluster needs at least one node")
	}
	if conf.DropRate < 0 || conf.DropRate >= 1 {
		return nil, errors.Errorf("drop rate %v is outside [0, 1)", conf.DropRate)
	}
	if conf.StoreNode == "" {
		conf.StoreNode = seqkv.DefaultNode
	}

	kv, err := newKVService(conf.StoreNode)
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		conf:    conf,
		members: make(map[string]*member, conf.Nodes),
		kv:      kv,
		rng:     rand.New(rand.NewSource(conf.Seed)),
		calls:   make(map[uint64]chan *message.Raw),
	}

	if conf.JournalDir != "" {
		if c.journal, err = openJournal(conf.JournalDir); err != nil {
			_ = kv.close()
			return nil, err
		}
	}

	for i := 0; i < conf.Nodes; i++ {
		id := fmt.Sprintf("n%d", i)
		c.ids = append(c.ids, id)
		c.members[id] = &member{
			id:     id,
			inbox:  newMailbox(),
			done:   make(chan error, 1),
			exited: make(chan struct{}),
		}
	}

	for _, id := range c.ids {
		m := c.members[id]
		inR, inW := io.Pipe()
		outR, outW := io.Pipe()
		rt := node.New[T](factory(id))

		pumped := make(chan struct{})
		c.pumps.Add(1)
		go func() {
			c.pump(id, outR)
			close(pumped)
		}()

		go m.inbox.deliver(inW)
		go func() {
			err := rt.Run(ctx, inR, outW)
			_ = inR.Close()
			_ = outW.Close()
			// every line the node wrote is routed before callers learn it exited
			<-pumped
			m.done <- err
			close(m.exited)
		}()
	}

	for _, id := range c.ids {
		if err := c.handshake(ctx, id); err != nil {
			_ = c.Stop()
			return nil, errors.Wrapf(err, "init %s", id)
		}
	}

	log.WithFields(log.Fields{"nodes": conf.Nodes, "drop_rate": conf.DropRate}).Info("cluster started")
	return c, nil
}

func (c *Cluster) handshake(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	hello := &node.Init{NodeID: id, NodeIDs: c.Nodes()}
	_, err := c.Call(ctx, id, hello, node.HandshakePayloads())
	return err
}

// Nodes returns the node ids in membership order.
func (c *Cluster) Nodes() []string {
	return append([]string(nil), c.ids...)
}

// Dropped returns how many lines between nodes were lost so far.
func (c *Cluster) Dropped() uint64 {
	return c.dropped.Load()
}

// StoreValue reads key from the simulated store. Valid until Stop.
func (c *Cluster) StoreValue(key string) (uint32, error) {
	return c.kv.value(key)
}

// Call sends payload from the client to dst and waits for the correlated reply, decoded with replies.
// It fails without waiting further once dst has exited.
func (c *Cluster) Call(ctx context.Context, dst string, payload message.Payload, replies *message.Registry) (*message.Envelope, error) {
	m, ok := c.members[dst]
	if !ok {
		return nil, errors.Errorf("unknown node %s", dst)
	}

	id := c.nextID.Add(1)
	line, err := message.Encode(&message.Envelope{
		Src:  ClientID,
		Dest: dst,
		Body: message.Body{MsgID: message.ID(id), Payload: payload},
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan *message.Raw, 1)
	c.callMu.Lock()
	c.calls[id] = ch
	c.callMu.Unlock()
	defer func() {
		c.callMu.Lock()
		delete(c.calls, id)
		c.callMu.Unlock()
	}()

	if err := c.journal.record(line, false); err != nil {
		return nil, err
	}
	if !m.inbox.put(line) {
		return nil, errors.Errorf("node %s is stopped", dst)
	}

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "%s to %s", payload.Type(), dst)
	case raw := <-ch:
		return raw.Decode(replies)
	case <-m.exited:
		select {
		case raw := <-ch:
			return raw.Decode(replies)
		default:
			return nil, errors.Errorf("node %s exited before answering %s", dst, payload.Type())
		}
	}
}

// Stop closes every node's input, waits for the runtimes to exit and returns the first
// fatal error a node or the router hit. Context cancellation is not an error.
func (c *Cluster) Stop() error {
	c.stopOnce.Do(func() {
		for _, id := range c.ids {
			c.members[id].inbox.close()
		}

		var errs []error
		for _, id := range c.ids {
			err := <-c.members[id].done
			if err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, errors.Wrapf(err, "node %s", id))
			}
		}
		c.pumps.Wait()

		c.errMu.Lock()
		if c.err != nil {
			errs = append([]error{c.err}, errs...)
		}
		c.errMu.Unlock()

		if err := c.journal.close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close journal"))
		}
		if err := c.kv.close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close store"))
		}

		if len(errs) > 0 {
			c.stopErr = errs[0]
		}
	})
	return c.stopErr
}

func (c *Cluster) pump(src string, out io.Reader) {
	defer c.pumps.Done()

	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 64<<10), 16<<20)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		if err := c.route(src, line); err != nil {
			c.fail(err)
		}
	}
}

func (c *Cluster) route(src string, line []byte) error {
	raw, err := message.Parse(line)
	if err != nil {
		return errors.Wrapf(err, "output of %s", src)
	}

	if dst, ok := c.members[raw.Dest]; ok {
		_, fromNode := c.members[src]
		drop := fromNode && c.lose()
		if err := c.journal.record(line, drop); err != nil {
			return err
		}
		if drop {
			c.dropped.Add(1)
			log.WithFields(log.Fields{"src": src, "dest": raw.Dest, "type": raw.Type}).Debug("dropped")
			return nil
		}
		dst.inbox.put(line)
		return nil
	}

	if err := c.journal.record(line, false); err != nil {
		return err
	}

	if raw.Dest == c.conf.StoreNode {
		reply, err := c.kv.handle(raw)
		if err != nil {
			return errors.Wrapf(err, "store request from %s", src)
		}
		if err := c.journal.record(reply, false); err != nil {
			return err
		}
		c.members[src].inbox.put(reply)
		return nil
	}

	if raw.InReplyTo == nil {
		log.WithFields(log.Fields{"src": src, "dest": raw.Dest, "type": raw.Type}).Warn("unsolicited client message")
		return nil
	}
	c.callMu.Lock()
	ch, ok := c.calls[*raw.InReplyTo]
	c.callMu.Unlock()
	if ok {
		select {
		case ch <- raw:
		default:
		}
	}
	return nil
}

func (c *Cluster) lose() bool {
	if c.conf.DropRate == 0 {
		return false
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.Float64() < c.conf.DropRate
}

func (c *Cluster) fail(err error) {
	log.WithError(err).Error("router failure")
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
