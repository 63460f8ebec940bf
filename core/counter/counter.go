// Package counter implements a grow-only counter shared by the cluster through
// compare-and-swap against the sequential key-value store.
//
// Increments are accepted locally and committed in batches: at most one cas is in flight,
// and everything that arrives meanwhile rides on the next one. A conflict means the local
// base is stale, so the node re-reads the store and proposes the whole batch again.
package counter

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/distnode/core/message"
	"github.com/vadiminshakov/distnode/core/node"
	"github.com/vadiminshakov/distnode/core/seqkv"
	"github.com/vadiminshakov/distnode/io/metrics"
)

const (
	DefaultKey             = "reddit"
	DefaultRefreshInterval = 500 * time.Millisecond
)

type Config struct {
	Key             string
	StoreNode       string
	RefreshInterval time.Duration
}

// Node is the counter state of one cluster member.
// While a cas is in flight proposed == current + batchDelta.
type Node struct {
	conf Config
	fsm  *stateMachine

	current  uint32
	proposed uint32
	casID    uint64

	// accepted but not yet part of a proposal
	pendingDelta uint32
	waiters      []*message.Envelope

	// covered by the cas in flight
	batchDelta uint32
	batch      []*message.Envelope

	// initialized is set once the key is known to exist; initSent once this node wrote it.
	initialized bool
	initSent    bool
}

func New(conf Config) *Node {
	if conf.Key == "" {
		conf.Key = DefaultKey
	}
	if conf.StoreNode == "" {
		conf.StoreNode = seqkv.DefaultNode
	}
	if conf.RefreshInterval <= 0 {
		conf.RefreshInterval = DefaultRefreshInterval
	}
	return &Node{conf: conf, fsm: newStateMachine()}
}

func (n *Node) Payloads() *message.Registry {
	return payloads
}

func (n *Node) StoreNode() string {
	return n.conf.StoreNode
}

func (n *Node) StorePayloads() *message.Registry {
	return seqkv.Registry()
}

// OnInit reads the store right away and starts the periodic refresh.
func (n *Node) OnInit(out node.Outbox[Refresh]) error {
	if err := n.read(out); err != nil {
		return err
	}
	out.Schedule(Refresh{}, n.conf.RefreshInterval)
	return nil
}

func (n *Node) HandleMessage(out node.Outbox[Refresh], msg *message.Envelope) error {
	switch p := msg.Body.Payload.(type) {
	case *Add:
		n.pendingDelta += p.Delta
		n.waiters = append(n.waiters, msg)
		if n.fsm.Current() == idle {
			return n.propose(out)
		}
		return nil

	case *Read:
		return out.Reply(msg, &ReadOk{Value: n.current})

	default:
		return node.Unexpected(msg.Body.Payload.Type(), msg.Src)
	}
}

func (n *Node) HandleTimer(out node.Outbox[Refresh], _ Refresh) error {
	if err := n.read(out); err != nil {
		return err
	}
	out.Schedule(Refresh{}, n.conf.RefreshInterval)
	return nil
}

func (n *Node) HandleStoreReply(out node.Outbox[Refresh], msg *message.Envelope) error {
	switch p := msg.Body.Payload.(type) {
	case *seqkv.CasOk:
		if !n.inFlight(msg) {
			return errors.Wrap(ErrStore, "cas_ok for no cas in flight")
		}
		return n.commit(out)

	case *seqkv.ReadOk:
		return n.refreshed(out, p.Value)

	case *seqkv.WriteOk:
		n.initialized = true
		log.WithFields(log.Fields{"node": out.ID(), "key": n.conf.Key}).Info("counter key initialized")
		if n.fsm.Current() != initializing {
			return nil
		}
		if n.hasWork() {
			return n.propose(out)
		}
		return n.fsm.Transition(idle)

	case *seqkv.Error:
		return n.storeError(out, msg, p)

	default:
		return node.Unexpected(msg.Body.Payload.Type(), msg.Src)
	}
}

// Value returns the last value known committed.
func (n *Node) Value() uint32 {
	return n.current
}

func (n *Node) inFlight(msg *message.Envelope) bool {
	return n.fsm.Current() == proposing && msg.Body.InReplyTo != nil && *msg.Body.InReplyTo == n.casID
}

func (n *Node) hasWork() bool {
	return len(n.batch) > 0 || len(n.waiters) > 0
}

// propose moves everything accepted so far into the batch and swaps current for current + batch.
func (n *Node) propose(out node.Outbox[Refresh]) error {
	n.batch = append(n.batch, n.waiters...)
	n.waiters = nil
	n.batchDelta += n.pendingDelta
	n.pendingDelta = 0
	n.proposed = n.current + n.batchDelta

	id, err := out.Send(n.conf.StoreNode, &seqkv.Cas{Key: n.conf.Key, From: n.current, To: n.proposed})
	if err != nil {
		return err
	}
	n.casID = id

	log.WithFields(log.Fields{
		"node": out.ID(), "from": n.current, "to": n.proposed, "batch": len(n.batch),
	}).Debug("proposing")

	return n.fsm.Transition(proposing)
}

func (n *Node) commit(out node.Outbox[Refresh]) error {
	metrics.CasAttempts.WithLabelValues(metrics.CasOK).Inc()

	n.current = n.proposed
	n.initialized = true
	metrics.CounterValue.WithLabelValues(out.ID()).Set(float64(n.current))

	batch := n.batch
	n.batch = nil
	n.batchDelta = 0
	for _, req := range batch {
		if err := out.Reply(req, &AddOk{}); err != nil {
			return err
		}
	}

	if len(n.waiters) > 0 {
		return n.propose(out)
	}
	return n.fsm.Transition(idle)
}

// refreshed folds a value read from the store into the local view. A read that lands while
// a cas is in flight is left to the cas outcome so proposed stays current + batchDelta.
func (n *Node) refreshed(out node.Outbox[Refresh], value uint32) error {
	n.initialized = true
	if n.fsm.Current() == proposing {
		return nil
	}

	if value > n.current {
		n.current = value
		metrics.CounterValue.WithLabelValues(out.ID()).Set(float64(n.current))
	}

	if n.fsm.Current() == refreshing {
		return n.propose(out)
	}
	return nil
}

func (n *Node) storeError(out node.Outbox[Refresh], msg *message.Envelope, e *seqkv.Error) error {
	cas := n.inFlight(msg)

	switch e.Code {
	case seqkv.CodePreconditionFailed:
		if !cas {
			return errors.Wrap(ErrStore, e.Error())
		}
		metrics.CasAttempts.WithLabelValues(metrics.CasConflict).Inc()
		log.WithFields(log.Fields{"node": out.ID(), "from": n.current}).Debug("cas conflict, refreshing")
		if err := n.fsm.Transition(refreshing); err != nil {
			return err
		}
		return n.read(out)

	case seqkv.CodeKeyDoesNotExist:
		if cas {
			metrics.CasAttempts.WithLabelValues(metrics.CasMissing).Inc()
			if n.shouldInitialize(out) {
				return n.initialize(out)
			}
			// wait for the periodic read to see the key
			return n.fsm.Transition(refreshing)
		}
		if n.shouldInitialize(out) && n.fsm.Current() != proposing {
			return n.initialize(out)
		}
		return nil

	default:
		return errors.Wrapf(ErrStore, "unexpected %s", e.Error())
	}
}

// shouldInitialize elects the first node of the membership to create the key, once.
func (n *Node) shouldInitialize(out node.Outbox[Refresh]) bool {
	if n.initialized || n.initSent || n.fsm.Current() == initializing {
		return false
	}
	peers := out.Peers()
	return len(peers) > 0 && peers[0] == out.ID()
}

func (n *Node) initialize(out node.Outbox[Refresh]) error {
	if _, err := out.Send(n.conf.StoreNode, &seqkv.Write{Key: n.conf.Key, Value: 0}); err != nil {
		return err
	}
	n.initSent = true
	return n.fsm.Transition(initializing)
}

func (n *Node) read(out node.Outbox[Refresh]) error {
	_, err := out.Send(n.conf.StoreNode, &seqkv.Read{Key: n.conf.Key})
	return err
}
