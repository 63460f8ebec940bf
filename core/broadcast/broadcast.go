// Package broadcast delivers every value a client submits to all nodes of the cluster.
//
// The receiving node gossips a new value to every peer directly and keeps retransmitting it
// on a timer until each peer has acknowledged it. Peers store gossiped values but never
// forward them, so the fan-out is one hop over the full mesh.
package broadcast

import (
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/distnode/core/message"
	"github.com/vadiminshakov/distnode/core/node"
	"github.com/vadiminshakov/distnode/io/metrics"
)

const DefaultInterval = 100 * time.Millisecond

// Node is the gossip state of one cluster member.
// Every value present in pending is also present in messages.
type Node struct {
	interval time.Duration
	messages map[uint32]struct{}
	pending  map[uint32]map[string]struct{}
	topology map[string][]string
}

func New(interval time.Duration) *Node {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Node{
		interval: interval,
		messages: make(map[uint32]struct{}),
		pending:  make(map[uint32]map[string]struct{}),
	}
}

func (n *Node) Payloads() *message.Registry {
	return payloads
}

func (n *Node) HandleMessage(out node.Outbox[Retransmit], msg *message.Envelope) error {
	switch p := msg.Body.Payload.(type) {
	case *Broadcast:
		if err := out.Reply(msg, &BroadcastOk{}); err != nil {
			return err
		}
		if !n.insert(p.Message) {
			log.WithFields(log.Fields{"node": out.ID(), "value": p.Message}).Debug("duplicate broadcast")
			return nil
		}
		return n.propagate(out, p.Message)

	case *Gossip:
		n.insert(p.Message)
		return out.Reply(msg, &GossipOk{Message: p.Message})

	case *GossipOk:
		n.ack(out.ID(), p.Message, msg.Src)
		return nil

	case *Read:
		return out.Reply(msg, &ReadOk{Messages: n.Messages()})

	case *Topology:
		n.topology = p.Topology
		return out.Reply(msg, &TopologyOk{})

	default:
		return node.Unexpected(msg.Body.Payload.Type(), msg.Src)
	}
}

// HandleTimer resends a value to the peers that still owe an acknowledgment.
// A timer for a fully acknowledged value does nothing.
func (n *Node) HandleTimer(out node.Outbox[Retransmit], timer Retransmit) error {
	waiting, ok := n.pending[timer.Value]
	if !ok {
		return nil
	}

	for _, peer := range sortedKeys(waiting) {
		if _, err := out.Send(peer, &Gossip{Message: timer.Value}); err != nil {
			return err
		}
		metrics.GossipRetransmits.Inc()
	}
	log.WithFields(log.Fields{"node": out.ID(), "value": timer.Value, "peers": len(waiting)}).
		Debug("retransmitted gossip")

	out.Schedule(timer, n.interval)
	return nil
}

// insert reports whether value was new.
func (n *Node) insert(value uint32) bool {
	if _, ok := n.messages[value]; ok {
		return false
	}
	n.messages[value] = struct{}{}
	return true
}

func (n *Node) propagate(out node.Outbox[Retransmit], value uint32) error {
	self := out.ID()
	waiting := make(map[string]struct{})
	for _, peer := range out.Peers() {
		if peer == self {
			continue
		}
		if _, err := out.Send(peer, &Gossip{Message: value}); err != nil {
			return err
		}
		waiting[peer] = struct{}{}
	}
	if len(waiting) == 0 {
		return nil
	}

	n.pending[value] = waiting
	metrics.GossipPending.WithLabelValues(self).Set(float64(len(n.pending)))
	out.Schedule(Retransmit{Value: value}, n.interval)
	return nil
}

func (n *Node) ack(self string, value uint32, from string) {
	waiting, ok := n.pending[value]
	if !ok {
		return
	}
	delete(waiting, from)
	if len(waiting) == 0 {
		delete(n.pending, value)
		metrics.GossipPending.WithLabelValues(self).Set(float64(len(n.pending)))
	}
}

// Messages returns the delivered values in ascending order.
func (n *Node) Messages() []uint32 {
	out := make([]uint32, 0, len(n.messages))
	for v := range n.messages {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Pending returns the peers that have not acknowledged value yet, sorted.
func (n *Node) Pending(value uint32) []string {
	return sortedKeys(n.pending[value])
}

// Topology returns the last topology the harness supplied. Routing ignores it.
func (n *Node) Topology() map[string][]string {
	return n.topology
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
