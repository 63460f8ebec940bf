package broadcast

import "github.com/vadiminshakov/distnode/core/message"

// Broadcast asks the node to deliver Message to the whole cluster.
type Broadcast struct {
	Message uint32 `json:"message"`
}

func (Broadcast) Type() string { return "broadcast" }

type BroadcastOk struct{}

func (BroadcastOk) Type() string { return "broadcast_ok" }

type Read struct{}

func (Read) Type() string { return "read" }

type ReadOk struct {
	Messages []uint32 `json:"messages"`
}

func (ReadOk) Type() string { return "read_ok" }

type Topology struct {
	Topology map[string][]string `json:"topology"`
}

func (Topology) Type() string { return "topology" }

type TopologyOk struct{}

func (TopologyOk) Type() string { return "topology_ok" }

// Gossip carries one value between peers. It is never forwarded further.
type Gossip struct {
	Message uint32 `json:"message"`
}

func (Gossip) Type() string { return "gossip" }

// GossipOk acknowledges one gossiped value.
type GossipOk struct {
	Message uint32 `json:"message"`
}

func (GossipOk) Type() string { return "gossip_ok" }

// Retransmit is the timer that resends Value to peers that have not acknowledged it.
type Retransmit struct {
	Value uint32
}

var payloads = message.NewRegistry(
	&Broadcast{}, &BroadcastOk{},
	&Read{}, &ReadOk{},
	&Topology{}, &TopologyOk{},
	&Gossip{}, &GossipOk{},
)
