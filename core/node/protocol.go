package node

import (
	"time"

	"github.com/vadiminshakov/distnode/core/message"
)

// Outbox is the part of the runtime protocol handlers talk to.
// T is the protocol's timer payload type.
//
//go:generate mockgen -destination=../../mocks/mock_outbox.go -package=mocks . Outbox
type Outbox[T any] interface {
	// ID is the node id assigned by the handshake.
	ID() string
	// Peers is a copy of the cluster membership, self included, in handshake order.
	Peers() []string
	// Send writes a new request and returns the msg_id assigned to it.
	Send(dst string, payload message.Payload) (uint64, error)
	// Reply answers req, correlating through in_reply_to.
	Reply(req *message.Envelope, payload message.Payload) error
	// Schedule delivers payload to HandleTimer once delay has elapsed.
	Schedule(payload T, delay time.Duration)
}

// Protocol is the behaviour a node runs on top of the runtime.
// Handlers run one at a time on the runtime goroutine and need no locking.
// A returned error stops the node.
type Protocol[T any] interface {
	Payloads() *message.Registry
	HandleMessage(out Outbox[T], msg *message.Envelope) error
	HandleTimer(out Outbox[T], timer T) error
}

// StoreClient is implemented by protocols that talk to the external store.
// Envelopes whose source is StoreNode are decoded with StorePayloads and
// routed to HandleStoreReply instead of HandleMessage.
type StoreClient[T any] interface {
	StoreNode() string
	StorePayloads() *message.Registry
	HandleStoreReply(out Outbox[T], msg *message.Envelope) error
}

// Initializer is implemented by protocols that need to act once the node knows its identity.
type Initializer[T any] interface {
	OnInit(out Outbox[T]) error
}
