package node

import "github.com/vadiminshakov/distnode/core/message"

const TypeInit = "init"

// Init assigns the node its identity and the cluster membership.
type Init struct {
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

func (Init) Type() string { return TypeInit }

type InitOk struct{}

func (InitOk) Type() string { return "init_ok" }

var handshake = message.NewRegistry(&Init{}, &InitOk{})

// HandshakePayloads is the registry of the handshake variants.
func HandshakePayloads() *message.Registry {
	return handshake
}
