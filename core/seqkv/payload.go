// Package seqkv holds the request and reply variants of the sequential key-value store
// that nodes talk to like any other peer.
package seqkv

import (
	"fmt"

	"github.com/vadiminshakov/distnode/core/message"
)

// DefaultNode is the store's node id in the cluster.
const DefaultNode = "seq-kv"

// Error codes the store returns. Any other code is a broken contract.
const (
	CodeKeyDoesNotExist    = 20
	CodePreconditionFailed = 22
)

type Read struct {
	Key string `json:"key"`
}

func (Read) Type() string { return "read" }

type ReadOk struct {
	Value uint32 `json:"value"`
}

func (ReadOk) Type() string { return "read_ok" }

type Write struct {
	Key   string `json:"key"`
	Value uint32 `json:"value"`
}

func (Write) Type() string { return "write" }

type WriteOk struct{}

func (WriteOk) Type() string { return "write_ok" }

// Cas swaps the value of Key to To if it currently equals From.
type Cas struct {
	Key  string `json:"key"`
	From uint32 `json:"from"`
	To   uint32 `json:"to"`
}

func (Cas) Type() string { return "cas" }

type CasOk struct{}

func (CasOk) Type() string { return "cas_ok" }

type Error struct {
	Code uint32 `json:"code"`
	Text string `json:"text"`
}

func (Error) Type() string { return "error" }

func (e *Error) Error() string {
	return fmt.Sprintf("store error %d: %s", e.Code, e.Text)
}

// KeyDoesNotExist builds the error reply for a missing key.
func KeyDoesNotExist(key string) *Error {
	return &Error{Code: CodeKeyDoesNotExist, Text: fmt.Sprintf("key %s does not exist", key)}
}

// PreconditionFailed builds the error reply for a failed compare-and-swap.
func PreconditionFailed(key string, expected, actual uint32) *Error {
	return &Error{
		Code: CodePreconditionFailed,
		Text: fmt.Sprintf("current value of %s is %d, not %d", key, actual, expected),
	}
}

var registry = message.NewRegistry(
	&Read{}, &ReadOk{},
	&Write{}, &WriteOk{},
	&Cas{}, &CasOk{},
	&Error{},
)

// Registry holds every store variant, requests and replies alike.
func Registry() *message.Registry {
	return registry
}
