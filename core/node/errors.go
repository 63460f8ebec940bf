package node

import "github.com/pkg/errors"

var (
	// ErrDecode means an input line matched no known payload shape.
	ErrDecode = errors.New("malformed input")
	// ErrNotInitialized means protocol traffic arrived before the init handshake.
	ErrNotInitialized = errors.New("message before init")
	// ErrUnexpectedPayload means a variant arrived that the receiver never accepts in its role,
	// e.g. a reply-only variant delivered as a request.
	ErrUnexpectedPayload = errors.New("unexpected payload")
	// ErrOutput means the output channel failed; the node cannot communicate anymore.
	ErrOutput = errors.New("output channel failed")
)

// Unexpected wraps ErrUnexpectedPayload with the variant and its sender.
func Unexpected(typ, src string) error {
	return errors.Wrapf(ErrUnexpectedPayload, "%s from %s", typ, src)
}
