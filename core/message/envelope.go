// Package message defines the wire unit exchanged between nodes, the harness and the store.
//
// Every line on the wire is one JSON object {src, dest, body}. The body carries the
// optional msg_id and in_reply_to correlation ids next to the fields of a payload
// variant selected by the "type" tag.
package message

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Payload is one variant of a protocol's closed message set.
type Payload interface {
	Type() string
}

// Envelope is the {src, dest, body} unit on the wire.
type Envelope struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	Body Body   `json:"body"`
}

// Body carries the correlation ids and the payload.
// Payload fields are flattened into the body object next to "type".
type Body struct {
	MsgID     *uint64
	InReplyTo *uint64
	Payload   Payload
}

// ID returns a pointer to id, for building bodies.
func ID(id uint64) *uint64 {
	return &id
}

// MarshalJSON flattens the payload fields into the body object.
func (b Body) MarshalJSON() ([]byte, error) {
	if b.Payload == nil {
		return nil, errors.New("body has no payload")
	}

	raw, err := json.Marshal(b.Payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", b.Payload.Type())
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Wrapf(err, "%s payload is not an object", b.Payload.Type())
	}

	if fields["type"], err = json.Marshal(b.Payload.Type()); err != nil {
		return nil, err
	}
	if b.MsgID != nil {
		fields["msg_id"], _ = json.Marshal(*b.MsgID)
	}
	if b.InReplyTo != nil {
		fields["in_reply_to"], _ = json.Marshal(*b.InReplyTo)
	}

	return json.Marshal(fields)
}

// Encode serializes an envelope into a single line without the trailing separator.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Raw is an envelope whose body was parsed only as far as the header fields.
// The runtime inspects Src and Type to pick the registry the payload is decoded with.
type Raw struct {
	Src       string
	Dest      string
	Type      string
	MsgID     *uint64
	InReplyTo *uint64

	body json.RawMessage
}

type rawEnvelope struct {
	Src  string          `json:"src"`
	Dest string          `json:"dest"`
	Body json.RawMessage `json:"body"`
}

type header struct {
	Type      string  `json:"type"`
	MsgID     *uint64 `json:"msg_id"`
	InReplyTo *uint64 `json:"in_reply_to"`
}

// Parse decodes the envelope frame and the body header of one line.
func Parse(line []byte) (*Raw, error) {
	var env rawEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	if len(env.Body) == 0 {
		return nil, errors.New("envelope has no body")
	}

	var h header
	if err := json.Unmarshal(env.Body, &h); err != nil {
		return nil, errors.Wrap(err, "decode body header")
	}
	if h.Type == "" {
		return nil, errors.New("body has no type")
	}

	return &Raw{
		Src:       env.Src,
		Dest:      env.Dest,
		Type:      h.Type,
		MsgID:     h.MsgID,
		InReplyTo: h.InReplyTo,
		body:      env.Body,
	}, nil
}

// Decode resolves the payload variant through reg.
func (r *Raw) Decode(reg *Registry) (*Envelope, error) {
	if !reg.Has(r.Type) {
		return nil, errors.Errorf("unknown message type %q, expected one of %v", r.Type, reg.Types())
	}
	p, _ := reg.New(r.Type)
	if err := json.Unmarshal(r.body, p); err != nil {
		return nil, errors.Wrapf(err, "decode %s payload", r.Type)
	}

	return &Envelope{
		Src:  r.Src,
		Dest: r.Dest,
		Body: Body{MsgID: r.MsgID, InReplyTo: r.InReplyTo, Payload: p},
	}, nil
}
