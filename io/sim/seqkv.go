package sim

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/distnode/core/message"
	"github.com/vadiminshakov/distnode/core/seqkv"
	"github.com/vadiminshakov/distnode/io/store"
)

// kvService answers the store protocol on behalf of the store node, backed by io/store.
type kvService struct {
	id     string
	store  *store.Store
	nextID atomic.Uint64
}

func newKVService(id string) (*kvService, error) {
	s, err := store.New("")
	if err != nil {
		return nil, err
	}
	return &kvService{id: id, store: s}, nil
}

// handle executes one request line and returns the encoded reply.
func (k *kvService) handle(raw *message.Raw) ([]byte, error) {
	env, err := raw.Decode(seqkv.Registry())
	if err != nil {
		return nil, errors.Wrap(err, "decode store request")
	}

	reply, err := k.apply(env.Body.Payload)
	if err != nil {
		return nil, err
	}

	return message.Encode(&message.Envelope{
		Src:  k.id,
		Dest: env.Src,
		Body: message.Body{MsgID: message.ID(k.nextID.Add(1)), InReplyTo: env.Body.MsgID, Payload: reply},
	})
}

func (k *kvService) apply(p message.Payload) (message.Payload, error) {
	switch req := p.(type) {
	case *seqkv.Read:
		val, err := k.store.Get(req.Key)
		if errors.Is(err, store.ErrNotFound) {
			return seqkv.KeyDoesNotExist(req.Key), nil
		}
		if err != nil {
			return nil, err
		}
		return &seqkv.ReadOk{Value: decode(val)}, nil

	case *seqkv.Write:
		if err := k.store.Put(req.Key, encode(req.Value)); err != nil {
			return nil, err
		}
		return &seqkv.WriteOk{}, nil

	case *seqkv.Cas:
		err := k.store.CompareAndSwap(req.Key, encode(req.From), encode(req.To))
		switch {
		case err == nil:
			return &seqkv.CasOk{}, nil
		case errors.Is(err, store.ErrNotFound):
			return seqkv.KeyDoesNotExist(req.Key), nil
		case errors.Is(err, store.ErrPreconditionFailed):
			actual, _ := k.value(req.Key)
			return seqkv.PreconditionFailed(req.Key, req.From, actual), nil
		default:
			return nil, err
		}

	default:
		return nil, errors.Errorf("store does not accept %s", p.Type())
	}
}

func (k *kvService) value(key string) (uint32, error) {
	val, err := k.store.Get(key)
	if err != nil {
		return 0, err
	}
	return decode(val), nil
}

func (k *kvService) close() error {
	return k.store.Close()
}

func encode(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func decode(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
