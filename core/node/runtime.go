// Package node is the generic engine every protocol runs on.
//
// A Runtime owns the node identity, the outgoing msg_id counter, the timer queue and the
// single output channel. Run multiplexes input lines with timer expiries on one goroutine
// and hands both to the protocol, so protocol state needs no locking.
package node

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/distnode/core/message"
	"github.com/vadiminshakov/distnode/core/timerq"
	"github.com/vadiminshakov/distnode/io/metrics"
)

const maxLineSize = 16 << 20

type Runtime[T any] struct {
	proto       Protocol[T]
	id          string
	peers       []string
	nextID      uint64
	initialized bool
	timers      *timerq.Queue[T]
	out         *bufio.Writer
}

func New[T any](proto Protocol[T]) *Runtime[T] {
	return &Runtime[T]{
		proto:  proto,
		nextID: 1,
		timers: timerq.New[T](),
	}
}

func (r *Runtime[T]) ID() string {
	return r.id
}

func (r *Runtime[T]) Peers() []string {
	return append([]string(nil), r.peers...)
}

// Send implements Outbox.
func (r *Runtime[T]) Send(dst string, payload message.Payload) (uint64, error) {
	return r.send(dst, nil, payload)
}

// Reply implements Outbox.
func (r *Runtime[T]) Reply(req *message.Envelope, payload message.Payload) error {
	_, err := r.send(req.Src, req.Body.MsgID, payload)
	return err
}

// Schedule implements Outbox. Firing precision is best effort.
func (r *Runtime[T]) Schedule(payload T, delay time.Duration) {
	r.timers.Push(payload, time.Now().Add(delay))
}

func (r *Runtime[T]) send(dst string, replyTo *uint64, payload message.Payload) (uint64, error) {
	if r.out == nil {
		return 0, errors.Wrap(ErrOutput, "runtime is not running")
	}

	id := r.nextID
	r.nextID++

	line, err := message.Encode(&message.Envelope{
		Src:  r.id,
		Dest: dst,
		Body: message.Body{MsgID: &id, InReplyTo: replyTo, Payload: payload},
	})
	if err != nil {
		return 0, errors.Wrapf(err, "encode %s to %s", payload.Type(), dst)
	}

	line = append(line, '\n')
	if _, err := r.out.Write(line); err != nil {
		return 0, errors.Wrap(ErrOutput, err.Error())
	}
	if err := r.out.Flush(); err != nil {
		return 0, errors.Wrap(ErrOutput, err.Error())
	}

	metrics.MessagesSent.WithLabelValues(payload.Type()).Inc()
	return id, nil
}

type inbound struct {
	line []byte
	err  error
}

// feed decouples waiting for a line from waiting for a timer. It never touches protocol state.
func feed(ctx context.Context, in io.Reader, lines chan<- inbound) {
	defer close(lines)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64<<10), maxLineSize)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		line := append([]byte(nil), sc.Bytes()...)
		select {
		case lines <- inbound{line: line}:
		case <-ctx.Done():
			return
		}
	}

	if err := sc.Err(); err != nil {
		select {
		case lines <- inbound{err: err}:
		case <-ctx.Done():
		}
	}
}

// Run drives the event loop until the input ends (nil), ctx is done, or a fatal error occurs.
func (r *Runtime[T]) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	r.out = bufio.NewWriter(out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan inbound)
	go feed(ctx, in, lines)

	wake := time.NewTimer(time.Hour)
	wake.Stop()
	defer wake.Stop()

	for {
		if e, ok := r.timers.PopExpired(time.Now()); ok {
			if err := r.fire(e.Payload); err != nil {
				return err
			}
			continue
		}

		var wakeC <-chan time.Time
		if next, ok := r.timers.Peek(); ok {
			wake.Reset(time.Until(next.ExpiresAt))
			wakeC = wake.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wakeC:
		case next, ok := <-lines:
			wake.Stop()
			if !ok {
				log.WithField("node", r.id).Info("input closed, stopping")
				return nil
			}
			if next.err != nil {
				return errors.Wrap(next.err, "read input")
			}
			if err := r.handle(next.line); err != nil {
				return err
			}
		}
	}
}

func (r *Runtime[T]) fire(payload T) error {
	metrics.TimersFired.Inc()
	if err := r.proto.HandleTimer(r, payload); err != nil {
		return errors.Wrap(err, "handle timer")
	}
	return nil
}

func (r *Runtime[T]) handle(line []byte) error {
	raw, err := message.Parse(line)
	if err != nil {
		return errors.Wrapf(ErrDecode, "%v: %s", err, line)
	}
	metrics.MessagesReceived.WithLabelValues(raw.Type).Inc()

	log.WithFields(log.Fields{"node": r.id, "src": raw.Src, "type": raw.Type}).Debug("received")

	if raw.Type == TypeInit {
		return r.handleInit(raw)
	}
	if !r.initialized {
		return errors.Wrapf(ErrNotInitialized, "%s from %s", raw.Type, raw.Src)
	}

	if sc, ok := r.proto.(StoreClient[T]); ok && raw.Src == sc.StoreNode() {
		env, err := raw.Decode(sc.StorePayloads())
		if err != nil {
			return errors.Wrap(ErrDecode, err.Error())
		}
		return errors.Wrapf(sc.HandleStoreReply(r, env), "handle store %s", raw.Type)
	}

	env, err := raw.Decode(r.proto.Payloads())
	if err != nil {
		return errors.Wrap(ErrDecode, err.Error())
	}
	return errors.Wrapf(r.proto.HandleMessage(r, env), "handle %s from %s", raw.Type, raw.Src)
}

// handleInit applies the handshake. A repeated init re-applies the same assignment and
// restarts msg ids, so one init and two leave the node in the same state.
func (r *Runtime[T]) handleInit(raw *message.Raw) error {
	env, err := raw.Decode(handshake)
	if err != nil {
		return errors.Wrap(ErrDecode, err.Error())
	}
	hello := env.Body.Payload.(*Init)
	if hello.NodeID == "" {
		return errors.Wrap(ErrDecode, "init without node_id")
	}

	r.id = hello.NodeID
	r.peers = append([]string(nil), hello.NodeIDs...)
	r.nextID = 1
	first := !r.initialized
	r.initialized = true

	log.WithFields(log.Fields{"node": r.id, "peers": r.peers}).Info("node initialized")

	if err := r.Reply(env, &InitOk{}); err != nil {
		return err
	}

	if first {
		if i, ok := r.proto.(Initializer[T]); ok {
			return errors.Wrap(i.OnInit(r), "init protocol")
		}
	}
	return nil
}
