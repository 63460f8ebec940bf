package node

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/distnode/core/message"
)

type ping struct {
	DelayMs int `json:"delay_ms"`
}

func (ping) Type() string { return "ping" }

type pong struct {
	Tick int `json:"tick,omitempty"`
}

func (pong) Type() string { return "pong" }

type kvReadOk struct {
	Value int `json:"value"`
}

func (kvReadOk) Type() string { return "read_ok" }

type tick struct {
	to string
	n  int
}

// testProtocol answers ping with pong, or schedules a delayed pong when delay_ms is set.
type testProtocol struct {
	inits        int
	storeReplies []*message.Envelope
	fail         error
}

var testPayloads = message.NewRegistry(&ping{}, &pong{})
var testStorePayloads = message.NewRegistry(&kvReadOk{})

func (p *testProtocol) Payloads() *message.Registry { return testPayloads }

func (p *testProtocol) HandleMessage(out Outbox[tick], msg *message.Envelope) error {
	if p.fail != nil {
		return p.fail
	}
	req, ok := msg.Body.Payload.(*ping)
	if !ok {
		return Unexpected(msg.Body.Payload.Type(), msg.Src)
	}
	if req.DelayMs > 0 {
		out.Schedule(tick{to: msg.Src, n: 1}, time.Duration(req.DelayMs)*time.Millisecond)
		return nil
	}
	return out.Reply(msg, &pong{})
}

func (p *testProtocol) HandleTimer(out Outbox[tick], timer tick) error {
	_, err := out.Send(timer.to, &pong{Tick: timer.n})
	return err
}

func (p *testProtocol) StoreNode() string                { return "lin-kv" }
func (p *testProtocol) StorePayloads() *message.Registry { return testStorePayloads }

func (p *testProtocol) HandleStoreReply(out Outbox[tick], msg *message.Envelope) error {
	p.storeReplies = append(p.storeReplies, msg)
	return nil
}

func (p *testProtocol) OnInit(out Outbox[tick]) error {
	p.inits++
	return nil
}

type wireBody struct {
	Type      string  `json:"type"`
	MsgID     *uint64 `json:"msg_id"`
	InReplyTo *uint64 `json:"in_reply_to"`
	Tick      int     `json:"tick"`
}

type wireLine struct {
	Src  string   `json:"src"`
	Dest string   `json:"dest"`
	Body wireBody `json:"body"`
}

func parseOutput(t *testing.T, out string) []wireLine {
	t.Helper()
	var lines []wireLine
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var l wireLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l), "line %q", sc.Text())
		lines = append(lines, l)
	}
	return lines
}

const initLine = `{"src":"c0","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2","n3"]}}`

func runLines(t *testing.T, proto *testProtocol, lines ...string) (*Runtime[tick], []wireLine, error) {
	t.Helper()
	r := New[tick](proto)
	var out bytes.Buffer
	err := r.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out)
	return r, parseOutput(t, out.String()), err
}

func TestRun_Handshake(t *testing.T) {
	proto := &testProtocol{}
	r, out, err := runLines(t, proto, initLine)
	require.NoError(t, err)

	require.Equal(t, "n1", r.ID())
	require.Equal(t, []string{"n1", "n2", "n3"}, r.Peers())
	require.Equal(t, 1, proto.inits)

	require.Len(t, out, 1)
	require.Equal(t, "n1", out[0].Src)
	require.Equal(t, "c0", out[0].Dest)
	require.Equal(t, "init_ok", out[0].Body.Type)
	require.Equal(t, uint64(1), *out[0].Body.InReplyTo)
	require.Equal(t, uint64(1), *out[0].Body.MsgID)
}

func TestRun_HandshakeIdempotent(t *testing.T) {
	proto := &testProtocol{}
	r, out, err := runLines(t, proto, initLine, initLine)
	require.NoError(t, err)

	require.Equal(t, "n1", r.ID())
	require.Equal(t, []string{"n1", "n2", "n3"}, r.Peers())
	require.Equal(t, 1, proto.inits, "protocol init hook runs once")

	require.Len(t, out, 2)
	require.Equal(t, "init_ok", out[1].Body.Type)
	require.Equal(t, uint64(1), *out[1].Body.MsgID, "init restarts msg ids")
	require.Equal(t, uint64(1), *out[1].Body.InReplyTo)
}

func TestRun_HandshakeTwiceMatchesOnce(t *testing.T) {
	once, _, err := runLines(t, &testProtocol{}, initLine)
	require.NoError(t, err)
	twice, _, err := runLines(t, &testProtocol{}, initLine, initLine)
	require.NoError(t, err)

	require.Equal(t, once.ID(), twice.ID())
	require.Equal(t, once.Peers(), twice.Peers())
	require.Equal(t, once.nextID, twice.nextID)
}

func TestRun_PeersIsACopy(t *testing.T) {
	r, _, err := runLines(t, &testProtocol{}, initLine)
	require.NoError(t, err)

	peers := r.Peers()
	peers[0] = "mutated"
	require.Equal(t, "n1", r.Peers()[0])
}

func TestRun_MsgIDsIncrease(t *testing.T) {
	lines := []string{initLine}
	for i := 0; i < 5; i++ {
		lines = append(lines, `{"src":"c1","dest":"n1","body":{"type":"ping","msg_id":`+strconv.Itoa(i+1)+`}}`)
	}
	_, out, err := runLines(t, &testProtocol{}, lines...)
	require.NoError(t, err)
	require.Len(t, out, 6)

	var last uint64
	for i, l := range out {
		require.Greater(t, *l.Body.MsgID, last, "line %d", i)
		last = *l.Body.MsgID
	}
	for i, l := range out[1:] {
		require.Equal(t, "pong", l.Body.Type)
		require.Equal(t, uint64(i+1), *l.Body.InReplyTo)
	}
}

func TestRun_BeforeInit(t *testing.T) {
	_, out, err := runLines(t, &testProtocol{}, `{"src":"c1","dest":"n1","body":{"type":"ping","msg_id":1}}`)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotInitialized), err.Error())
	require.Empty(t, out)
}

func TestRun_MalformedInput(t *testing.T) {
	cases := map[string]string{
		"garbage":      `not json at all`,
		"unknown type": `{"src":"c1","dest":"n1","body":{"type":"generate","msg_id":2}}`,
		"wrong shape":  `{"src":"c1","dest":"n1","body":{"type":"ping","delay_ms":"soon"}}`,
		"init no id":   `{"src":"c0","dest":"n1","body":{"type":"init","msg_id":1,"node_ids":[]}}`,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := runLines(t, &testProtocol{}, initLine, line)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrDecode), err.Error())
		})
	}
}

func TestRun_HandlerErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := runLines(t, &testProtocol{fail: boom}, initLine,
		`{"src":"c1","dest":"n1","body":{"type":"ping","msg_id":2}}`,
		`{"src":"c1","dest":"n1","body":{"type":"ping","msg_id":3}}`)
	require.Error(t, err)
	require.True(t, errors.Is(err, boom))
	require.Contains(t, err.Error(), "handle ping from c1")
}

func TestRun_StoreRepliesRoutedBySource(t *testing.T) {
	proto := &testProtocol{}
	_, out, err := runLines(t, proto, initLine,
		`{"src":"lin-kv","dest":"n1","body":{"type":"read_ok","in_reply_to":4,"value":7}}`)
	require.NoError(t, err)
	require.Len(t, out, 1, "store reply produces no output")

	require.Len(t, proto.storeReplies, 1)
	reply := proto.storeReplies[0]
	require.Equal(t, uint64(4), *reply.Body.InReplyTo)
	require.Equal(t, &kvReadOk{Value: 7}, reply.Body.Payload)
}

func TestRun_StoreVariantFromPeerIsRejected(t *testing.T) {
	_, _, err := runLines(t, &testProtocol{}, initLine,
		`{"src":"n2","dest":"n1","body":{"type":"read_ok","value":7}}`)
	require.True(t, errors.Is(err, ErrDecode))
}

func TestRun_TimerFires(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	r := New[tick](&testProtocol{})
	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), inR, outW)
		outW.Close()
	}()

	outLines := make(chan wireLine, 16)
	go func() {
		sc := bufio.NewScanner(outR)
		for sc.Scan() {
			var l wireLine
			if json.Unmarshal(sc.Bytes(), &l) == nil {
				outLines <- l
			}
		}
		close(outLines)
	}()

	_, err := io.WriteString(inW, initLine+"\n")
	require.NoError(t, err)
	require.Equal(t, "init_ok", (<-outLines).Body.Type)

	start := time.Now()
	_, err = io.WriteString(inW, `{"src":"c1","dest":"n1","body":{"type":"ping","msg_id":2,"delay_ms":30}}`+"\n")
	require.NoError(t, err)

	select {
	case l := <-outLines:
		require.Equal(t, "pong", l.Body.Type)
		require.Equal(t, 1, l.Body.Tick)
		require.Equal(t, "c1", l.Dest)
		require.Nil(t, l.Body.InReplyTo)
		require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	// input keeps flowing while a timer is pending
	_, err = io.WriteString(inW, `{"src":"c1","dest":"n1","body":{"type":"ping","msg_id":3,"delay_ms":60000}}`+"\n")
	require.NoError(t, err)
	_, err = io.WriteString(inW, `{"src":"c1","dest":"n1","body":{"type":"ping","msg_id":4}}`+"\n")
	require.NoError(t, err)
	l := <-outLines
	require.Equal(t, uint64(4), *l.Body.InReplyTo)

	require.NoError(t, inW.Close())
	require.NoError(t, <-done)
}

func TestRun_ContextCancel(t *testing.T) {
	inR, inW := io.Pipe()
	defer inW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New[tick](&testProtocol{}).Run(ctx, inR, io.Discard) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRun_WriteFailureIsFatal(t *testing.T) {
	err := New[tick](&testProtocol{}).Run(context.Background(), strings.NewReader(initLine+"\n"), failingWriter{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrOutput), err.Error())
}

func TestSend_NotRunning(t *testing.T) {
	_, err := New[tick](&testProtocol{}).Send("n2", &pong{})
	require.True(t, errors.Is(err, ErrOutput))
}
