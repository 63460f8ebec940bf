package sim

import (
	"io"
	"sync"
)

// mailbox is an unbounded queue of input lines for one node, so routing never waits
// on a node that is busy writing its own output.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// put enqueues a line. Lines put after close are dropped.
func (m *mailbox) put(line []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.queue = append(m.queue, line)
	m.cond.Signal()
	return true
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// deliver writes queued lines to w until the mailbox is closed and drained, then closes w.
func (m *mailbox) deliver(w io.WriteCloser) {
	defer w.Close()

	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		line := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		buf := make([]byte, 0, len(line)+1)
		if _, err := w.Write(append(append(buf, line...), '\n')); err != nil {
			return
		}
	}
}
