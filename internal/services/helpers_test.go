package services

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vanpelt/livesync/internal/protocol"
)

type recorder struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recorder) messages(t *testing.T) []protocol.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]protocol.Message, 0, len(r.frames))
	for _, f := range r.frames {
		msg, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func (r *recorder) last(t *testing.T) protocol.Message {
	t.Helper()
	msgs := r.messages(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

// pipeConn feeds frames to a session and collects what it writes back
type pipeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return 1, data, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *pipeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	case c.out <- data:
		return nil
	}
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) send(t *testing.T, msgType protocol.MessageType, payload any) {
	t.Helper()
	frame, err := protocol.Encode(msgType, payload)
	require.NoError(t, err)
	c.in <- frame
}

func (c *pipeConn) expect(t *testing.T, msgType protocol.MessageType) protocol.Message {
	t.Helper()
	select {
	case frame := <-c.out:
		msg, err := protocol.Decode(frame)
		require.NoError(t, err)
		require.Equal(t, msgType, msg.Type, "frame: %s", frame)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", msgType)
		return protocol.Message{}
	}
}
