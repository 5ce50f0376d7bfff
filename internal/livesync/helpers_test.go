package livesync

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vanpelt/livesync/internal/protocol"
)

// recordingSubscriber captures frames in memory; failWith makes every Send fail
type recordingSubscriber struct {
	id string

	mu           sync.Mutex
	frames       [][]byte
	failWith     error
	disconnected error
}

func newRecorder(id string) *recordingSubscriber {
	return &recordingSubscriber{id: id}
}

func (r *recordingSubscriber) ID() string { return r.id }

func (r *recordingSubscriber) Send(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recordingSubscriber) Disconnect(reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = reason
}

func (r *recordingSubscriber) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

func (r *recordingSubscriber) Types(t *testing.T) []protocol.MessageType {
	var out []protocol.MessageType
	for _, f := range r.Frames() {
		msg, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, msg.Type)
	}
	return out
}

// fakeConn is an in-memory Conn. Frames pushed with deliver are returned by
// ReadMessage; frames written by the session land in out.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	writeErr  error
	closeRuns int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return textMessage, data, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	case c.out <- data:
		return nil
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closeRuns++
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(t *testing.T, msgType protocol.MessageType, payload any) {
	t.Helper()
	frame, err := protocol.Encode(msgType, payload)
	require.NoError(t, err)
	c.in <- frame
}

// expect waits for the next written frame and requires it to carry msgType
func (c *fakeConn) expect(t *testing.T, msgType protocol.MessageType) protocol.Message {
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

// expectNothing asserts no frame is written within a short grace period
func (c *fakeConn) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case frame := <-c.out:
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}
