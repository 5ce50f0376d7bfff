package livesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vanpelt/livesync/internal/logger"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/protocol"
	"github.com/vanpelt/livesync/internal/recovery"
)

// textMessage is the RFC 6455 opcode for text frames, shared by every
// websocket implementation we hand to a Session
const textMessage = 1

// Conn is the duplex transport a Session runs over. Both the server-side
// fiber websocket and the gorilla client connection satisfy it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// State is the lifecycle state of a Session
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// HandlerFunc handles one decoded inbound envelope. A returned error is sent
// back to the client as an error envelope; it never closes the session.
type HandlerFunc func(ctx context.Context, s *Session, msg protocol.Message) error

// Handlers is the dispatch table of a session, built once per connection
type Handlers map[protocol.MessageType]HandlerFunc

// SessionConfig describes a new session
type SessionConfig struct {
	ID        string
	Identity  models.Editor
	Registry  *Registry
	Presence  *PresenceTracker
	Handlers  Handlers
	QueueSize int
	OnClose   func(*Session)
}

// Session wraps one duplex connection watching at most one resource
type Session struct {
	id        string
	identity  models.Editor
	conn      Conn
	registry  *Registry
	presence  *PresenceTracker
	handlers  Handlers
	onClose   func(*Session)
	createdAt time.Time
	log       zerolog.Logger

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	// presenceMu serializes presence changes with Close so a join racing
	// the close cannot outlive the session. Taken before mu.
	presenceMu sync.Mutex

	mu       sync.Mutex
	state    State
	watching string
	editing  bool
}

// NewSession creates a session in the CONNECTING state
func NewSession(conn Conn, cfg SessionConfig) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	handlers := make(Handlers, len(cfg.Handlers)+1)
	handlers[protocol.TypePing] = handlePing
	for t, h := range cfg.Handlers {
		handlers[t] = h
	}

	return &Session{
		id:        cfg.ID,
		identity:  cfg.Identity,
		conn:      conn,
		registry:  cfg.Registry,
		presence:  cfg.Presence,
		handlers:  handlers,
		onClose:   cfg.OnClose,
		createdAt: time.Now(),
		log: logger.WithFields(map[string]interface{}{
			"session": cfg.ID,
			"editor":  cfg.Identity.ID,
		}),
		outbound: make(chan []byte, cfg.QueueSize),
		done:     make(chan struct{}),
		state:    StateConnecting,
	}
}

// ID implements Subscriber
func (s *Session) ID() string { return s.id }

// Identity returns the authenticated editor attached to the connection
func (s *Session) Identity() models.Editor { return s.identity }

// Registry returns the registry this session subscribes through
func (s *Session) Registry() *Registry { return s.registry }

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Watching returns the resource currently watched, or ""
func (s *Session) Watching() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watching
}

// Done is closed when the session reaches CLOSED
func (s *Session) Done() <-chan struct{} { return s.done }

// Run processes inbound frames in order until the transport closes or ctx is
// cancelled. Cleanup runs on every exit path.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateOpen
	s.mu.Unlock()

	defer s.Close()
	defer recovery.Recover("session-" + s.id)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recovery.SafeGo("session-writer-"+s.id, s.writeLoop)
	recovery.SafeGo("session-cancel-"+s.id, func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	})

	s.log.Debug().Msg("session open")

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// Any read failure means the transport is gone; that is the
			// normal end of a session, not an error to surface
			s.log.Debug().Err(err).Msg("transport closed")
			return nil
		}
		s.dispatch(ctx, data)
	}
}

func (s *Session) dispatch(ctx context.Context, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("ignoring malformed envelope")
		return
	}
	if msg.IsUnknown() {
		s.log.Debug().Str("type", string(msg.Type)).Msg("ignoring unknown envelope type")
		return
	}

	handler, ok := s.handlers[msg.Type]
	if !ok {
		s.log.Debug().Str("type", string(msg.Type)).Msg("no handler on this channel")
		return
	}

	if err := handler(ctx, s, msg); err != nil {
		s.ReplyError(err)
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case frame := <-s.outbound:
			if err := s.conn.WriteMessage(textMessage, frame); err != nil {
				s.Disconnect(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// Send queues a frame for delivery without blocking
func (s *Session) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.outbound <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return fmt.Errorf("%w: outbound queue full", ErrDeliveryFailure)
	}
}

// Reply encodes and sends a typed payload to this session only
func (s *Session) Reply(t protocol.MessageType, payload any) error {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	return s.Send(frame)
}

// ReplyError maps err onto an error envelope for this session
func (s *Session) ReplyError(err error) {
	if errors.Is(err, ErrSessionClosed) {
		return
	}

	code := protocol.CodeInternal
	switch {
	case errors.Is(err, ErrUnknownResource):
		code = protocol.CodeUnknownResource
	case errors.Is(err, ErrBadRequest):
		code = protocol.CodeBadRequest
	}
	if code == protocol.CodeInternal {
		s.log.Error().Err(err).Msg("handler failed")
	} else {
		s.log.Debug().Err(err).Str("code", code).Msg("rejecting request")
	}

	if sendErr := s.Send(protocol.NewError(code, err.Error(), s.Watching())); sendErr != nil {
		s.log.Debug().Err(sendErr).Msg("could not deliver error envelope")
	}
}

// Watch subscribes the session to resourceID, replacing any previous watch
func (s *Session) Watch(ctx context.Context, resourceID string) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prev := s.watching
	s.mu.Unlock()

	if prev == resourceID {
		return nil
	}
	if prev != "" {
		s.Unwatch()
	}

	if err := s.registry.Subscribe(ctx, resourceID, s); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		s.registry.Unsubscribe(resourceID, s)
		return ErrSessionClosed
	}
	s.watching = resourceID
	s.mu.Unlock()

	if s.presence != nil {
		_ = s.presence.SendFrame(resourceID, s)
	}
	return nil
}

// Unwatch drops the current subscription and any presence held on it
func (s *Session) Unwatch() {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	s.mu.Lock()
	resourceID, editing := s.watching, s.editing
	s.watching, s.editing = "", false
	s.mu.Unlock()

	if resourceID == "" {
		return
	}
	s.registry.Unsubscribe(resourceID, s)
	if editing && s.presence != nil {
		s.presence.Leave(resourceID, s.identity.ID, s.id)
	}
}

// JoinPresence marks this session's editor as editing the watched resource
func (s *Session) JoinPresence() error {
	if s.presence == nil {
		return fmt.Errorf("%w: presence is not tracked on this channel", ErrBadRequest)
	}

	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	resourceID := s.watching
	if resourceID == "" {
		s.mu.Unlock()
		return fmt.Errorf("%w: watch a resource before joining", ErrBadRequest)
	}
	s.editing = true
	s.mu.Unlock()

	s.presence.Join(resourceID, s.identity, s.id)
	return nil
}

// LeavePresence removes this session's editor from the watched resource
func (s *Session) LeavePresence() error {
	if s.presence == nil {
		return fmt.Errorf("%w: presence is not tracked on this channel", ErrBadRequest)
	}

	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	s.mu.Lock()
	resourceID, editing := s.watching, s.editing
	s.editing = false
	s.mu.Unlock()

	if resourceID != "" && editing {
		s.presence.Leave(resourceID, s.identity.ID, s.id)
	}
	return nil
}

// Disconnect implements Disconnecter. Teardown runs on its own goroutine so
// it is safe to call while a registry or presence lock is held.
func (s *Session) Disconnect(reason error) {
	s.log.Debug().Err(reason).Msg("disconnecting session")
	recovery.SafeGo("session-disconnect-"+s.id, func() { _ = s.Close() })
}

// Close moves the session to CLOSED and removes it from the registry and
// presence sets. It is idempotent and safe from any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.presenceMu.Lock()
		s.mu.Lock()
		s.state = StateClosed
		resourceID, editing := s.watching, s.editing
		s.watching, s.editing = "", false
		s.mu.Unlock()

		close(s.done)

		if resourceID != "" {
			s.registry.Unsubscribe(resourceID, s)
			if editing && s.presence != nil {
				s.presence.Leave(resourceID, s.identity.ID, s.id)
			}
		}
		s.presenceMu.Unlock()

		s.closeErr = s.conn.Close()
		s.log.Debug().Dur("lifetime", time.Since(s.createdAt)).Msg("session closed")

		if s.onClose != nil {
			s.onClose(s)
		}
	})
	return s.closeErr
}

func handlePing(_ context.Context, s *Session, _ protocol.Message) error {
	return s.Reply(protocol.TypePong, protocol.PingPayload{})
}
