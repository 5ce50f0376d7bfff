// Package client is the Go side of the live session channel: a websocket
// client plus the local views that consume what the server pushes.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vanpelt/livesync/internal/logger"
	"github.com/vanpelt/livesync/internal/protocol"
)

// ErrNotConnected is returned by Send before Connect or after Close
var ErrNotConnected = errors.New("not connected")

// Options configure how a Client authenticates
type Options struct {
	// Token is sent as a bearer token when set
	Token string
	// Editor is the identity to claim on servers running without auth
	Editor string
}

// Client is one websocket connection to a livesync channel
type Client struct {
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	onMessage func(protocol.Message)
	onError   func(error)
	done      chan struct{}
}

func New(opts Options) *Client {
	return &Client{
		opts: opts,
		done: make(chan struct{}),
	}
}

// StatusPath is the status channel endpoint of a node
func StatusPath(nodeID string) string {
	return "/v1/nodes/" + url.PathEscape(nodeID) + "/ws"
}

// EditingPath is the editing channel endpoint of a version
func EditingPath(versionID string) string {
	return "/v1/versions/" + url.PathEscape(versionID) + "/ws"
}

// Connect dials baseURL+path and starts reading. Handlers must be set before.
func (c *Client) Connect(ctx context.Context, baseURL, path string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	ref, err := url.Parse(path)
	if err != nil {
		return err
	}
	u.Path, u.RawPath = ref.Path, ref.RawPath
	q := u.Query()
	if c.opts.Editor != "" {
		q.Set("editor", c.opts.Editor)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s: %s: %w", path, resp.Status, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	c.conn = conn

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if c.onError != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.onError(err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			logger.Debugf("ignoring malformed frame from server: %v", err)
			continue
		}
		if msg.IsUnknown() {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

// Send encodes and writes one envelope
func (c *Client) Send(t protocol.MessageType, payload any) error {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Watch asks the server to subscribe this connection to a resource
func (c *Client) Watch(req protocol.WatchRequestPayload) error {
	return c.Send(protocol.TypeWatchRequest, req)
}

// Close sends a normal close frame and drops the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) SetMessageHandler(handler func(protocol.Message)) {
	c.onMessage = handler
}

func (c *Client) SetErrorHandler(handler func(error)) {
	c.onError = handler
}

// Done is closed once the read loop exits
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Wait() {
	<-c.done
}
