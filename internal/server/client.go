// Package server manages individual WebSocket clients, handling read/write
// pumps, the join/message state machine, rate limiting, and lifecycle control
// for each connection.
package server

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client represents one WebSocket session in the chat system. It owns the
// connection, the outbound send queue, and the session's identity state:
// a session starts unauthenticated, gains exactly one identity on a valid
// join, and loses it when the session terminates.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string
	log  zerolog.Logger

	// closed is guarded by hub.mutex alongside the client map.
	closed bool

	// alive is lowered by the hub's liveness sweep and raised by the pong
	// handler on the read pump.
	alive atomic.Bool

	mu       sync.Mutex
	userID   string
	username string
	dead     bool

	rateLimiter *rateLimiter
}

// NewClient creates a Client for an accepted connection. The send channel is
// buffered so broadcasts to a briefly slow client do not block the hub; a
// client that lets the buffer fill is dropped.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxFrameBytes)
	}

	client := &Client{
		conn:        conn,
		send:        make(chan []byte, cfg.SendBuffer),
		hub:         hub,
		addr:        addr,
		log:         hub.log.With().Str("addr", addr).Logger(),
		rateLimiter: newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefillInterval),
	}
	client.alive.Store(true)
	return client
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// adoptIdentity assigns a fresh identity to the session and registers it in
// the store, atomically with respect to termination: a session that has
// already started terminating can no longer join, so the roster never retains
// an entry for a dead session. Returns false if the session is dead or
// already joined.
func (c *Client) adoptIdentity(username string) (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead || c.userID != "" {
		return User{}, false
	}

	user := c.hub.store.AddUser(uuid.NewString(), username)
	c.userID = user.ID
	c.username = user.Username
	return user, true
}

// releaseIdentity marks the session dead and surrenders its identity, if any.
// The identity is returned exactly once; subsequent calls report none held.
func (c *Client) releaseIdentity() (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dead = true
	if c.userID == "" {
		return User{}, false
	}

	user := User{ID: c.userID, Username: c.username}
	c.userID = ""
	c.username = ""
	return user, true
}

// identity returns the session's current identity, if joined.
func (c *Client) identity() (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID == "" {
		return User{}, false
	}
	return User{ID: c.userID, Username: c.username}, true
}

// setupReadConnection configures the read deadline and pong handler. The
// deadline spans two heartbeat intervals so a session that answers probes is
// never reaped by the transport first.
func (c *Client) setupReadConnection() {
	pongWait := 2*c.hub.cfg.PingInterval + c.hub.cfg.WriteTimeout

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// logReadError logs an appropriate message for the error that ended the read
// loop. Every read error terminates the session; the distinctions here only
// affect log noise.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.hub.cfg.MaxFrameBytes).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("client connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn().Err(err).Msg("unexpected WebSocket error")
	default:
		c.log.Warn().Err(err).Msg("WebSocket read error")
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the frame should be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn().
			Int("burst", c.hub.cfg.RateLimitBurst).
			Dur("refill_interval", c.hub.cfg.RateLimitRefillInterval).
			Msg("rate limit exceeded; discarding frame")
		return false
	}
	return true
}

// handleFrame decodes one inbound frame and dispatches it. Decode failures
// are logged and dropped; the connection stays open.
func (c *Client) handleFrame(raw []byte) {
	event, err := c.hub.codec.DecodeClientEvent(raw)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	switch event := event.(type) {
	case JoinEvent:
		c.handleJoin(event)
	case MessageEvent:
		c.handleMessage(event)
	}
}

// handleJoin completes the join handshake: assign an identity, send the init
// snapshot to this session only, and broadcast user_joined to everyone else.
// A repeat join on an already-joined session is ignored; identity
// reassignment is not supported.
func (c *Client) handleJoin(event JoinEvent) {
	user, ok := c.adoptIdentity(event.Username)
	if !ok {
		c.log.Debug().Str("username", event.Username).Msg("join ignored; session already joined or terminating")
		return
	}

	c.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user joined")

	initPayload, err := EncodeEvent(NewInitEvent(c.hub.store.History(), c.hub.store.Users(), user.ID))
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode init event")
		return
	}
	c.hub.safeSend(c, initPayload)

	joinedPayload, err := EncodeEvent(NewUserJoinedEvent(user))
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode user_joined event")
		return
	}
	c.broadcastToHub(BroadcastMessage{Sender: c, Payload: joinedPayload})
}

// handleMessage appends a validated message to the store and broadcasts it to
// all sessions, including the sender: the echo confirms receipt order. A
// message from a session that never joined is silently dropped.
func (c *Client) handleMessage(event MessageEvent) {
	user, joined := c.identity()
	if !joined {
		c.log.Debug().Msg("message before join ignored")
		return
	}

	msg := c.hub.store.AppendMessage(user.Username, event.Text)

	payload, err := EncodeEvent(NewMessageBroadcastEvent(msg))
	if err != nil {
		c.log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to encode message_broadcast event")
		return
	}
	c.broadcastToHub(BroadcastMessage{Payload: payload})
}

// broadcastToHub hands a payload to the hub's fan-out loop without blocking
// past hub shutdown.
func (c *Client) broadcastToHub(broadcastMsg BroadcastMessage) {
	select {
	case c.hub.broadcast <- broadcastMsg:
	case <-c.hub.ctx.Done():
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}

		if !c.checkRateLimit() {
			continue
		}

		c.handleFrame(rawMessage)
	}
}

func (c *Client) writePump() {
	defer c.closeConnection()

	for {
		message, ok := <-c.send

		if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout)); err != nil {
			c.log.Warn().Err(err).Msg("error setting write deadline")
			return
		}

		if !ok {
			c.writeCloseMessage()
			return
		}

		// One frame per event; clients parse each frame as a single JSON event.
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn().Err(err).Msg("error writing message")
			}
			return
		}
	}
}

// writeCloseMessage sends a close frame to the client before the connection
// is torn down.
func (c *Client) writeCloseMessage() {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing close message")
		}
	}
}

// closeConnection safely closes the WebSocket connection with proper error
// handling. Safe to call from any goroutine and more than once.
func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		// Only log unexpected connection close errors
		if !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("error closing connection")
		}
	}
}
