// Package server coordinates client registration, event broadcast, liveness
// sweeps, and connection cleanup for the Breakroom WebSocket system via the
// Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub manages all WebSocket client sessions for the single chat room. It owns
// the live session set, fans encoded events out to every open session, and
// runs the periodic liveness sweep that reaps half-open connections. All
// mutations of the session set are serialized through the Run loop; the map
// itself is additionally mutex-protected so senders can take consistent
// snapshots.
type Hub struct {
	cfg   Config
	store *Store
	codec *Codec
	log   zerolog.Logger

	clients    map[*Client]bool
	broadcast  chan BroadcastMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub bound to the given store and configuration. The
// returned Hub is ready to manage WebSocket connections once Run is started.
func NewHub(cfg Config, store *Store, log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		store:      store,
		codec:      NewCodec(cfg.MaxUsernameChars, cfg.MaxMessageChars),
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan BroadcastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// GetBroadcastChan returns the channel used for broadcasting encoded events to
// registered clients. This channel is write-only from the caller's perspective.
func (h *Hub) GetBroadcastChan() chan<- BroadcastMessage {
	return h.broadcast
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, broadcast fan-out, and the heartbeat sweep. This method
// should be called in a separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	heartbeat := time.NewTicker(h.cfg.PingInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn().Msg("received nil client registration; skipping")
				continue
			}
			h.registerClient(client)

		case client := <-h.unregister:
			h.dropClient(client, "disconnected")

		case broadcastMsg := <-h.broadcast:
			h.handleBroadcast(broadcastMsg)

		case <-heartbeat.C:
			h.sweep()
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.log.Info().Str("addr", client.addr).Int("clients", clientCount).Msg("client registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// dropClient removes a client from the session set, closes its send channel,
// and announces the departure when the client held an identity. Membership in
// the client map guards against double-drop, so user_left is emitted at most
// once per session no matter how many close signals arrive.
func (h *Hub) dropClient(client *Client, reason string) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	h.log.Info().Str("addr", client.addr).Str("reason", reason).Int("clients", clientCount).Msg("client unregistered")

	h.announceLeave(client)
}

// announceLeave removes the client's identity from the store and broadcasts
// user_left to the remaining sessions. Identity release is one-shot, so a
// duplicate close signal produces no second broadcast.
func (h *Hub) announceLeave(client *Client) {
	user, held := client.releaseIdentity()
	if !held {
		return
	}

	h.store.RemoveUser(user.ID)
	h.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user left")

	payload, err := EncodeEvent(NewUserLeftEvent(user))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to encode user_left event")
		return
	}
	h.handleBroadcast(BroadcastMessage{Payload: payload})
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("recovered from panic in safeSend")
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Check if client is still registered and not closed
	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	// Try to send the message (channel might be closed, so we need to recover from panic)
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// handleBroadcast delivers an encoded payload to every registered client
// except the sender. A recipient whose send buffer is full is dropped so one
// slow session never blocks delivery to the others.
func (h *Hub) handleBroadcast(broadcastMsg BroadcastMessage) {
	clients := h.getClientSnapshot()

	var clientsToRemove []*Client
	for _, client := range clients {
		if broadcastMsg.Sender != nil && client == broadcastMsg.Sender {
			continue
		}
		if !h.safeSend(client, broadcastMsg.Payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	for _, client := range clientsToRemove {
		h.dropClient(client, "send buffer full")
	}
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// sweep runs one heartbeat round: sessions that never answered the previous
// probe are forcibly closed (their read pump then takes the normal terminate
// path, emitting user_left), everyone else is marked unconfirmed and probed
// again. Detects half-open connections the transport would hold forever.
func (h *Hub) sweep() {
	deadline := time.Now().Add(h.cfg.WriteTimeout)

	for _, client := range h.getClientSnapshot() {
		if !client.alive.Load() {
			h.log.Warn().Str("addr", client.addr).Msg("client failed liveness probe; terminating")
			client.closeConnection()
			continue
		}

		client.alive.Store(false)
		if err := client.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			if !isExpectedCloseError(err) {
				h.log.Warn().Err(err).Str("addr", client.addr).Msg("liveness probe failed; terminating")
			}
			client.closeConnection()
		}
	}
}

// shutdownClients gracefully closes all active client connections. Send
// channels are closed here so the write pumps drain out; the read pumps exit
// once their connections close.
func (h *Hub) shutdownClients() {
	h.log.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		client.closed = true
		delete(h.clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		client.closeConnection()
	}

	h.log.Info().Int("clients", len(clients)).Msg("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete. It returns after all client connections are closed and
// goroutines have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	// Signal shutdown
	h.cancel()

	// Wait for Run() to complete
	<-h.done

	// Wait for all client goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
