// Package server maintains the room's shared state: the bounded message
// history and the roster of online users, behind a single mutex.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Message is a chat message as stored and sent on the wire. Messages are
// immutable once created; the store is the only producer.
type Message struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// User identifies an online chat participant.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Store is the authoritative in-memory state shared by all sessions: a
// bounded FIFO history of messages and the set of online users. All methods
// are safe for concurrent use. History is kept in a ring buffer so eviction
// at the bound stays O(1).
type Store struct {
	mu      sync.RWMutex
	history []Message
	start   int
	count   int
	users   map[string]User
}

// NewStore creates a Store retaining at most historyLimit messages.
func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = 1
	}
	return &Store{
		history: make([]Message, historyLimit),
		users:   make(map[string]User),
	}
}

// AppendMessage constructs a Message with a fresh id and the current
// wall-clock timestamp (milliseconds), appends it to history, and evicts the
// oldest entry once the bound is exceeded.
func (s *Store) AppendMessage(username, text string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Username:  username,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	limit := len(s.history)
	if s.count < limit {
		s.history[(s.start+s.count)%limit] = msg
		s.count++
	} else {
		s.history[s.start] = msg
		s.start = (s.start + 1) % limit
	}

	return msg
}

// History returns a copy of the retained messages, oldest first. Mutating the
// returned slice never affects the store.
func (s *Store) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := len(s.history)
	out := make([]Message, 0, s.count)
	for i := 0; i < s.count; i++ {
		out = append(out, s.history[(s.start+i)%limit])
	}
	return out
}

// AddUser inserts a user into the roster. Ids are generated by the server, so
// a collision means the id generator is broken; that is a bug, not a
// recoverable condition, and the store refuses to mask it.
func (s *Store) AddUser(id, username string) User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[id]; exists {
		panic(fmt.Sprintf("store: duplicate user id %q; id generation invariant violated", id))
	}

	user := User{ID: id, Username: username}
	s.users[id] = user
	return user
}

// RemoveUser drops a user from the roster. Removing an absent id is a no-op,
// so the call is idempotent.
func (s *Store) RemoveUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// Users returns a copy of the online roster. Order is not significant.
func (s *Store) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Values(s.users)
}
