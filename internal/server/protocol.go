// Package server defines the wire protocol: the tagged event shapes exchanged
// with clients and the codec that decodes and validates inbound frames.
package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EventType discriminates the wire event variants.
type EventType string

const (
	EventJoin             EventType = "join"
	EventMessage          EventType = "message"
	EventUserJoined       EventType = "user_joined"
	EventUserLeft         EventType = "user_left"
	EventMessageBroadcast EventType = "message_broadcast"
	EventInit             EventType = "init"
)

// ClientEvent is the closed set of events a client may send. The unexported
// marker keeps the set sealed so dispatch switches stay exhaustive.
type ClientEvent interface {
	clientEvent()
}

// JoinEvent announces a display name and requests an identity.
type JoinEvent struct {
	Type     EventType `json:"type"`
	Username string    `json:"username"`
}

func (JoinEvent) clientEvent() {}

// MessageEvent carries one chat message from a joined client.
type MessageEvent struct {
	Type EventType `json:"type"`
	Text string    `json:"text"`
}

func (MessageEvent) clientEvent() {}

// UserJoinedEvent is broadcast to existing sessions when a join completes.
type UserJoinedEvent struct {
	Type     EventType `json:"type"`
	Username string    `json:"username"`
	UserID   string    `json:"userId"`
}

// UserLeftEvent is broadcast when a session holding an identity terminates.
type UserLeftEvent struct {
	Type     EventType `json:"type"`
	Username string    `json:"username"`
	UserID   string    `json:"userId"`
}

// MessageBroadcastEvent carries an accepted message to every session,
// including the sender.
type MessageBroadcastEvent struct {
	Type    EventType `json:"type"`
	Message Message   `json:"message"`
}

// InitEvent is sent once to a freshly joined client and never broadcast. It
// carries the history snapshot, the online roster, and the assigned id.
type InitEvent struct {
	Type        EventType `json:"type"`
	Messages    []Message `json:"messages"`
	OnlineUsers []User    `json:"onlineUsers"`
	UserID      string    `json:"userId"`
}

// NewUserJoinedEvent builds a user_joined broadcast payload.
func NewUserJoinedEvent(user User) UserJoinedEvent {
	return UserJoinedEvent{Type: EventUserJoined, Username: user.Username, UserID: user.ID}
}

// NewUserLeftEvent builds a user_left broadcast payload.
func NewUserLeftEvent(user User) UserLeftEvent {
	return UserLeftEvent{Type: EventUserLeft, Username: user.Username, UserID: user.ID}
}

// NewMessageBroadcastEvent builds a message_broadcast payload.
func NewMessageBroadcastEvent(msg Message) MessageBroadcastEvent {
	return MessageBroadcastEvent{Type: EventMessageBroadcast, Message: msg}
}

// NewInitEvent builds the init payload for a newly joined client.
func NewInitEvent(messages []Message, users []User, userID string) InitEvent {
	return InitEvent{Type: EventInit, Messages: messages, OnlineUsers: users, UserID: userID}
}

// EncodeEvent serializes an event to its wire form.
func EncodeEvent(event any) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return payload, nil
}

// Codec decodes and validates client frames. Decode failures are reported to
// the caller, which drops the frame; a malformed frame never terminates the
// connection.
type Codec struct {
	validate     *validator.Validate
	usernameRule string
	textRule     string
}

// NewCodec builds a Codec enforcing the configured username and message
// length bounds (counted in characters, after trimming).
func NewCodec(maxUsernameChars, maxMessageChars int) *Codec {
	return &Codec{
		validate:     validator.New(),
		usernameRule: fmt.Sprintf("required,min=1,max=%d", maxUsernameChars),
		textRule:     fmt.Sprintf("required,min=1,max=%d", maxMessageChars),
	}
}

// DecodeClientEvent parses one inbound frame into a typed event. Unknown
// types, malformed JSON, and out-of-bounds fields all fail closed with an
// error. Server-to-client event types are unknown here: clients cannot inject
// them.
func (c *Codec) DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch envelope.Type {
	case EventJoin:
		var event JoinEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("decode join: %w", err)
		}
		event.Username = strings.TrimSpace(event.Username)
		if err := c.validate.Var(event.Username, c.usernameRule); err != nil {
			return nil, fmt.Errorf("invalid username: %w", err)
		}
		return event, nil

	case EventMessage:
		var event MessageEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		event.Text = strings.TrimSpace(event.Text)
		if err := c.validate.Var(event.Text, c.textRule); err != nil {
			return nil, fmt.Errorf("invalid message text: %w", err)
		}
		return event, nil

	default:
		return nil, fmt.Errorf("unknown client event type %q", envelope.Type)
	}
}
