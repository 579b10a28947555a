package domain

import (
	"encoding/json"
	"time"
)

// Client -> server events.
const (
	EventChatJoin     = "chat:join"
	EventChatLeave    = "chat:leave"
	EventMessageSend  = "message:send"
	EventTypingStart  = "typing:start"
	EventTypingStop   = "typing:stop"
	EventMessageReact = "message:react"
	EventMessageRead  = "message:read"
	EventUserStatus   = "user:status"
)

// Server -> client events.
const (
	EventChatJoined        = "chat:joined"
	EventChatLeft          = "chat:left"
	EventMessageReceived   = "message:received"
	EventMessageSent       = "message:sent"
	EventTypingStarted     = "typing:started"
	EventTypingStopped     = "typing:stopped"
	EventMessageReaction   = "message:reaction"
	EventMessageReadNotice = "message:read"
	EventStatusUpdated     = "user:status:updated"
	EventUserOnline        = "user:online"
	EventUserOffline       = "user:offline"
	EventUsersOnline       = "users:online"
	EventError             = "error"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes data and wraps it with the event name.
func NewEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Inbound payloads.

type RoomRequest struct {
	RoomID RoomID `json:"roomId" validate:"required"`
}

type SendRequest struct {
	MessagePayload
	ClientMsgID string `json:"clientMsgId,omitempty" validate:"max=128"`
}

type ReactRequest struct {
	MessageID MessageID `json:"messageId" validate:"required"`
	Emoji     string    `json:"emoji" validate:"required,max=32"`
}

type ReadRequest struct {
	MessageID MessageID `json:"messageId" validate:"required"`
}

type StatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// Outbound payloads.

type RoomEvent struct {
	RoomID RoomID `json:"roomId"`
}

// ChatMessage is broadcast to room subscribers.
type ChatMessage struct {
	MessageID  MessageID   `json:"messageId"`
	RoomID     RoomID      `json:"roomId"`
	Sender     Profile     `json:"sender"`
	Content    string      `json:"content"`
	Kind       MessageKind `json:"kind"`
	ReplyTo    *MessageID  `json:"replyTo,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Status     string      `json:"status"`
}

// AckMessage is sent only to the originating connection of a send.
type AckMessage struct {
	ClientMsgID string    `json:"clientMsgId,omitempty"`
	MessageID   MessageID `json:"messageId"`
	RoomID      RoomID    `json:"roomId"`
	Timestamp   time.Time `json:"timestamp"`
}

type TypingEvent struct {
	RoomID      RoomID      `json:"roomId"`
	PrincipalID PrincipalID `json:"principalId"`
	Username    string      `json:"username,omitempty"`
}

type ReactionEvent struct {
	MessageID MessageID  `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

type ReadEvent struct {
	MessageID MessageID   `json:"messageId"`
	ReaderID  PrincipalID `json:"readerId"`
}

type StatusEvent struct {
	PrincipalID PrincipalID `json:"principalId"`
	Status      Status      `json:"status"`
}

// PresenceEvent announces a principal going online or offline.
type PresenceEvent struct {
	PrincipalID PrincipalID `json:"principalId"`
	Username    string      `json:"username,omitempty"`
	Avatar      string      `json:"avatar,omitempty"`
}

type OnlineUser struct {
	PrincipalID PrincipalID `json:"principalId"`
	Username    string      `json:"username"`
	Avatar      string      `json:"avatar,omitempty"`
	Status      Status      `json:"status"`
}

// ErrorMessage is a WS-safe error surfaced only to the originating connection.
type ErrorMessage struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Event       string `json:"event,omitempty"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}
