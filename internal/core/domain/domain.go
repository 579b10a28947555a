package domain

import (
	"sync"
	"time"
)

type (
	PrincipalID  string
	RoomID       string
	ConnectionID string
	MessageID    string
)

// Status is a principal's presence status as seen by others.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Settable reports whether a client may select the status explicitly.
// Offline is derived from the connection set and never set by a client.
func (s Status) Settable() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy:
		return true
	}
	return false
}

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
	KindVoice MessageKind = "voice"
	KindVideo MessageKind = "video"
)

// Profile holds the public fields of a principal attached to outgoing events.
type Profile struct {
	ID       PrincipalID `json:"id"`
	Username string      `json:"username"`
	Avatar   string      `json:"avatar,omitempty"`
}

// Attachment describes a file uploaded out of band and referenced by a message.
type Attachment struct {
	URL       string `json:"url" validate:"required,url"`
	Name      string `json:"name,omitempty" validate:"max=255"`
	Size      int64  `json:"size,omitempty" validate:"gte=0"`
	Thumbnail string `json:"thumbnail,omitempty" validate:"omitempty,url"`
}

// MessagePayload is the outbound message as requested by a client.
type MessagePayload struct {
	RoomID     RoomID      `json:"roomId" validate:"required"`
	Content    string      `json:"content"`
	Kind       MessageKind `json:"kind" validate:"oneof=text image file voice video"`
	ReplyTo    *MessageID  `json:"replyTo,omitempty" validate:"omitempty,uuid"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Message is a persisted chat entry. ID and CreatedAt are assigned by the store.
type Message struct {
	ID         MessageID
	RoomID     RoomID
	SenderID   PrincipalID
	Content    string
	Kind       MessageKind
	ReplyTo    *MessageID
	Attachment *Attachment
	CreatedAt  time.Time
}

type Reaction struct {
	PrincipalID PrincipalID `json:"principalId"`
	Emoji       string      `json:"emoji"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// PresenceRecord exists for every principal with at least one live connection.
type PresenceRecord struct {
	PrincipalID PrincipalID
	Profile     Profile
	Connections map[ConnectionID]struct{}
	Status      Status
	LastSeen    time.Time
}

// ConnState is the lifecycle state of one connection.
type ConnState string

const (
	StateConnecting    ConnState = "connecting"
	StateAuthenticated ConnState = "authenticated"
	StateActive        ConnState = "active"
	StateDisconnected  ConnState = "disconnected"
)

// Session is the server-side record of one connection. It bridges the
// transport-level connection and the authenticated principal.
type Session struct {
	ConnectionID ConnectionID
	CreatedAt    time.Time

	mu           sync.RWMutex
	principal    PrincipalID
	profile      Profile
	state        ConnState
	lastActivity time.Time
}

func NewSession(connID ConnectionID) *Session {
	now := time.Now()
	return &Session{
		ConnectionID: connID,
		CreatedAt:    now,
		state:        StateConnecting,
		lastActivity: now,
	}
}

// Authenticate moves the session to Authenticated. It is only valid from Connecting.
func (s *Session) Authenticate(principal PrincipalID, profile Profile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return false
	}
	s.principal = principal
	s.profile = profile
	s.state = StateAuthenticated
	return true
}

// Activate moves the session to Active. It is only valid from Authenticated.
func (s *Session) Activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return false
	}
	s.state = StateActive
	return true
}

// Disconnect moves the session to the terminal state and returns the previous one.
func (s *Session) Disconnect() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = StateDisconnected
	return prev
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) State() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) PrincipalID() PrincipalID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal
}

func (s *Session) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}
