package domain

import (
	"context"
	"time"
)

// UserRepository handles the durable identity and presence of principals.
type UserRepository interface {
	GetProfile(ctx context.Context, id PrincipalID) (*Profile, error)
	UpdateStatus(ctx context.Context, id PrincipalID, status Status, lastSeen time.Time) error
}

// ChatRepository handles durable chat participation and per-participant counters.
type ChatRepository interface {
	ChatsForPrincipal(ctx context.Context, id PrincipalID) ([]RoomID, error)
	IsParticipant(ctx context.Context, id PrincipalID, roomID RoomID) (bool, error)
	ListParticipants(ctx context.Context, roomID RoomID) ([]PrincipalID, error)
	UpdateLastMessage(ctx context.Context, roomID RoomID, messageID MessageID) error
	IncrementUnread(ctx context.Context, roomID RoomID, id PrincipalID) error
	ResetUnread(ctx context.Context, roomID RoomID, id PrincipalID) error
}

// MessageRepository handles message persistence, receipts and reactions.
type MessageRepository interface {
	// PersistMessage stores the message and returns the durable id and canonical timestamp.
	PersistMessage(ctx context.Context, roomID RoomID, senderID PrincipalID, payload MessagePayload) (MessageID, time.Time, error)
	RoomOfMessage(ctx context.Context, messageID MessageID) (RoomID, error)
	MarkRead(ctx context.Context, messageID MessageID, id PrincipalID) error
	// AddReaction toggles the reaction and returns the resulting reaction list.
	AddReaction(ctx context.Context, messageID MessageID, id PrincipalID, emoji string) ([]Reaction, error)
}
