package contracts

import (
	"context"

	"pulse/internal/core/domain"
)

// Client represents the minimal interface required by the real-time core to
// communicate with an individual connection. Send must never block: a full or
// closed outbound buffer is reported as an error and the frame is dropped.
type Client interface {
	ID() domain.ConnectionID
	Send(ctx context.Context, data []byte) error
	Close()
}

// Subscriber pairs a live connection with the principal that owns it.
type Subscriber struct {
	PrincipalID domain.PrincipalID
	Client      Client
}

func (s Subscriber) ConnectionID() domain.ConnectionID {
	return s.Client.ID()
}

// Registry tracks live connections per principal. Only the lifecycle
// controller registers and unregisters connections.
type Registry interface {
	Register(principal domain.PrincipalID, profile domain.Profile, c Client) (first bool)
	Unregister(id domain.ConnectionID) (principal domain.PrincipalID, last bool)
	IsOnline(principal domain.PrincipalID) bool
	ListOnline() []domain.PrincipalID
	Snapshot() []domain.PresenceRecord
	SetStatus(principal domain.PrincipalID, status domain.Status) bool
	Status(principal domain.PrincipalID) domain.Status
	Touch(id domain.ConnectionID)
	ConnectionsOf(principal domain.PrincipalID) []Client
	Others(principal domain.PrincipalID) []Client
	Len() int
	CloseAll()
}

// RoomIndex holds the in-memory room subscriptions of live connections.
type RoomIndex interface {
	Join(ctx context.Context, roomID domain.RoomID, sub Subscriber) error
	Add(roomID domain.RoomID, sub Subscriber)
	Leave(roomID domain.RoomID, connID domain.ConnectionID)
	MembersOf(roomID domain.RoomID) []domain.ConnectionID
	Subscribers(roomID domain.RoomID) []Subscriber
	IsMember(roomID domain.RoomID, connID domain.ConnectionID) bool
	RemoveConnectionEverywhere(connID domain.ConnectionID) []domain.RoomID
}
