package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pulse/internal/app/typing"
	"pulse/internal/core/contracts"
	"pulse/internal/core/domain"
	"pulse/internal/platform/metrics"
	"pulse/pkg/logging"
)

// TypingService broadcasts typing indicators to the other principals in a room.
type TypingService struct {
	log     *slog.Logger
	rooms   contracts.RoomIndex
	fanout  *Fanout
	metrics *metrics.Metrics
	table   *typing.Table
}

func NewTypingService(
	log *slog.Logger,
	rooms contracts.RoomIndex,
	fanout *Fanout,
	m *metrics.Metrics,
	ttl time.Duration,
) *TypingService {
	s := &TypingService{log: log, rooms: rooms, fanout: fanout, metrics: m}
	s.table = typing.NewTable(ttl, s.expired)
	return s
}

// Start creates or refreshes the typing entry of the session's principal.
// Every start is broadcast so that members who joined mid-compose see it.
func (s *TypingService) Start(ctx context.Context, session *domain.Session, roomID domain.RoomID) error {
	if roomID == "" {
		return fmt.Errorf("%w: %v", domain.ErrValidation, domain.ErrInvalidRoomID)
	}
	if !s.rooms.IsMember(roomID, session.ConnectionID) {
		return fmt.Errorf("%w: not joined to %s", domain.ErrAccessDenied, roomID)
	}
	profile := session.Profile()
	key := typing.Key{RoomID: roomID, PrincipalID: profile.ID}
	if s.table.Start(key, session.ConnectionID, profile.Username) {
		s.metrics.TypingActive.Inc()
	}
	s.broadcast(ctx, domain.EventTypingStarted, typing.Entry{Key: key, Username: profile.Username})
	return nil
}

// Stop removes the typing entry. Stopping without an entry is a no-op.
func (s *TypingService) Stop(ctx context.Context, session *domain.Session, roomID domain.RoomID) error {
	if roomID == "" {
		return fmt.Errorf("%w: %v", domain.ErrValidation, domain.ErrInvalidRoomID)
	}
	if e, ok := s.table.Stop(typing.Key{RoomID: roomID, PrincipalID: session.PrincipalID()}); ok {
		s.stopped(ctx, e)
	}
	return nil
}

// StopConnection cancels every entry owned by the connection.
func (s *TypingService) StopConnection(ctx context.Context, connID domain.ConnectionID) {
	for _, e := range s.table.StopConnection(connID) {
		s.stopped(ctx, e)
	}
}

func (s *TypingService) expired(e typing.Entry) {
	ctx := context.Background()
	s.log.DebugContext(ctx, "typing - expire - success", logging.Room(e.RoomID), logging.Principal(e.PrincipalID))
	s.stopped(ctx, e)
}

func (s *TypingService) stopped(ctx context.Context, e typing.Entry) {
	s.metrics.TypingActive.Dec()
	s.broadcast(ctx, domain.EventTypingStopped, e)
}

func (s *TypingService) broadcast(ctx context.Context, event string, e typing.Entry) {
	payload := domain.TypingEvent{RoomID: e.RoomID, PrincipalID: e.PrincipalID, Username: e.Username}
	s.fanout.ToRoom(ctx, event, payload, s.rooms.Subscribers(e.RoomID), func(sub contracts.Subscriber) bool {
		return sub.PrincipalID != e.PrincipalID
	})
}

func (s *TypingService) Active() int {
	return s.table.Len()
}

// Close drops all entries without broadcasting.
func (s *TypingService) Close() {
	s.metrics.TypingActive.Sub(float64(s.table.Close()))
}
