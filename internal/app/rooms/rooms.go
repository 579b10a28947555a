package rooms

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"pulse/internal/core/contracts"
	"pulse/internal/core/domain"

	"github.com/samber/lo"
)

const shardCount = 64

// ParticipantChecker answers durable membership questions at join time.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, id domain.PrincipalID, roomID domain.RoomID) (bool, error)
}

type shard struct {
	sync.RWMutex
	rooms map[domain.RoomID]map[domain.ConnectionID]contracts.Subscriber
}

var _ contracts.RoomIndex = (*Index)(nil)

// Index maps rooms to the connections currently subscribed to them. Rooms
// are spread over sharded locks so a busy room never stalls unrelated ones.
// A reverse index tracks the rooms of each connection for teardown.
type Index struct {
	shards   [shardCount]*shard
	checker  ParticipantChecker
	revMu    sync.Mutex
	joinedBy map[domain.ConnectionID]map[domain.RoomID]struct{}
}

func NewIndex(checker ParticipantChecker) *Index {
	idx := &Index{
		checker:  checker,
		joinedBy: make(map[domain.ConnectionID]map[domain.RoomID]struct{}),
	}
	for i := range idx.shards {
		idx.shards[i] = &shard{rooms: make(map[domain.RoomID]map[domain.ConnectionID]contracts.Subscriber)}
	}
	return idx
}

func (x *Index) shardFor(roomID domain.RoomID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return x.shards[h.Sum32()%shardCount]
}

// Join subscribes the connection after checking durable participation of its
// principal against the store. The check happens at call time only; later
// removal from the room does not evict an already joined connection.
func (x *Index) Join(ctx context.Context, roomID domain.RoomID, sub contracts.Subscriber) error {
	if roomID == "" {
		return fmt.Errorf("%w: %v", domain.ErrValidation, domain.ErrInvalidRoomID)
	}
	ok, err := x.checker.IsParticipant(ctx, sub.PrincipalID, roomID)
	if err != nil {
		return fmt.Errorf("%w: is participant: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a participant of %s", domain.ErrAccessDenied, sub.PrincipalID, roomID)
	}
	x.Add(roomID, sub)
	return nil
}

// Add subscribes the connection without a durable check. Callers must have
// validated participation already, e.g. from the principal's chat list.
func (x *Index) Add(roomID domain.RoomID, sub contracts.Subscriber) {
	connID := sub.ConnectionID()
	s := x.shardFor(roomID)
	s.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		room = make(map[domain.ConnectionID]contracts.Subscriber)
		s.rooms[roomID] = room
	}
	room[connID] = sub
	s.Unlock()

	x.revMu.Lock()
	joined, ok := x.joinedBy[connID]
	if !ok {
		joined = make(map[domain.RoomID]struct{})
		x.joinedBy[connID] = joined
	}
	joined[roomID] = struct{}{}
	x.revMu.Unlock()
}

// Leave unsubscribes the connection. It is idempotent.
func (x *Index) Leave(roomID domain.RoomID, connID domain.ConnectionID) {
	x.removeFromRoom(roomID, connID)
	x.revMu.Lock()
	if joined, ok := x.joinedBy[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(x.joinedBy, connID)
		}
	}
	x.revMu.Unlock()
}

func (x *Index) removeFromRoom(roomID domain.RoomID, connID domain.ConnectionID) {
	s := x.shardFor(roomID)
	s.Lock()
	defer s.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(s.rooms, roomID)
	}
}

// RemoveConnectionEverywhere unsubscribes the connection from every room and
// returns the rooms it was in. It is idempotent.
func (x *Index) RemoveConnectionEverywhere(connID domain.ConnectionID) []domain.RoomID {
	x.revMu.Lock()
	joined := x.joinedBy[connID]
	delete(x.joinedBy, connID)
	x.revMu.Unlock()

	roomIDs := lo.Keys(joined)
	for _, roomID := range roomIDs {
		x.removeFromRoom(roomID, connID)
	}
	return roomIDs
}

// MembersOf returns the ids of connections subscribed to the room. Unknown
// rooms yield an empty set.
func (x *Index) MembersOf(roomID domain.RoomID) []domain.ConnectionID {
	s := x.shardFor(roomID)
	s.RLock()
	defer s.RUnlock()
	return lo.Keys(s.rooms[roomID])
}

// Subscribers snapshots the room's subscribers for fan-out. Delivery happens
// on the snapshot, outside the room lock.
func (x *Index) Subscribers(roomID domain.RoomID) []contracts.Subscriber {
	s := x.shardFor(roomID)
	s.RLock()
	defer s.RUnlock()
	return lo.Values(s.rooms[roomID])
}

func (x *Index) IsMember(roomID domain.RoomID, connID domain.ConnectionID) bool {
	s := x.shardFor(roomID)
	s.RLock()
	defer s.RUnlock()
	_, ok := s.rooms[roomID][connID]
	return ok
}

// RoomsOf returns the rooms the connection is currently subscribed to.
func (x *Index) RoomsOf(connID domain.ConnectionID) []domain.RoomID {
	x.revMu.Lock()
	defer x.revMu.Unlock()
	return lo.Keys(x.joinedBy[connID])
}
