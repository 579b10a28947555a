package mocks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"pulse/internal/core/domain"
)

// Store is an in-memory durable store implementing the user, chat and
// message repositories. Err* fields inject failures per operation.
type Store struct {
	mu           sync.Mutex
	profiles     map[domain.PrincipalID]domain.Profile
	participants map[domain.RoomID][]domain.PrincipalID
	messages     map[domain.MessageID]domain.Message
	reactions    map[domain.MessageID][]domain.Reaction
	reads        map[domain.MessageID][]domain.PrincipalID
	unread       map[domain.RoomID]map[domain.PrincipalID]int
	lastMessage  map[domain.RoomID]domain.MessageID
	statuses     map[domain.PrincipalID]domain.Status
	seq          int
	calls        map[string]int

	ErrPersist     error
	ErrParticipant error
	ErrChats       error
	ErrProfile     error
	ErrReaction    error
	ErrMarkRead    error
	ErrUpdateLast  error
	ErrIncrement   error
	ErrStatus      error

	// MarkReadDelay simulates a slow durable read-receipt write.
	MarkReadDelay time.Duration
	// OnUpdateStatus runs before a status write is applied.
	OnUpdateStatus func(domain.PrincipalID, domain.Status)
}

func NewStore() *Store {
	return &Store{
		profiles:     make(map[domain.PrincipalID]domain.Profile),
		participants: make(map[domain.RoomID][]domain.PrincipalID),
		messages:     make(map[domain.MessageID]domain.Message),
		reactions:    make(map[domain.MessageID][]domain.Reaction),
		reads:        make(map[domain.MessageID][]domain.PrincipalID),
		unread:       make(map[domain.RoomID]map[domain.PrincipalID]int),
		lastMessage:  make(map[domain.RoomID]domain.MessageID),
		statuses:     make(map[domain.PrincipalID]domain.Status),
		calls:        make(map[string]int),
	}
}

// AddUser registers a principal with a profile derived from its id.
func (s *Store) AddUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid := domain.PrincipalID(id)
	s.profiles[pid] = domain.Profile{ID: pid, Username: id, Avatar: "https://cdn.example/" + id + ".png"}
}

// AddParticipant makes the principal a durable participant of the room.
func (s *Store) AddParticipant(room, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := domain.RoomID(room)
	s.participants[r] = append(s.participants[r], domain.PrincipalID(id))
}

// RemoveParticipant removes durable participation, e.g. a group kick.
func (s *Store) RemoveParticipant(room, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := domain.RoomID(room)
	s.participants[r] = slices.DeleteFunc(s.participants[r], func(p domain.PrincipalID) bool {
		return p == domain.PrincipalID(id)
	})
}

// PutMessage seeds a persisted message.
func (s *Store) PutMessage(id, room, sender string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mid := domain.MessageID(id)
	s.messages[mid] = domain.Message{ID: mid, RoomID: domain.RoomID(room), SenderID: domain.PrincipalID(sender), Kind: domain.KindText, CreatedAt: time.Now()}
}

func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	return out
}

func (s *Store) Unread(room, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[domain.RoomID(room)][domain.PrincipalID(id)]
}

func (s *Store) LastMessage(room string) domain.MessageID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessage[domain.RoomID(room)]
}

func (s *Store) ReadBy(id string) []domain.PrincipalID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PrincipalID(nil), s.reads[domain.MessageID(id)]...)
}

func (s *Store) UserStatus(id string) domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[domain.PrincipalID(id)]
}

func (s *Store) call(op string) {
	s.calls[op]++
}

// UserRepository

func (s *Store) GetProfile(_ context.Context, id domain.PrincipalID) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("GetProfile")
	if s.ErrProfile != nil {
		return nil, s.ErrProfile
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, domain.ErrPrincipalNotFound
	}
	return &p, nil
}

func (s *Store) UpdateStatus(_ context.Context, id domain.PrincipalID, status domain.Status, _ time.Time) error {
	if s.OnUpdateStatus != nil {
		s.OnUpdateStatus(id, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("UpdateStatus")
	if s.ErrStatus != nil {
		return s.ErrStatus
	}
	s.statuses[id] = status
	return nil
}

// ChatRepository

func (s *Store) ChatsForPrincipal(_ context.Context, id domain.PrincipalID) ([]domain.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("ChatsForPrincipal")
	if s.ErrChats != nil {
		return nil, s.ErrChats
	}
	var out []domain.RoomID
	for room, ps := range s.participants {
		if slices.Contains(ps, id) {
			out = append(out, room)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) IsParticipant(_ context.Context, id domain.PrincipalID, roomID domain.RoomID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("IsParticipant")
	if s.ErrParticipant != nil {
		return false, s.ErrParticipant
	}
	return slices.Contains(s.participants[roomID], id), nil
}

func (s *Store) ListParticipants(_ context.Context, roomID domain.RoomID) ([]domain.PrincipalID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("ListParticipants")
	return append([]domain.PrincipalID(nil), s.participants[roomID]...), nil
}

func (s *Store) UpdateLastMessage(_ context.Context, roomID domain.RoomID, messageID domain.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("UpdateLastMessage")
	if s.ErrUpdateLast != nil {
		return s.ErrUpdateLast
	}
	s.lastMessage[roomID] = messageID
	return nil
}

func (s *Store) IncrementUnread(_ context.Context, roomID domain.RoomID, id domain.PrincipalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("IncrementUnread")
	if s.ErrIncrement != nil {
		return s.ErrIncrement
	}
	if s.unread[roomID] == nil {
		s.unread[roomID] = make(map[domain.PrincipalID]int)
	}
	s.unread[roomID][id]++
	return nil
}

func (s *Store) ResetUnread(_ context.Context, roomID domain.RoomID, id domain.PrincipalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("ResetUnread")
	if s.unread[roomID] != nil {
		s.unread[roomID][id] = 0
	}
	return nil
}

// MessageRepository

func (s *Store) PersistMessage(_ context.Context, roomID domain.RoomID, senderID domain.PrincipalID, p domain.MessagePayload) (domain.MessageID, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("PersistMessage")
	if s.ErrPersist != nil {
		return "", time.Time{}, s.ErrPersist
	}
	s.seq++
	id := domain.MessageID(fmt.Sprintf("m-%d", s.seq))
	ts := time.Now().UTC()
	s.messages[id] = domain.Message{
		ID:         id,
		RoomID:     roomID,
		SenderID:   senderID,
		Content:    p.Content,
		Kind:       p.Kind,
		ReplyTo:    p.ReplyTo,
		Attachment: p.Attachment,
		CreatedAt:  ts,
	}
	return id, ts, nil
}

func (s *Store) RoomOfMessage(_ context.Context, messageID domain.MessageID) (domain.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("RoomOfMessage")
	m, ok := s.messages[messageID]
	if !ok {
		return "", domain.ErrMessageNotFound
	}
	return m.RoomID, nil
}

func (s *Store) MarkRead(_ context.Context, messageID domain.MessageID, id domain.PrincipalID) error {
	if s.MarkReadDelay > 0 {
		time.Sleep(s.MarkReadDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("MarkRead")
	if s.ErrMarkRead != nil {
		return s.ErrMarkRead
	}
	if !slices.Contains(s.reads[messageID], id) {
		s.reads[messageID] = append(s.reads[messageID], id)
	}
	return nil
}

func (s *Store) AddReaction(_ context.Context, messageID domain.MessageID, id domain.PrincipalID, emoji string) ([]domain.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call("AddReaction")
	if s.ErrReaction != nil {
		return nil, s.ErrReaction
	}
	rs := s.reactions[messageID]
	before := len(rs)
	rs = slices.DeleteFunc(rs, func(r domain.Reaction) bool {
		return r.PrincipalID == id && r.Emoji == emoji
	})
	if len(rs) == before {
		rs = append(rs, domain.Reaction{PrincipalID: id, Emoji: emoji, CreatedAt: time.Now().UTC()})
	}
	s.reactions[messageID] = rs
	return append([]domain.Reaction(nil), rs...), nil
}

// Transactor runs fn directly and counts invocations.
type Transactor struct {
	mu    sync.Mutex
	Count int
}

func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	t.Count++
	t.mu.Unlock()
	return fn(ctx)
}
