package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pulse/internal/core/contracts"
	"pulse/internal/core/domain"
	"pulse/internal/platform/metrics"
	"pulse/pkg/logging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const readPersistTimeout = 5 * time.Second

type IMessageService interface {
	// Send persists a message and fans it out to the room. The originating
	// connection gets a message:sent ack, every other subscriber a message:received.
	Send(ctx context.Context, session *domain.Session, req domain.SendRequest) error
	// React toggles a reaction and broadcasts the resulting reaction list.
	React(ctx context.Context, session *domain.Session, req domain.ReactRequest) error
	// MarkRead broadcasts a read receipt and persists it in the background.
	MarkRead(ctx context.Context, session *domain.Session, req domain.ReadRequest) error
	// Wait blocks until background read receipt writes are done.
	Wait()
}

type MessageService struct {
	log        *slog.Logger
	rooms      contracts.RoomIndex
	chats      domain.ChatRepository
	messages   domain.MessageRepository
	txManager  contracts.Transactor
	typing     *TypingService
	fanout     *Fanout
	metrics    *metrics.Metrics
	maxContent int

	pending sync.WaitGroup
}

func NewMessageService(
	log *slog.Logger,
	rooms contracts.RoomIndex,
	chats domain.ChatRepository,
	messages domain.MessageRepository,
	txManager contracts.Transactor,
	typing *TypingService,
	fanout *Fanout,
	m *metrics.Metrics,
	maxContent int,
) *MessageService {
	if maxContent <= 0 {
		maxContent = DefaultMaxContentLength
	}
	return &MessageService{
		log:        log,
		rooms:      rooms,
		chats:      chats,
		messages:   messages,
		txManager:  txManager,
		typing:     typing,
		fanout:     fanout,
		metrics:    m,
		maxContent: maxContent,
	}
}

func (s *MessageService) Send(ctx context.Context, session *domain.Session, req domain.SendRequest) error {
	start := time.Now()
	sender := session.Profile()
	ctx, span := tracer.Start(ctx, "MessageService.Send", trace.WithAttributes(
		attribute.String("principal_id", string(sender.ID)),
		attribute.String("room_id", string(req.RoomID)),
	))
	defer span.End()

	if req.RoomID == "" {
		return fmt.Errorf("%w: %v", domain.ErrValidation, domain.ErrInvalidRoomID)
	}
	if !s.rooms.IsMember(req.RoomID, session.ConnectionID) {
		err := fmt.Errorf("%w: not joined to %s", domain.ErrAccessDenied, req.RoomID)
		span.RecordError(err)
		return err
	}
	if err := normalizeMessage(&req, s.maxContent); err != nil {
		span.RecordError(err)
		return err
	}

	var (
		messageID domain.MessageID
		createdAt time.Time
	)
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		messageID, createdAt, err = s.messages.PersistMessage(txCtx, req.RoomID, sender.ID, req.MessagePayload)
		if err != nil {
			return fmt.Errorf("persist message: %w", err)
		}
		if err := s.chats.UpdateLastMessage(txCtx, req.RoomID, messageID); err != nil {
			return fmt.Errorf("update last message: %w", err)
		}
		participants, err := s.chats.ListParticipants(txCtx, req.RoomID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		for _, p := range participants {
			if p == sender.ID {
				continue
			}
			if err := s.chats.IncrementUnread(txCtx, req.RoomID, p); err != nil {
				return fmt.Errorf("increment unread: %w", err)
			}
		}
		return nil
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
		s.log.ErrorContext(ctx, "messages - send - persist failed",
			logging.Room(req.RoomID), logging.Principal(sender.ID), logging.ClientMsg(req.ClientMsgID), logging.Err(err))
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if err := s.typing.Stop(ctx, session, req.RoomID); err != nil {
		s.log.WarnContext(ctx, "messages - send - stop typing failed", logging.Room(req.RoomID), logging.Err(err))
	}

	out := domain.ChatMessage{
		MessageID:  messageID,
		RoomID:     req.RoomID,
		Sender:     sender,
		Content:    req.Content,
		Kind:       req.Kind,
		ReplyTo:    req.ReplyTo,
		Attachment: req.Attachment,
		Timestamp:  createdAt,
		Status:     "sent",
	}
	var origin contracts.Client
	subs := s.rooms.Subscribers(req.RoomID)
	recipients := make([]contracts.Client, 0, len(subs))
	for _, sub := range subs {
		if sub.ConnectionID() == session.ConnectionID {
			origin = sub.Client
			continue
		}
		recipients = append(recipients, sub.Client)
	}
	n := s.fanout.Deliver(ctx, domain.EventMessageReceived, out, recipients)
	if origin != nil {
		_ = s.fanout.Reply(ctx, origin, domain.EventMessageSent, domain.AckMessage{
			ClientMsgID: req.ClientMsgID,
			MessageID:   messageID,
			RoomID:      req.RoomID,
			Timestamp:   createdAt,
		})
	}
	s.metrics.SendDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("message_id", string(messageID)), attribute.Int("recipients", n))
	span.SetStatus(codes.Ok, "sent")
	s.log.InfoContext(ctx, "messages - send - success",
		logging.Room(req.RoomID), logging.Message(messageID), logging.Principal(sender.ID), slog.Int("recipients", n))
	return nil
}

func (s *MessageService) React(ctx context.Context, session *domain.Session, req domain.ReactRequest) error {
	principal := session.PrincipalID()
	ctx, span := tracer.Start(ctx, "MessageService.React", trace.WithAttributes(
		attribute.String("principal_id", string(principal)),
		attribute.String("message_id", string(req.MessageID)),
	))
	defer span.End()

	if err := validateRequest(&req); err != nil {
		return err
	}
	roomID, err := s.authorizeMessage(ctx, session, req.MessageID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	reactions, err := s.messages.AddReaction(ctx, req.MessageID, principal, req.Emoji)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "add reaction failed")
		s.log.ErrorContext(ctx, "messages - react - persist failed", logging.Message(req.MessageID), logging.Err(err))
		return fmt.Errorf("%w: add reaction: %v", domain.ErrPersistence, err)
	}
	if reactions == nil {
		reactions = []domain.Reaction{}
	}
	s.fanout.ToRoom(ctx, domain.EventMessageReaction,
		domain.ReactionEvent{MessageID: req.MessageID, Reactions: reactions}, s.rooms.Subscribers(roomID), nil)
	return nil
}

// MarkRead broadcasts first; the durable write is best-effort and never
// delays the receipt.
func (s *MessageService) MarkRead(ctx context.Context, session *domain.Session, req domain.ReadRequest) error {
	principal := session.PrincipalID()
	ctx, span := tracer.Start(ctx, "MessageService.MarkRead", trace.WithAttributes(
		attribute.String("principal_id", string(principal)),
		attribute.String("message_id", string(req.MessageID)),
	))
	defer span.End()

	if err := validateRequest(&req); err != nil {
		return err
	}
	roomID, err := s.authorizeMessage(ctx, session, req.MessageID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.fanout.ToRoom(ctx, domain.EventMessageReadNotice,
		domain.ReadEvent{MessageID: req.MessageID, ReaderID: principal}, s.rooms.Subscribers(roomID),
		func(sub contracts.Subscriber) bool { return sub.ConnectionID() != session.ConnectionID })

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readPersistTimeout)
		defer cancel()
		if err := s.messages.MarkRead(ctx, req.MessageID, principal); err != nil {
			s.log.ErrorContext(ctx, "messages - mark read - persist failed",
				logging.Message(req.MessageID), logging.Principal(principal), logging.Err(err))
		}
	}()
	return nil
}

// authorizeMessage resolves the room of a message and checks that the
// session's connection is subscribed to it.
func (s *MessageService) authorizeMessage(ctx context.Context, session *domain.Session, messageID domain.MessageID) (domain.RoomID, error) {
	roomID, err := s.messages.RoomOfMessage(ctx, messageID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err != nil {
		return "", fmt.Errorf("%w: room of message: %v", domain.ErrPersistence, err)
	}
	if !s.rooms.IsMember(roomID, session.ConnectionID) {
		return "", fmt.Errorf("%w: not joined to %s", domain.ErrAccessDenied, roomID)
	}
	return roomID, nil
}

func (s *MessageService) Wait() {
	s.pending.Wait()
}
