package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pulse/internal/core/contracts"
	"pulse/internal/core/domain"
	"pulse/internal/platform/metrics"
	"pulse/pkg/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pulse/services")

// ErrShuttingDown is returned by Serve once Shutdown has started.
var ErrShuttingDown = errors.New("manager shutting down")

const DefaultAuthTimeout = 10 * time.Second

type IManagerService interface {
	// Serve owns one connection from authentication to teardown. It returns
	// once inbound is closed or ctx is done.
	Serve(ctx context.Context, client contracts.Client, token string, inbound <-chan []byte) error
	// Shutdown waits for every served connection and background write to finish.
	Shutdown(ctx context.Context) error
}

type ManagerService struct {
	log         *slog.Logger
	auth        contracts.Authenticator
	users       domain.UserRepository
	chats       domain.ChatRepository
	registry    contracts.Registry
	rooms       contracts.RoomIndex
	presence    *PresenceService
	typing      *TypingService
	message     IMessageService
	fanout      *Fanout
	metrics     *metrics.Metrics
	authTimeout time.Duration

	mu       sync.Mutex
	closing  bool
	stopping chan struct{}
	active   sync.WaitGroup
}

func NewManagerService(
	log *slog.Logger,
	auth contracts.Authenticator,
	users domain.UserRepository,
	chats domain.ChatRepository,
	registry contracts.Registry,
	rooms contracts.RoomIndex,
	presence *PresenceService,
	typing *TypingService,
	message IMessageService,
	fanout *Fanout,
	m *metrics.Metrics,
	authTimeout time.Duration,
) *ManagerService {
	if authTimeout <= 0 {
		authTimeout = DefaultAuthTimeout
	}
	return &ManagerService{
		log:         log,
		auth:        auth,
		users:       users,
		chats:       chats,
		registry:    registry,
		rooms:       rooms,
		presence:    presence,
		typing:      typing,
		message:     message,
		fanout:      fanout,
		metrics:     m,
		authTimeout: authTimeout,
		stopping:    make(chan struct{}),
	}
}

func (m *ManagerService) Serve(
	ctx context.Context,
	client contracts.Client,
	token string,
	inbound <-chan []byte,
) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		client.Close()
		return ErrShuttingDown
	}
	m.active.Add(1)
	m.mu.Unlock()
	defer m.active.Done()

	session := domain.NewSession(client.ID())
	if err := m.HandleConnect(ctx, session, client, token); err != nil {
		m.fanout.Error(ctx, client, "", "", err)
		client.Close()
		return err
	}
	defer m.HandleDisconnect(context.WithoutCancel(ctx), session)

	for {
		select {
		case <-ctx.Done():
			client.Close()
			return nil
		case <-m.stopping:
			client.Close()
			return nil
		case raw, ok := <-inbound:
			if !ok {
				return nil
			}
			m.HandleFrame(ctx, session, client, raw)
		}
	}
}

// HandleConnect authenticates the connection and makes it active. All store
// reads happen before any shared state is touched.
func (m *ManagerService) HandleConnect(
	ctx context.Context,
	session *domain.Session,
	client contracts.Client,
	token string,
) error {
	ctx, span := tracer.Start(ctx, "ManagerService.HandleConnect", trace.WithAttributes(
		attribute.String("connection_id", string(session.ConnectionID)),
	))
	defer span.End()

	authCtx, cancel := context.WithTimeout(ctx, m.authTimeout)
	principal, err := m.auth.Authenticate(authCtx, token)
	cancel()
	if err != nil {
		if !errors.Is(err, domain.ErrAuthentication) {
			err = fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		m.log.WarnContext(ctx, "manager - handle connect - authentication failed",
			logging.Connection(session.ConnectionID), logging.Err(err))
		return err
	}
	span.SetAttributes(attribute.String("principal_id", string(principal)))

	profile, err := m.users.GetProfile(ctx, principal)
	switch {
	case errors.Is(err, domain.ErrPrincipalNotFound):
		err = fmt.Errorf("%w: unknown principal %s", domain.ErrAuthentication, principal)
	case err != nil:
		err = fmt.Errorf("%w: get profile: %v", domain.ErrPersistence, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load profile failed")
		m.log.ErrorContext(ctx, "manager - handle connect - load profile failed", logging.Principal(principal), logging.Err(err))
		return err
	}
	roomIDs, err := m.chats.ChatsForPrincipal(ctx, principal)
	if err != nil {
		err = fmt.Errorf("%w: chats for principal: %v", domain.ErrPersistence, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load chats failed")
		m.log.ErrorContext(ctx, "manager - handle connect - load chats failed", logging.Principal(principal), logging.Err(err))
		return err
	}
	session.Authenticate(principal, *profile)

	unlock := m.presence.LockPrincipal(principal)
	defer unlock()
	first := m.registry.Register(principal, *profile, client)
	sub := contracts.Subscriber{PrincipalID: principal, Client: client}
	for _, roomID := range roomIDs {
		m.rooms.Add(roomID, sub)
	}
	session.Activate()
	m.metrics.ConnectionsActive.Inc()

	_ = m.fanout.Reply(ctx, client, domain.EventUsersOnline, m.presence.OnlineSnapshot(principal))
	if first {
		n := m.presence.AnnounceOnline(ctx, *profile)
		m.presence.MarkOnline(ctx, principal)
		span.SetAttributes(attribute.Int("announced_to", n))
	}
	span.SetStatus(codes.Ok, "connected")
	m.log.InfoContext(ctx, "manager - handle connect - success",
		logging.Principal(principal), logging.Connection(session.ConnectionID),
		slog.Int("rooms", len(roomIDs)), slog.Bool("first", first))
	return nil
}

// HandleDisconnect tears down everything the connection owns. Only the
// first call for a session has an effect.
func (m *ManagerService) HandleDisconnect(ctx context.Context, session *domain.Session) {
	if prev := session.Disconnect(); prev != domain.StateActive {
		return
	}
	principal := session.PrincipalID()
	ctx, span := tracer.Start(ctx, "ManagerService.HandleDisconnect", trace.WithAttributes(
		attribute.String("principal_id", string(principal)),
		attribute.String("connection_id", string(session.ConnectionID)),
	))
	defer span.End()

	left := m.rooms.RemoveConnectionEverywhere(session.ConnectionID)
	m.typing.StopConnection(ctx, session.ConnectionID)

	// A reconnect of the same principal waits until the offline writes land.
	unlock := m.presence.LockPrincipal(principal)
	defer unlock()
	_, last := m.registry.Unregister(session.ConnectionID)
	m.metrics.ConnectionsActive.Dec()
	if last {
		n := m.presence.AnnounceOffline(ctx, session.Profile())
		m.presence.MarkOffline(ctx, principal, time.Now().UTC())
		span.SetAttributes(attribute.Int("announced_to", n))
	}
	m.log.InfoContext(ctx, "manager - handle disconnect - success",
		logging.Principal(principal), logging.Connection(session.ConnectionID),
		slog.Int("rooms", len(left)), slog.Bool("last", last))
}

// HandleFrame decodes and dispatches one inbound frame. Any failure is
// reported to the originating connection only.
func (m *ManagerService) HandleFrame(
	ctx context.Context,
	session *domain.Session,
	client contracts.Client,
	raw []byte,
) {
	session.Touch()
	m.registry.Touch(session.ConnectionID)

	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		err = fmt.Errorf("%w: malformed frame", domain.ErrValidation)
		m.metrics.Event("invalid", err)
		m.fanout.Error(ctx, client, "", "", err)
		return
	}
	ctx = logging.WithContext(ctx, m.log.With(
		logging.Principal(session.PrincipalID()),
		logging.Connection(session.ConnectionID),
		logging.Event(env.Event),
	))

	clientMsgID, err := m.dispatch(ctx, session, client, env)
	m.metrics.Event(env.Event, err)
	if err == nil {
		return
	}
	log := logging.FromContext(ctx)
	switch {
	case errors.Is(err, domain.ErrPersistence):
		log.ErrorContext(ctx, "manager - handle frame - failed", logging.Err(err))
	default:
		log.WarnContext(ctx, "manager - handle frame - rejected", logging.Err(err))
	}
	m.fanout.Error(ctx, client, env.Event, clientMsgID, err)
}

func (m *ManagerService) dispatch(
	ctx context.Context,
	session *domain.Session,
	client contracts.Client,
	env domain.Envelope,
) (string, error) {
	switch env.Event {
	case domain.EventChatJoin:
		req, err := decode[domain.RoomRequest](env)
		if err != nil {
			return "", err
		}
		return "", m.join(ctx, session, client, req.RoomID)
	case domain.EventChatLeave:
		req, err := decode[domain.RoomRequest](env)
		if err != nil {
			return "", err
		}
		return "", m.leave(ctx, session, client, req.RoomID)
	case domain.EventMessageSend:
		req, err := decode[domain.SendRequest](env)
		if err != nil {
			return req.ClientMsgID, err
		}
		return req.ClientMsgID, m.message.Send(ctx, session, req)
	case domain.EventTypingStart:
		req, err := decode[domain.RoomRequest](env)
		if err != nil {
			return "", err
		}
		return "", m.typing.Start(ctx, session, req.RoomID)
	case domain.EventTypingStop:
		req, err := decode[domain.RoomRequest](env)
		if err != nil {
			return "", err
		}
		return "", m.typing.Stop(ctx, session, req.RoomID)
	case domain.EventMessageReact:
		req, err := decode[domain.ReactRequest](env)
		if err != nil {
			return "", err
		}
		return "", m.message.React(ctx, session, req)
	case domain.EventMessageRead:
		req, err := decode[domain.ReadRequest](env)
		if err != nil {
			return "", err
		}
		return "", m.message.MarkRead(ctx, session, req)
	case domain.EventUserStatus:
		req, err := decode[domain.StatusRequest](env)
		if err != nil {
			return "", err
		}
		return "", m.presence.UpdateStatus(ctx, session, req.Status)
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownEvent, env.Event)
	}
}

func decode[T any](env domain.Envelope) (T, error) {
	var v T
	if len(env.Data) == 0 {
		return v, fmt.Errorf("%w: missing data", domain.ErrValidation)
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return v, nil
}

func (m *ManagerService) join(ctx context.Context, session *domain.Session, client contracts.Client, roomID domain.RoomID) error {
	if err := validateRequest(domain.RoomRequest{RoomID: roomID}); err != nil {
		return err
	}
	sub := contracts.Subscriber{PrincipalID: session.PrincipalID(), Client: client}
	if err := m.rooms.Join(ctx, roomID, sub); err != nil {
		return err
	}
	if err := m.chats.ResetUnread(ctx, roomID, sub.PrincipalID); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "manager - join - reset unread failed", logging.Room(roomID), logging.Err(err))
	}
	_ = m.fanout.Reply(ctx, client, domain.EventChatJoined, domain.RoomEvent{RoomID: roomID})
	return nil
}

func (m *ManagerService) leave(ctx context.Context, session *domain.Session, client contracts.Client, roomID domain.RoomID) error {
	if err := validateRequest(domain.RoomRequest{RoomID: roomID}); err != nil {
		return err
	}
	if err := m.typing.Stop(ctx, session, roomID); err != nil {
		return err
	}
	m.rooms.Leave(roomID, session.ConnectionID)
	_ = m.fanout.Reply(ctx, client, domain.EventChatLeft, domain.RoomEvent{RoomID: roomID})
	return nil
}

// Shutdown rejects new connections and closes every served one, including
// those still connecting. It then waits for their teardown and for
// background writes to drain.
func (m *ManagerService) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.closing {
		m.closing = true
		close(m.stopping)
	}
	m.mu.Unlock()
	m.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		m.active.Wait()
		m.message.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.typing.Close()
		m.log.Info("manager - shutdown - drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("manager shutdown: %w", ctx.Err())
	}
}
