package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"pulse/internal/app/registry"
	"pulse/internal/app/rooms"
	"pulse/internal/core/domain"
	"pulse/internal/mocks"
	"pulse/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t        *testing.T
	store    *mocks.Store
	mirror   *mocks.Mirror
	tx       *mocks.Transactor
	auth     *mocks.Authenticator
	registry *registry.Registry
	rooms    *rooms.Index
	metrics  *metrics.Metrics
	fanout   *Fanout
	presence *PresenceService
	typing   *TypingService
	messages *MessageService
	manager  *ManagerService
}

type harnessOpts struct {
	typingTTL   time.Duration
	maxContent  int
	authTimeout time.Duration
	heartbeat   time.Duration
}

func newHarness(t *testing.T, opts ...func(*harnessOpts)) *harness {
	t.Helper()
	o := harnessOpts{
		typingTTL:   time.Minute,
		maxContent:  DefaultMaxContentLength,
		authTimeout: time.Second,
		heartbeat:   time.Hour,
	}
	for _, fn := range opts {
		fn(&o)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		t:        t,
		store:    mocks.NewStore(),
		mirror:   mocks.NewMirror(),
		tx:       &mocks.Transactor{},
		auth:     &mocks.Authenticator{},
		registry: registry.NewRegistry(),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	h.rooms = rooms.NewIndex(h.store)
	h.fanout = NewFanout(log, h.metrics)
	h.presence = NewPresenceService(log, h.registry, h.store, h.mirror, h.fanout, o.heartbeat, 90*time.Second)
	h.typing = NewTypingService(log, h.rooms, h.fanout, h.metrics, o.typingTTL)
	h.messages = NewMessageService(log, h.rooms, h.store, h.store, h.tx, h.typing, h.fanout, h.metrics, o.maxContent)
	h.manager = NewManagerService(log, h.auth, h.store, h.store, h.registry, h.rooms,
		h.presence, h.typing, h.messages, h.fanout, h.metrics, o.authTimeout)
	t.Cleanup(func() {
		h.messages.Wait()
		h.typing.Close()
	})
	return h
}

// member seeds a principal that durably belongs to the given rooms.
func (h *harness) member(principal string, roomIDs ...string) {
	h.store.AddUser(principal)
	for _, r := range roomIDs {
		h.store.AddParticipant(r, principal)
	}
}

// connect runs the connect sequence for a new connection of the principal.
func (h *harness) connect(principal, connID string) (*domain.Session, *mocks.Client) {
	h.t.Helper()
	c := mocks.NewClient(connID)
	s := domain.NewSession(c.ID())
	require.NoError(h.t, h.manager.HandleConnect(context.Background(), s, c, "token-"+principal))
	return s, c
}

// emit feeds one client event through the connection's frame handler.
func (h *harness) emit(s *domain.Session, c *mocks.Client, event string, data any) {
	h.t.Helper()
	raw, err := domain.NewEnvelope(event, data)
	require.NoError(h.t, err)
	h.manager.HandleFrame(context.Background(), s, c, raw)
}

func (h *harness) send(s *domain.Session, c *mocks.Client, room, content string) {
	h.emit(s, c, domain.EventMessageSend, map[string]any{"roomId": room, "content": content, "kind": "text"})
}

func lastError(t *testing.T, c *mocks.Client) domain.ErrorMessage {
	t.Helper()
	errs := c.Events(domain.EventError)
	require.NotEmpty(t, errs, "expected an error event")
	return mocks.Decode[domain.ErrorMessage](errs[len(errs)-1])
}
