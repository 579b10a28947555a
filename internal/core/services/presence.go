package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"pulse/internal/core/contracts"
	"pulse/internal/core/domain"
	"pulse/pkg/logging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PresenceService announces presence changes to every other connected
// principal and keeps the durable store and the presence mirror in step.
type PresenceService struct {
	log      *slog.Logger
	registry contracts.Registry
	users    domain.UserRepository
	mirror   contracts.PresenceMirror
	fanout   *Fanout
	ttl      time.Duration
	interval time.Duration

	// transitions serializes online and offline transitions of one principal
	// so that a reconnect never lands before the offline writes it follows.
	transitions [64]sync.Mutex
}

func NewPresenceService(
	log *slog.Logger,
	registry contracts.Registry,
	users domain.UserRepository,
	mirror contracts.PresenceMirror,
	fanout *Fanout,
	heartbeat, ttl time.Duration,
) *PresenceService {
	return &PresenceService{
		log:      log,
		registry: registry,
		users:    users,
		mirror:   mirror,
		fanout:   fanout,
		ttl:      ttl,
		interval: heartbeat,
	}
}

// LockPrincipal holds the transition lock of the principal until the
// returned func is called.
func (p *PresenceService) LockPrincipal(principal domain.PrincipalID) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(principal))
	mu := &p.transitions[h.Sum32()%uint32(len(p.transitions))]
	mu.Lock()
	return mu.Unlock
}

func (p *PresenceService) AnnounceOnline(ctx context.Context, profile domain.Profile) int {
	return p.fanout.Deliver(ctx, domain.EventUserOnline, presenceEvent(profile), p.registry.Others(profile.ID))
}

func (p *PresenceService) AnnounceOffline(ctx context.Context, profile domain.Profile) int {
	return p.fanout.Deliver(ctx, domain.EventUserOffline, presenceEvent(profile), p.registry.Others(profile.ID))
}

func (p *PresenceService) AnnounceStatus(ctx context.Context, principal domain.PrincipalID, status domain.Status) int {
	return p.fanout.Deliver(ctx, domain.EventStatusUpdated,
		domain.StatusEvent{PrincipalID: principal, Status: status}, p.registry.Others(principal))
}

func presenceEvent(profile domain.Profile) domain.PresenceEvent {
	return domain.PresenceEvent{PrincipalID: profile.ID, Username: profile.Username, Avatar: profile.Avatar}
}

// OnlineSnapshot lists every online principal except the given one.
func (p *PresenceService) OnlineSnapshot(except domain.PrincipalID) []domain.OnlineUser {
	records := p.registry.Snapshot()
	out := make([]domain.OnlineUser, 0, len(records))
	for _, rec := range records {
		if rec.PrincipalID == except {
			continue
		}
		out = append(out, domain.OnlineUser{
			PrincipalID: rec.PrincipalID,
			Username:    rec.Profile.Username,
			Avatar:      rec.Profile.Avatar,
			Status:      rec.Status,
		})
	}
	return out
}

// UpdateStatus applies a client selected status. The durable write happens
// first so a failed write leaves presence untouched.
func (p *PresenceService) UpdateStatus(ctx context.Context, session *domain.Session, status domain.Status) error {
	principal := session.PrincipalID()
	ctx, span := tracer.Start(ctx, "PresenceService.UpdateStatus", trace.WithAttributes(
		attribute.String("principal_id", string(principal)),
		attribute.String("status", string(status)),
	))
	defer span.End()
	if !status.Settable() {
		return fmt.Errorf("%w: unsupported status %q", domain.ErrValidation, status)
	}
	unlock := p.LockPrincipal(principal)
	defer unlock()
	if err := p.users.UpdateStatus(ctx, principal, status, time.Now().UTC()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update status failed")
		p.log.ErrorContext(ctx, "presence - update status - persist failed", logging.Principal(principal), logging.Err(err))
		return fmt.Errorf("%w: update status: %v", domain.ErrPersistence, err)
	}
	if !p.registry.SetStatus(principal, status) {
		return nil
	}
	p.mirrorOnline(ctx, principal, status)
	n := p.AnnounceStatus(ctx, principal, status)
	p.log.InfoContext(ctx, "presence - update status - success",
		logging.Principal(principal), slog.String("status", string(status)), slog.Int("recipients", n))
	return nil
}

// MarkOnline persists the online state of a principal on its first connection.
// Failures are logged only.
func (p *PresenceService) MarkOnline(ctx context.Context, principal domain.PrincipalID) {
	if err := p.users.UpdateStatus(ctx, principal, domain.StatusOnline, time.Now().UTC()); err != nil {
		p.log.ErrorContext(ctx, "presence - mark online - persist failed", logging.Principal(principal), logging.Err(err))
	}
	p.mirrorOnline(ctx, principal, domain.StatusOnline)
}

// MarkOffline persists offline and last-seen after the last connection went away.
func (p *PresenceService) MarkOffline(ctx context.Context, principal domain.PrincipalID, lastSeen time.Time) {
	if err := p.users.UpdateStatus(ctx, principal, domain.StatusOffline, lastSeen); err != nil {
		p.log.ErrorContext(ctx, "presence - mark offline - persist failed", logging.Principal(principal), logging.Err(err))
	}
	if err := p.mirror.SetOffline(ctx, principal, lastSeen); err != nil {
		p.log.WarnContext(ctx, "presence - mark offline - mirror failed", logging.Principal(principal), logging.Err(err))
	}
}

func (p *PresenceService) mirrorOnline(ctx context.Context, principal domain.PrincipalID, status domain.Status) {
	if err := p.mirror.SetOnline(ctx, principal, status, p.ttl); err != nil {
		p.log.WarnContext(ctx, "presence - mirror - set online failed", logging.Principal(principal), logging.Err(err))
	}
}

// RunHeartbeat refreshes the mirror for every online principal until ctx is done.
func (p *PresenceService) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("presence - heartbeat - stopped")
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *PresenceService) refresh(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "PresenceService.Heartbeat")
	defer span.End()
	records := p.registry.Snapshot()
	failed := 0
	for _, rec := range records {
		if err := p.mirror.SetOnline(ctx, rec.PrincipalID, rec.Status, p.ttl); err != nil {
			failed++
			span.RecordError(err)
		}
	}
	if failed > 0 {
		span.SetStatus(codes.Error, "mirror refresh failed")
		p.log.WarnContext(ctx, "presence - heartbeat - refresh failed", slog.Int("online", len(records)), slog.Int("failed", failed))
	}
	span.SetAttributes(attribute.Int("online", len(records)))
}
