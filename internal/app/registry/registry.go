package registry

import (
	"sync"
	"time"

	"pulse/internal/core/contracts"
	"pulse/internal/core/domain"

	"github.com/samber/lo"
)

type entry struct {
	principal    domain.PrincipalID
	client       contracts.Client
	registeredAt time.Time
	lastActivity time.Time
}

var _ contracts.Registry = (*Registry)(nil)

// Registry maps principals to their live connections. All mutations go through
// a single dedicated lock because presence is global in scope.
type Registry struct {
	mu         sync.RWMutex
	conns      map[domain.ConnectionID]*entry
	principals map[domain.PrincipalID]*domain.PresenceRecord
	now        func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns:      make(map[domain.ConnectionID]*entry),
		principals: make(map[domain.PrincipalID]*domain.PresenceRecord),
		now:        time.Now,
	}
}

// Register adds the connection for the principal. It reports whether this is
// the principal's first live connection. Registering the same connection id
// twice is a no-op and reports false.
func (r *Registry) Register(principal domain.PrincipalID, profile domain.Profile, c contracts.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := c.ID()
	if _, ok := r.conns[id]; ok {
		return false
	}
	now := r.now()
	r.conns[id] = &entry{principal: principal, client: c, registeredAt: now, lastActivity: now}
	rec, ok := r.principals[principal]
	if !ok {
		rec = &domain.PresenceRecord{
			PrincipalID: principal,
			Profile:     profile,
			Connections: make(map[domain.ConnectionID]struct{}),
			Status:      domain.StatusOnline,
		}
		r.principals[principal] = rec
	}
	rec.Connections[id] = struct{}{}
	rec.LastSeen = now
	return !ok
}

// Unregister removes the connection. It returns the owning principal and
// whether that was its last live connection, in which case the presence
// record is deleted. Unknown connections are ignored.
func (r *Registry) Unregister(id domain.ConnectionID) (domain.PrincipalID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return "", false
	}
	delete(r.conns, id)
	rec := r.principals[e.principal]
	if rec == nil {
		return e.principal, false
	}
	delete(rec.Connections, id)
	rec.LastSeen = r.now()
	if len(rec.Connections) > 0 {
		return e.principal, false
	}
	delete(r.principals, e.principal)
	return e.principal, true
}

func (r *Registry) IsOnline(principal domain.PrincipalID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.principals[principal]
	return ok
}

func (r *Registry) ListOnline() []domain.PrincipalID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.principals)
}

// Snapshot returns copies of all presence records.
func (r *Registry) Snapshot() []domain.PresenceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PresenceRecord, 0, len(r.principals))
	for _, rec := range r.principals {
		cp := *rec
		cp.Connections = make(map[domain.ConnectionID]struct{}, len(rec.Connections))
		for id := range rec.Connections {
			cp.Connections[id] = struct{}{}
		}
		out = append(out, cp)
	}
	return out
}

// SetStatus updates the status of an online principal. It returns false when
// the principal has no live connection.
func (r *Registry) SetStatus(principal domain.PrincipalID, status domain.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.principals[principal]
	if !ok {
		return false
	}
	rec.Status = status
	rec.LastSeen = r.now()
	return true
}

func (r *Registry) Status(principal domain.PrincipalID) domain.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.principals[principal]; ok {
		return rec.Status
	}
	return domain.StatusOffline
}

// Touch records activity on a connection and refreshes the owner's last-seen.
func (r *Registry) Touch(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return
	}
	e.lastActivity = r.now()
	if rec := r.principals[e.principal]; rec != nil {
		rec.LastSeen = e.lastActivity
	}
}

func (r *Registry) LastSeen(principal domain.PrincipalID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.principals[principal]
	if !ok {
		return time.Time{}, false
	}
	return rec.LastSeen, true
}

// ConnectionsOf returns the live connections owned by the principal.
func (r *Registry) ConnectionsOf(principal domain.PrincipalID) []contracts.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.principals[principal]
	if !ok {
		return nil
	}
	out := make([]contracts.Client, 0, len(rec.Connections))
	for id := range rec.Connections {
		out = append(out, r.conns[id].client)
	}
	return out
}

// Others returns every live connection not owned by the principal.
func (r *Registry) Others(principal domain.PrincipalID) []contracts.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.Client, 0, len(r.conns))
	for _, e := range r.conns {
		if e.principal == principal {
			continue
		}
		out = append(out, e.client)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every registered connection. The transports then drive the
// regular disconnect teardown for each of them.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	clients := lo.MapToSlice(r.conns, func(_ domain.ConnectionID, e *entry) contracts.Client {
		return e.client
	})
	r.mu.RUnlock()
	for _, c := range clients {
		c.Close()
	}
}
