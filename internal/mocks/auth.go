package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pulse/internal/core/domain"
)

// Authenticator accepts tokens of the form "token-<principal>".
type Authenticator struct {
	// Delay blocks authentication until it elapses or the context is done.
	Delay time.Duration
}

func (a Authenticator) Authenticate(ctx context.Context, token string) (domain.PrincipalID, error) {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", domain.ErrAuthentication, ctx.Err())
		}
	}
	const prefix = "token-"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return "", fmt.Errorf("%w: invalid token", domain.ErrAuthentication)
	}
	return domain.PrincipalID(token[len(prefix):]), nil
}

// Mirror records presence mirror writes.
type Mirror struct {
	mu      sync.Mutex
	online  map[domain.PrincipalID]domain.Status
	Writes  int
	Removes int
}

func NewMirror() *Mirror {
	return &Mirror{online: make(map[domain.PrincipalID]domain.Status)}
}

func (m *Mirror) SetOnline(_ context.Context, id domain.PrincipalID, status domain.Status, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	m.online[id] = status
	return nil
}

func (m *Mirror) SetOffline(_ context.Context, id domain.PrincipalID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removes++
	delete(m.online, id)
	return nil
}

func (m *Mirror) Online(_ context.Context, _ time.Duration) ([]domain.PrincipalID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PrincipalID, 0, len(m.online))
	for id := range m.online {
		out = append(out, id)
	}
	return out, nil
}

func (m *Mirror) Status(id domain.PrincipalID) (domain.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.online[id]
	return s, ok
}

func (m *Mirror) Counts() (writes, removes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Writes, m.Removes
}
