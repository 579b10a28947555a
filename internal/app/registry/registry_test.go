package registry

import (
	"fmt"
	"sync"
	"testing"

	"pulse/internal/core/domain"
	"pulse/internal/mocks"

	"github.com/stretchr/testify/require"
)

func profile(id string) domain.Profile {
	return domain.Profile{ID: domain.PrincipalID(id), Username: id}
}

func TestRegistry_Register_FirstConnectionOnly(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	// When alice connects from two devices
	first := r.Register("alice", profile("alice"), mocks.NewClient("c1"))
	second := r.Register("alice", profile("alice"), mocks.NewClient("c2"))

	// Then only the first registration is reported as first
	req.True(first)
	req.False(second)
	req.True(r.IsOnline("alice"))
	req.Equal(2, r.Len())
	req.Len(r.ConnectionsOf("alice"), 2)
}

func TestRegistry_Register_IdempotentPerConnection(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	c := mocks.NewClient("c1")

	req.True(r.Register("alice", profile("alice"), c))
	req.False(r.Register("alice", profile("alice"), c))

	req.Equal(1, r.Len())
	req.Len(r.Snapshot()[0].Connections, 1)
}

func TestRegistry_Unregister_MultiDevice(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	r.Register("alice", profile("alice"), mocks.NewClient("c1"))
	r.Register("alice", profile("alice"), mocks.NewClient("c2"))

	// When one device disconnects
	principal, last := r.Unregister("c1")

	// Then alice is still online
	req.Equal(domain.PrincipalID("alice"), principal)
	req.False(last)
	req.True(r.IsOnline("alice"))

	// When the last device disconnects
	principal, last = r.Unregister("c2")

	// Then the presence record is gone
	req.Equal(domain.PrincipalID("alice"), principal)
	req.True(last)
	req.False(r.IsOnline("alice"))
	req.Empty(r.ListOnline())
	req.Equal(domain.StatusOffline, r.Status("alice"))
}

func TestRegistry_Unregister_UnknownIsNoop(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	r.Register("alice", profile("alice"), mocks.NewClient("c1"))

	principal, last := r.Unregister("nope")
	req.Empty(principal)
	req.False(last)

	// Duplicate disconnect signals are tolerated
	_, last = r.Unregister("c1")
	req.True(last)
	_, last = r.Unregister("c1")
	req.False(last)
}

func TestRegistry_Others_ExcludesOwnConnections(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	a1, a2, b1 := mocks.NewClient("a1"), mocks.NewClient("a2"), mocks.NewClient("b1")
	r.Register("alice", profile("alice"), a1)
	r.Register("alice", profile("alice"), a2)
	r.Register("bob", profile("bob"), b1)

	others := r.Others("alice")

	req.Len(others, 1)
	req.Equal(b1.ID(), others[0].ID())
}

func TestRegistry_SetStatus(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	r.Register("alice", profile("alice"), mocks.NewClient("c1"))

	req.Equal(domain.StatusOnline, r.Status("alice"))
	req.True(r.SetStatus("alice", domain.StatusBusy))
	req.Equal(domain.StatusBusy, r.Status("alice"))
	req.False(r.SetStatus("bob", domain.StatusAway))
}

func TestRegistry_Touch_RefreshesLastSeen(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	r.Register("alice", profile("alice"), mocks.NewClient("c1"))
	before, ok := r.LastSeen("alice")
	req.True(ok)

	r.Touch("c1")
	r.Touch("unknown")

	after, _ := r.LastSeen("alice")
	req.False(after.Before(before))
}

func TestRegistry_CloseAll(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	c1, c2 := mocks.NewClient("c1"), mocks.NewClient("c2")
	r.Register("alice", profile("alice"), c1)
	r.Register("bob", profile("bob"), c2)

	r.CloseAll()

	req.True(c1.Closed())
	req.True(c2.Closed())
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts, lasts := 0, 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := mocks.NewClient(fmt.Sprintf("c-%d", i))
			if r.Register("alice", profile("alice"), c) {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
			if _, last := r.Unregister(c.ID()); last {
				mu.Lock()
				lasts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// Every online transition is matched by exactly one offline transition
	req.Equal(firsts, lasts)
	req.False(r.IsOnline("alice"))
}
