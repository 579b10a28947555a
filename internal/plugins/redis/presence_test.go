package redis

import (
	"context"
	"testing"
	"time"

	"pulse/internal/config"
	"pulse/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newMirror(t *testing.T) (*PresenceMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), &config.RedisConfig{
		URL:         "redis://" + mr.Addr(),
		DialTimeout: time.Second,
		PoolSize:    2,
		PingTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPresenceMirror(rdb), mr
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), &config.RedisConfig{URL: "http://nope", PingTimeout: time.Second})
	require.Error(t, err)
}

func TestPresenceMirror_SetOnline(t *testing.T) {
	req := require.New(t)
	m, mr := newMirror(t)
	now := time.Unix(1_800_000_000, 0)
	m.now = func() time.Time { return now }

	req.NoError(m.SetOnline(context.Background(), "alice", domain.StatusAway, 90*time.Second))

	req.Equal("away", mr.HGet("presence:alice", "status"))
	req.Equal("1800000000", mr.HGet("presence:alice", "last_seen"))
	req.Equal(90*time.Second, mr.TTL("presence:alice"))
	score, err := mr.ZScore(onlineKey, "alice")
	req.NoError(err)
	req.Equal(float64(now.Unix()), score)
}

func TestPresenceMirror_SetOffline_KeepsLastSeen(t *testing.T) {
	req := require.New(t)
	m, mr := newMirror(t)
	ctx := context.Background()
	req.NoError(m.SetOnline(ctx, "alice", domain.StatusOnline, time.Minute))

	seen := time.Unix(1_800_000_100, 0)
	req.NoError(m.SetOffline(ctx, "alice", seen))

	req.Equal("offline", mr.HGet("presence:alice", "status"))
	req.Equal("1800000100", mr.HGet("presence:alice", "last_seen"))
	req.Zero(mr.TTL("presence:alice"))
	members, err := mr.ZMembers(onlineKey)
	req.NoError(err)
	req.NotContains(members, "alice")
}

func TestPresenceMirror_Online_PrunesStale(t *testing.T) {
	req := require.New(t)
	m, mr := newMirror(t)
	now := time.Unix(1_800_000_000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	// Given bob refreshed two minutes ago and alice just now
	_, err := mr.ZAdd(onlineKey, float64(now.Add(-2*time.Minute).Unix()), "bob")
	req.NoError(err)
	req.NoError(m.SetOnline(ctx, "alice", domain.StatusOnline, time.Minute))

	// When online principals within 90s are listed
	got, err := m.Online(ctx, 90*time.Second)

	// Then only alice remains and bob is pruned from the set
	req.NoError(err)
	req.Equal([]domain.PrincipalID{"alice"}, got)
	members, err := mr.ZMembers(onlineKey)
	req.NoError(err)
	req.Equal([]string{"alice"}, members)
}

func TestPresenceMirror_ServerDown(t *testing.T) {
	m, mr := newMirror(t)
	mr.Close()

	require.Error(t, m.SetOnline(context.Background(), "alice", domain.StatusOnline, time.Minute))
}
