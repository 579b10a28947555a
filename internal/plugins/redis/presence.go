package redis

import (
	"context"
	"strconv"
	"time"

	"pulse/internal/core/contracts"
	"pulse/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

const onlineKey = "presence:online"

func principalKey(id domain.PrincipalID) string {
	return "presence:" + string(id)
}

// PresenceMirror keeps a read-only copy of process presence in Redis:
// a hash per principal with status and last_seen, and a sorted set of
// online principals scored by the unix time of their last refresh.
type PresenceMirror struct {
	rdb *redis.Client
	now func() time.Time
}

var _ contracts.PresenceMirror = (*PresenceMirror)(nil)

func NewPresenceMirror(rdb *redis.Client) *PresenceMirror {
	return &PresenceMirror{
		rdb: rdb,
		now: time.Now,
	}
}

// SetOnline writes the principal's status and refreshes both the hash TTL
// and its score in the online set.
func (p *PresenceMirror) SetOnline(
	ctx context.Context,
	id domain.PrincipalID,
	status domain.Status,
	ttl time.Duration,
) error {
	now := p.now()
	key := principalKey(id)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "status", string(status), "last_seen", now.Unix())
		pipe.Expire(ctx, key, ttl)
		pipe.ZAdd(ctx, onlineKey, redis.Z{
			Score:  float64(now.Unix()),
			Member: string(id),
		})
		return nil
	})
	return err
}

// SetOffline drops the principal from the online set. The hash is kept,
// without expiry, so last_seen stays readable.
func (p *PresenceMirror) SetOffline(ctx context.Context, id domain.PrincipalID, lastSeen time.Time) error {
	key := principalKey(id)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "status", string(domain.StatusOffline), "last_seen", lastSeen.Unix())
		pipe.Persist(ctx, key)
		pipe.ZRem(ctx, onlineKey, string(id))
		return nil
	})
	return err
}

// Online returns principals refreshed within the window, pruning stale members first.
func (p *PresenceMirror) Online(ctx context.Context, within time.Duration) ([]domain.PrincipalID, error) {
	threshold := strconv.FormatInt(p.now().Add(-within).Unix(), 10)
	if err := p.rdb.ZRemRangeByScore(ctx, onlineKey, "-inf", "("+threshold).Err(); err != nil {
		return nil, err
	}
	members, err := p.rdb.ZRangeByScore(ctx, onlineKey, &redis.ZRangeBy{
		Min: threshold,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]domain.PrincipalID, len(members))
	for i, m := range members {
		ids[i] = domain.PrincipalID(m)
	}
	return ids, nil
}
