// Package presence records a coarse last-seen timestamp per user in
// redis. It is advisory display data, written on connect/disconnect and
// read by the REST surface; nothing gates on it.
package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:last:"

// Entries expire on their own so departed users age out of redis.
const ttl = 30 * 24 * time.Hour

type store interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

type Presence struct {
	rdb store
}

func New(rdb store) *Presence { return &Presence{rdb: rdb} }

// Touch stamps the user as seen now.
func (p *Presence) Touch(ctx context.Context, userID int64) error {
	key := keyPrefix + strconv.FormatInt(userID, 10)
	return p.rdb.Set(ctx, key, time.Now().UnixMilli(), ttl).Err()
}

// LastSeen returns the stored timestamp; ok is false when the user has
// never been seen (or the entry expired).
func (p *Presence) LastSeen(ctx context.Context, userID int64) (time.Time, bool, error) {
	key := keyPrefix + strconv.FormatInt(userID, 10)
	v, err := p.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}
