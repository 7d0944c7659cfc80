package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
	"github.com/redis/go-redis/v9"
)

// swapAccessScript returns 0 when the record is missing, 2 when the stored
// token differs and 1 after a successful swap.
const swapAccessScript = `
local current = redis.call("HGET", KEYS[1], "access_token")
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 2
end
redis.call("HSET", KEYS[1], "access_token", ARGV[2], "updated_at", ARGV[3])
return 1
`

var swapAccessLua = redis.NewScript(swapAccessScript)

// RedisRefreshStore keeps one hash per user. Keys expire together with the
// refresh token so abandoned sessions clean themselves up.
type RedisRefreshStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisRefreshStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisRefreshStore {
	if prefix == "" {
		prefix = "refresh"
	}
	return &RedisRefreshStore{rdb: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisRefreshStore) key(userID uint) string {
	return s.prefix + ":" + strconv.FormatUint(uint64(userID), 10)
}

func (s *RedisRefreshStore) GetRefresh(ctx context.Context, userID uint) (*models.RefreshRecord, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get refresh record: %w", err)
	}
	token, ok := vals["access_token"]
	if !ok {
		return nil, ErrRefreshNotFound
	}

	rec := &models.RefreshRecord{ID: userID, UserID: userID, AccessToken: token}
	rec.CreatedAt = parseUnix(vals["created_at"])
	rec.UpdatedAt = parseUnix(vals["updated_at"])
	return rec, nil
}

func (s *RedisRefreshStore) PutRefresh(ctx context.Context, rec *models.RefreshRecord) error {
	now := s.now()
	key := s.key(rec.UserID)

	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, key, "created_at", now.Unix())
		p.HSet(ctx, key, "access_token", rec.AccessToken, "updated_at", now.Unix())
		if s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put refresh record: %w", err)
	}

	rec.ID = rec.UserID
	rec.UpdatedAt = now
	return nil
}

func (s *RedisRefreshStore) DeleteRefreshByUserID(ctx context.Context, userID uint) error {
	return s.rdb.Del(ctx, s.key(userID)).Err()
}

func (s *RedisRefreshStore) SwapAccessToken(ctx context.Context, userID uint, presented, next string) error {
	res, err := swapAccessLua.Run(ctx, s.rdb, []string{s.key(userID)}, presented, next, s.now().Unix()).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrRefreshNotFound
		}
		return fmt.Errorf("swap access token: %w", err)
	}

	switch res {
	case 1:
		return nil
	case 0:
		return ErrRefreshNotFound
	default:
		return ErrAccessTokenMismatch
	}
}

func parseUnix(s string) time.Time {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(v, 0)
}
