package threat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const deleteExpiredScript = `
local ips = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, ip in ipairs(ips) do
  redis.call("DEL", ARGV[2] .. ip)
end
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
return #ips
`

var deleteExpiredLua = redis.NewScript(deleteExpiredScript)

// RedisStore keeps one JSON value per blocked IP with a TTL ending at ExpiresAt,
// plus a sorted-set index scored by expiry in unix milliseconds.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. prefix namespaces every key; now defaults to
// time.Now and is used to turn ExpiresAt into a TTL.
func NewRedisStore(rdb redis.UniversalClient, prefix string, now func() time.Time) *RedisStore {
	if prefix == "" {
		prefix = "sentinel"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{redis: rdb, prefix: prefix, now: now}
}

func (s *RedisStore) entryPrefix() string {
	return s.prefix + ":block:"
}

func (s *RedisStore) key(ip string) string {
	return s.entryPrefix() + ip
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":blocks"
}

func (s *RedisStore) Upsert(ctx context.Context, e Entry) error {
	ttl := e.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		_, err := s.Delete(ctx, e.IP)
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(e.IP), data, ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(e.ExpiresAt.UnixMilli()), Member: e.IP})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlockStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, ip string) (Entry, error) {
	data, err := s.redis.Get(ctx, s.key(ip)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, ErrNotBlocked
		}
		return Entry{}, fmt.Errorf("%w: %v", ErrBlockStoreUnavailable, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: corrupt entry: %v", ErrBlockStoreUnavailable, err)
	}
	return e, nil
}

func (s *RedisStore) Delete(ctx context.Context, ip string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(ip))
		pipe.ZRem(ctx, s.indexKey(), ip)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBlockStoreUnavailable, err)
	}
	return del.Val() > 0, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	ips, err := s.redis.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlockStoreUnavailable, err)
	}
	if len(ips) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ips))
	for i, ip := range ips {
		keys[i] = s.key(ip)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlockStoreUnavailable, err)
	}

	out := make([]Entry, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// key already expired out of redis; the index entry goes on next sweep
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := deleteExpiredLua.Run(ctx, s.redis,
		[]string{s.indexKey()},
		strconv.FormatInt(now.UnixMilli(), 10),
		s.entryPrefix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBlockStoreUnavailable, err)
	}
	return n, nil
}
