package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 8

// RedisStore keeps one binary record per user and a sorted set of session expiry
// times in unix milliseconds for the cleanup sweep.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. prefix namespaces every key.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sentinel"
	}
	return &RedisStore{redis: rdb, prefix: prefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":user:" + userID
}

func (s *RedisStore) expiryKey() string {
	return s.prefix + ":session-expiry"
}

func (s *RedisStore) Get(ctx context.Context, userID string) (Record, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	rec, err := Decode(data)
	if err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// Update uses WATCH on the record key and commits with MULTI/EXEC, retrying a
// bounded number of times when another writer wins.
func (s *RedisStore) Update(ctx context.Context, userID string, fn UpdateFunc) (Record, error) {
	key := s.key(userID)
	var (
		result Record
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		rec := Record{UserID: userID}
		exists := true
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			exists = false
		case err != nil:
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		default:
			decoded, err := Decode(data)
			if err != nil {
				return err
			}
			rec = *decoded
		}

		next := rec
		changed, err := fn(&next, exists)
		if err != nil {
			result = rec
			fnErr = err
			return err
		}
		if !changed {
			result = rec
			return nil
		}
		next.UserID = userID
		encoded, err := Encode(&next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			if next.CurrentSessionID != "" {
				pipe.ZAdd(ctx, s.expiryKey(), redis.Z{
					Score:  float64(next.SessionExpiresAt.UnixMilli()),
					Member: userID,
				})
			} else {
				pipe.ZRem(ctx, s.expiryKey(), userID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if fnErr != nil || errors.Is(err, ErrRedisUnavailable) || errors.Is(err, ErrRecordCorrupt) {
			return result, err
		}
		return result, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return result, ErrUpdateConflict
}

func (s *RedisStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	ids, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), opt).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}
