package progress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// completeBatch adds the batch index to the done set and, when the set
// reaches the total, claims the finalize key. Running it as one script makes
// the add-compare-claim step linearizable across workers.
var completeBatch = redis.NewScript(`
local added = redis.call('SADD', KEYS[1], ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[1])
local done = redis.call('SCARD', KEYS[1])
local total = tonumber(redis.call('GET', KEYS[2]) or '0')
local claimed = 0
if added == 1 and total > 0 and done >= total then
  if redis.call('SET', KEYS[3], '1', 'NX', 'EX', ARGV[1]) then
    claimed = 1
  end
end
return {done, total, claimed, added}
`)

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) AppendLog(ctx context.Context, scanID uuid.UUID, line string) error {
	k := keysFor(scanID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, k.logs, line)
	pipe.Expire(ctx, k.logs, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending log: %w", err)
	}
	return nil
}

func (s *RedisStore) Logs(ctx context.Context, scanID uuid.UUID) ([]string, error) {
	lines, err := s.rdb.LRange(ctx, keysFor(scanID).logs, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading logs: %w", err)
	}
	return lines, nil
}

func (s *RedisStore) IncrCount(ctx context.Context, scanID uuid.UUID, kind string, delta int64) error {
	k := keysFor(scanID)
	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, k.stats, kind, delta)
	pipe.Expire(ctx, k.stats, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incrementing %s: %w", kind, err)
	}
	return nil
}

func (s *RedisStore) Counts(ctx context.Context, scanID uuid.UUID) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, keysFor(scanID).stats).Result()
	if err != nil {
		return nil, fmt.Errorf("reading counts: %w", err)
	}
	counts := make(map[string]int64, len(raw))
	for kind, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		counts[kind] = n
	}
	return counts, nil
}

func (s *RedisStore) InitBatches(ctx context.Context, scanID uuid.UUID, total int) error {
	k := keysFor(scanID)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, k.total, total, s.ttl)
	pipe.Del(ctx, k.done)
	pipe.Del(ctx, k.finalize)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing batch counters: %w", err)
	}
	return nil
}

func (s *RedisStore) CompleteBatch(ctx context.Context, scanID uuid.UUID, index int) (BatchResult, error) {
	k := keysFor(scanID)
	vals, err := completeBatch.Run(ctx, s.rdb, []string{k.done, k.total, k.finalize}, int64(s.ttl.Seconds()), index).Int64Slice()
	if err != nil {
		return BatchResult{}, fmt.Errorf("completing batch: %w", err)
	}
	if len(vals) != 4 {
		return BatchResult{}, errors.New("completing batch: unexpected script reply")
	}
	return BatchResult{Done: vals[0], Total: vals[1], Claimed: vals[2] == 1, Duplicate: vals[3] == 0}, nil
}

func (s *RedisStore) BatchDone(ctx context.Context, scanID uuid.UUID, index int) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, keysFor(scanID).done, index).Result()
	if err != nil {
		return false, fmt.Errorf("reading batch state: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) RequestCancel(ctx context.Context, scanID uuid.UUID) error {
	if err := s.rdb.Set(ctx, keysFor(scanID).cancel, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("setting cancel flag: %w", err)
	}
	return nil
}

func (s *RedisStore) CancelRequested(ctx context.Context, scanID uuid.UUID) (bool, error) {
	n, err := s.rdb.Exists(ctx, keysFor(scanID).cancel).Result()
	if err != nil {
		return false, fmt.Errorf("reading cancel flag: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Clear(ctx context.Context, scanID uuid.UUID) error {
	if err := s.rdb.Del(ctx, keysFor(scanID).all()...).Err(); err != nil {
		return fmt.Errorf("clearing scan keys: %w", err)
	}
	return nil
}
