package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/ledger"
)

// claimScript returns the outcome (0 won, 1 reclaimed, 2 held, as in
// domain.ClaimOutcome) followed by the row fields.
var claimScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
local outcome = 2
if not status then
  redis.call('HSET', KEYS[1], 'status', 'in_progress', 'token', ARGV[1], 'claimed_at', ARGV[2])
  redis.call('ZADD', KEYS[2], ARGV[2], KEYS[1])
  outcome = 0
elseif status == 'in_progress' and tonumber(ARGV[3]) > 0 then
  local claimed = tonumber(redis.call('HGET', KEYS[1], 'claimed_at'))
  if claimed + tonumber(ARGV[3]) <= tonumber(ARGV[2]) then
    redis.call('HSET', KEYS[1], 'token', ARGV[1], 'claimed_at', ARGV[2])
    redis.call('ZADD', KEYS[2], ARGV[2], KEYS[1])
    outcome = 1
  end
end
local row = redis.call('HMGET', KEYS[1], 'status', 'claimed_at', 'completed_at', 'result')
return {outcome, row[1], row[2], row[3] or '', row[4] or ''}
`)

var commitScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'token') ~= ARGV[1] or redis.call('HGET', KEYS[1], 'status') ~= 'in_progress' then
  return 0
end
redis.call('HSET', KEYS[1], 'status', 'completed', 'result', ARGV[2], 'completed_at', ARGV[3])
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'token') ~= ARGV[1] or redis.call('HGET', KEYS[1], 'status') ~= 'in_progress' then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], KEYS[1])
return 1
`)

var purgeScript = redis.NewScript(`
local keys = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
for _, k in ipairs(keys) do
  redis.call('DEL', k)
end
if #keys > 0 then
  redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
end
return #keys
`)

// RedisStore keeps each key in a hash and indexes claim times in a sorted
// set for purging. Every state change runs as one Lua script, so claims are
// atomic across instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: slotTag(prefix)}
}

// slotTag wraps prefix in a cluster hash tag so every key a script or
// transaction touches lands in the same slot.
func slotTag(prefix string) string {
	if strings.HasPrefix(prefix, "{") && strings.Contains(prefix, "}") {
		return prefix
	}
	return "{" + prefix + "}"
}

var _ ledger.Store = (*RedisStore)(nil)

func (s *RedisStore) hashKey(key string) string { return s.prefix + ":idem:" + key }
func (s *RedisStore) indexKey() string          { return s.prefix + ":idem:claimed" }

func (s *RedisStore) Claim(ctx context.Context, key, token string, now time.Time, staleAfter time.Duration) (domain.ClaimResult, error) {
	vals, err := claimScript.Run(ctx, s.client,
		[]string{s.hashKey(key), s.indexKey()},
		token, now.UnixMilli(), staleAfter.Milliseconds()).Slice()
	if err != nil {
		return domain.ClaimResult{}, err
	}
	if len(vals) != 5 {
		return domain.ClaimResult{}, fmt.Errorf("claim script returned %d values", len(vals))
	}
	outcome, _ := vals[0].(int64)
	rec, err := redisRecord(key, vals[1], vals[2], vals[3], vals[4])
	if err != nil {
		return domain.ClaimResult{}, err
	}
	return domain.ClaimResult{Outcome: domain.ClaimOutcome(outcome), Record: rec}, nil
}

func (s *RedisStore) Commit(ctx context.Context, key, token string, result []byte, now time.Time) error {
	n, err := commitScript.Run(ctx, s.client, []string{s.hashKey(key)}, token, result, now.UnixMilli()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, s.client, []string{s.hashKey(key), s.indexKey()}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	vals, err := s.client.HMGet(ctx, s.hashKey(key), "status", "claimed_at", "completed_at", "result").Result()
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if vals[0] == nil {
		return domain.IdempotencyRecord{}, domain.ErrRecordNotFound
	}
	return redisRecord(key, vals[0], vals[1], vals[2], vals[3])
}

func (s *RedisStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return purgeScript.Run(ctx, s.client, []string{s.indexKey()}, cutoff.UnixMilli()).Int64()
}

func redisRecord(key string, status, claimed, completed, result any) (domain.IdempotencyRecord, error) {
	rec := domain.IdempotencyRecord{Key: key, Status: domain.IdempotencyStatus(redisString(status))}
	ms, err := strconv.ParseInt(redisString(claimed), 10, 64)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("parse claimed_at: %w", err)
	}
	rec.ClaimedAt = time.UnixMilli(ms).UTC()
	if c := redisString(completed); c != "" {
		ms, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return domain.IdempotencyRecord{}, fmt.Errorf("parse completed_at: %w", err)
		}
		ts := time.UnixMilli(ms).UTC()
		rec.CompletedAt = &ts
	}
	if r := redisString(result); r != "" {
		rec.Result = []byte(r)
	}
	return rec, nil
}

func redisString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

// RedisAudit stores entries in a hash, indexes them per request in a list
// and mirrors every append onto a stream for downstream consumers.
type RedisAudit struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAudit(client redis.UniversalClient, prefix string) *RedisAudit {
	return &RedisAudit{client: client, prefix: slotTag(prefix)}
}

var _ ledger.AuditLog = (*RedisAudit)(nil)

func (a *RedisAudit) entriesKey() string                 { return a.prefix + ":audit:entries" }
func (a *RedisAudit) requestKey(requestID string) string { return a.prefix + ":audit:req:" + requestID }
func (a *RedisAudit) streamKey() string                  { return a.prefix + ":audit:stream" }

func (a *RedisAudit) Append(ctx context.Context, entry domain.AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	ok, err := a.client.HSetNX(ctx, a.entriesKey(), entry.ID, body).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("audit entry %s already exists", entry.ID)
	}
	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, a.requestKey(entry.RequestID), entry.ID)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: a.streamKey(),
			Values: map[string]any{
				"id":         entry.ID,
				"kind":       string(entry.Kind),
				"request_id": entry.RequestID,
				"status":     string(entry.Status),
			},
		})
		return nil
	})
	return err
}

func (a *RedisAudit) Get(ctx context.Context, id string) (domain.AuditEntry, error) {
	body, err := a.client.HGet(ctx, a.entriesKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return domain.AuditEntry{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return decodeAudit(body)
}

func (a *RedisAudit) ByRequest(ctx context.Context, requestID string) ([]domain.AuditEntry, error) {
	ids, err := a.client.LRange(ctx, a.requestKey(requestID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := a.client.HMGet(ctx, a.entriesKey(), ids...).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]domain.AuditEntry, 0, len(bodies))
	for _, b := range bodies {
		s := redisString(b)
		if s == "" {
			continue
		}
		entry, err := decodeAudit(s)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
