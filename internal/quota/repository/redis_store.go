package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	quotadomain "github.com/natebag/MLG-BETA/internal/quota/domain"
	redis "github.com/redis/go-redis/v9"
)

const keyQuotaState = "quota:%s:%s"

// The hash expires when the period ends, so a missing key reads as an
// untouched period.
const consumeScript = `
local period = ARGV[1]
local limit = tonumber(ARGV[2])
local expireAt = tonumber(ARGV[3])
local now = ARGV[4]

local data = redis.call("HMGET", KEYS[1], "period", "used")
local used = tonumber(data[2])
if data[1] ~= period or used == nil then
  used = 0
end

if used >= limit then
  return {0, used}
end

used = used + 1
redis.call("HSET", KEYS[1], "period", period, "used", used, "updated", now)
redis.call("PEXPIREAT", KEYS[1], expireAt)

return {1, used}
`

const releaseScript = `
local data = redis.call("HMGET", KEYS[1], "period", "used")
local used = tonumber(data[2])
if data[1] ~= ARGV[1] or used == nil or used <= 0 then
  return 0
end
redis.call("HSET", KEYS[1], "used", used - 1, "updated", ARGV[2])
return 1
`

type redisStore struct {
	client  *redis.Client
	consume *redis.Script
	release *redis.Script
}

// NewRedisStore returns a quota store that keeps counters in redis hashes.
func NewRedisStore(client *redis.Client) quotadomain.Store {
	return &redisStore{
		client:  client,
		consume: redis.NewScript(consumeScript),
		release: redis.NewScript(releaseScript),
	}
}

func (s *redisStore) TryConsume(ctx context.Context, slot quotadomain.Slot, now time.Time) (int, bool, error) {
	if s == nil || s.client == nil {
		return 0, false, errors.New("quota redis client not configured")
	}
	res, err := s.consume.Run(
		ctx,
		s.client,
		[]string{quotaKey(slot.Principal, slot.ActionKind)},
		slot.PeriodKey,
		slot.Limit,
		slot.ResetsAt.UnixMilli(),
		now.UTC().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) < 2 {
		return 0, false, errors.New("invalid quota script response")
	}
	return int(res[1]), res[0] == 1, nil
}

func (s *redisStore) Release(ctx context.Context, slot quotadomain.Slot, now time.Time) error {
	if s == nil || s.client == nil {
		return errors.New("quota redis client not configured")
	}
	return s.release.Run(
		ctx,
		s.client,
		[]string{quotaKey(slot.Principal, slot.ActionKind)},
		slot.PeriodKey,
		now.UTC().UnixMilli(),
	).Err()
}

func (s *redisStore) Get(ctx context.Context, principal, actionKind string) (*quotadomain.QuotaState, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("quota redis client not configured")
	}
	values, err := s.client.HGetAll(ctx, quotaKey(principal, actionKind)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	used, _ := strconv.Atoi(values["used"])
	updated, _ := strconv.ParseInt(values["updated"], 10, 64)
	return &quotadomain.QuotaState{
		Principal:  principal,
		ActionKind: actionKind,
		PeriodKey:  values["period"],
		UsedCount:  used,
		UpdatedAt:  time.UnixMilli(updated).UTC(),
	}, nil
}

// DeleteStale is a no-op; redis expires counters at the end of their period.
func (s *redisStore) DeleteStale(ctx context.Context, periodEndedBefore time.Time) (int64, error) {
	return 0, nil
}

func quotaKey(principal, actionKind string) string {
	return fmt.Sprintf(keyQuotaState, actionKind, principal)
}
