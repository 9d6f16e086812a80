package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps breaker state in a Redis hash per service so transitions
// stay atomic across worker processes. Scripts return {prev_state, next_state}
// (plus an allow flag for Acquire); last-writer-wins on coarse fields is fine
// since a stale OPEN read only costs one extra short-circuited call.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func stateKey(service string) string {
	return "consilium:cb:" + service
}

// KEYS[1] = state hash
// ARGV[1] = now (unix ms), ARGV[2] = recovery timeout ms, ARGV[3] = ttl seconds
var acquireScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local recovery = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local state = redis.call('HGET', key, 'state')
if not state then state = 'closed' end

if state == 'open' then
    local opened = tonumber(redis.call('HGET', key, 'opened_at') or '0')
    if now - opened >= recovery then
        redis.call('HSET', key, 'state', 'half_open', 'successes', 0)
        state = 'half_open'
    end
end

redis.call('EXPIRE', key, ttl)
if state == 'open' then
    return {state, 0}
end
return {state, 1}
`)

// KEYS[1] = state hash
// ARGV[1] = success threshold, ARGV[2] = ttl seconds
var successScript = redis.NewScript(`
local key = KEYS[1]
local threshold = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local state = redis.call('HGET', key, 'state')
if not state then state = 'closed' end
local prev = state

if state == 'half_open' then
    local s = redis.call('HINCRBY', key, 'successes', 1)
    if s >= threshold then
        redis.call('HSET', key, 'state', 'closed', 'failures', 0, 'successes', 0)
        state = 'closed'
    end
elseif state == 'closed' then
    redis.call('HSET', key, 'failures', 0)
end

redis.call('EXPIRE', key, ttl)
return {prev, state}
`)

// KEYS[1] = state hash
// ARGV[1] = failure threshold, ARGV[2] = now (unix ms), ARGV[3] = ttl seconds
var failureScript = redis.NewScript(`
local key = KEYS[1]
local threshold = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local state = redis.call('HGET', key, 'state')
if not state then state = 'closed' end
local prev = state

if state == 'half_open' then
    redis.call('HSET', key, 'state', 'open', 'opened_at', now, 'successes', 0)
    state = 'open'
elseif state == 'closed' then
    local f = redis.call('HINCRBY', key, 'failures', 1)
    if f >= threshold then
        redis.call('HSET', key, 'state', 'open', 'opened_at', now)
        state = 'open'
    end
end

redis.call('EXPIRE', key, ttl)
return {prev, state}
`)

func ttlSeconds(st Settings) int64 {
	ttl := int64(st.StateTTL.Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	return ttl
}

func (r *RedisStore) Acquire(ctx context.Context, service string, st Settings) (State, bool, error) {
	res, err := acquireScript.Run(ctx, r.rdb, []string{stateKey(service)},
		time.Now().UnixMilli(), st.RecoveryTimeout.Milliseconds(), ttlSeconds(st),
	).Slice()
	if err != nil {
		return StateClosed, true, fmt.Errorf("breaker acquire %s: %w", service, err)
	}
	state, allowed, err := parsePair(res)
	if err != nil {
		return StateClosed, true, err
	}
	return state, allowed == 1, nil
}

func (r *RedisStore) Success(ctx context.Context, service string, st Settings) (State, State, error) {
	res, err := successScript.Run(ctx, r.rdb, []string{stateKey(service)},
		st.SuccessThreshold, ttlSeconds(st),
	).Slice()
	if err != nil {
		return StateClosed, StateClosed, fmt.Errorf("breaker success %s: %w", service, err)
	}
	return parseStates(res)
}

func (r *RedisStore) Failure(ctx context.Context, service string, st Settings) (State, State, error) {
	res, err := failureScript.Run(ctx, r.rdb, []string{stateKey(service)},
		st.FailureThreshold, time.Now().UnixMilli(), ttlSeconds(st),
	).Slice()
	if err != nil {
		return StateClosed, StateClosed, fmt.Errorf("breaker failure %s: %w", service, err)
	}
	return parseStates(res)
}

func (r *RedisStore) Snapshot(ctx context.Context, service string) (Snapshot, error) {
	vals, err := r.rdb.HGetAll(ctx, stateKey(service)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("breaker snapshot %s: %w", service, err)
	}
	snap := Snapshot{State: StateClosed}
	if s, ok := vals["state"]; ok && s != "" {
		snap.State = State(s)
	}
	fmt.Sscanf(vals["failures"], "%d", &snap.Failures)
	fmt.Sscanf(vals["successes"], "%d", &snap.Successes)
	var openedMs int64
	fmt.Sscanf(vals["opened_at"], "%d", &openedMs)
	if openedMs > 0 {
		snap.OpenedAt = time.UnixMilli(openedMs)
	}
	return snap, nil
}

func (r *RedisStore) Reset(ctx context.Context, service string) error {
	return r.rdb.Del(ctx, stateKey(service)).Err()
}

func parsePair(res []interface{}) (State, int64, error) {
	if len(res) != 2 {
		return StateClosed, 1, fmt.Errorf("breaker script: unexpected reply %v", res)
	}
	s, _ := res[0].(string)
	n, _ := res[1].(int64)
	return State(s), n, nil
}

func parseStates(res []interface{}) (State, State, error) {
	if len(res) != 2 {
		return StateClosed, StateClosed, fmt.Errorf("breaker script: unexpected reply %v", res)
	}
	prev, _ := res[0].(string)
	next, _ := res[1].(string)
	return State(prev), State(next), nil
}
