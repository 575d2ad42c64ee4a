package redis

import "github.com/redis/go-redis/v9"

/* Job state moves between sorted sets only inside these scripts so every transition is atomic
 * Scores: waiting = priority rank then enqueue time, delayed = ready time,
 * active = lease deadline, completed/failed = finish time (all in unix ms)
 */

// claimScript pops the next waiting job and leases it to one consumer
// KEYS: waiting, active  ARGV: now, lease deadline, token, job key prefix
var claimScript = redis.NewScript(`
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
	return false
end
local id = popped[1]
local jobKey = ARGV[4] .. id
if redis.call('EXISTS', jobKey) == 0 then
	return false
end
redis.call('ZADD', KEYS[2], ARGV[2], id)
redis.call('HSET', jobKey, 'state', 'active', 'token', ARGV[3], 'processed_on', ARGV[1])
return {id, redis.call('HGETALL', jobKey)}
`)

// promoteScript moves due jobs of a schedule set (delayed or expired leases) back to waiting
// KEYS: source, waiting  ARGV: now, limit, job key prefix
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	local jobKey = ARGV[3] .. id
	local score = redis.call('HGET', jobKey, 'score')
	if score then
		redis.call('ZADD', KEYS[2], score, id)
		redis.call('HSET', jobKey, 'state', 'waiting')
		redis.call('HDEL', jobKey, 'token')
	end
end
return #ids
`)

// extendScript pushes the lease deadline of a job still held by the token
// KEYS: active  ARGV: id, token, lease deadline, job key prefix
var extendScript = redis.NewScript(`
if redis.call('HGET', ARGV[4] .. ARGV[1], 'token') ~= ARGV[2] then
	return 0
end
redis.call('ZADD', KEYS[1], 'XX', ARGV[3], ARGV[1])
return 1
`)

// retryScript hands a failed run back to the delayed set
// KEYS: active, delayed  ARGV: id, token, ready at, job key prefix, attempts made, failed reason
var retryScript = redis.NewScript(`
local jobKey = ARGV[4] .. ARGV[1]
if redis.call('HGET', jobKey, 'token') ~= ARGV[2] then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('HSET', jobKey, 'state', 'delayed', 'attempts_made', ARGV[5], 'failed_reason', ARGV[6])
redis.call('HDEL', jobKey, 'token')
return 1
`)

// finishScript moves a job to completed or failed and trims that set by age and size
// KEYS: active, finished  ARGV: id, token, now, job key prefix, state, attempts made,
// failed reason, age cutoff, max count, hash ttl seconds
var finishScript = redis.NewScript(`
local jobKey = ARGV[4] .. ARGV[1]
if redis.call('HGET', jobKey, 'token') ~= ARGV[2] then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('HSET', jobKey, 'state', ARGV[5], 'attempts_made', ARGV[6], 'failed_reason', ARGV[7], 'finished_on', ARGV[3])
redis.call('HDEL', jobKey, 'token')
redis.call('EXPIRE', jobKey, ARGV[10])

local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[8])
for _, id in ipairs(expired) do
	redis.call('DEL', ARGV[4] .. id)
end
if #expired > 0 then
	redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', ARGV[8])
end

local excess = redis.call('ZCARD', KEYS[2]) - tonumber(ARGV[9])
if excess > 0 then
	local oldest = redis.call('ZRANGE', KEYS[2], 0, excess - 1)
	for _, id in ipairs(oldest) do
		redis.call('DEL', ARGV[4] .. id)
	end
	redis.call('ZREMRANGEBYRANK', KEYS[2], 0, excess - 1)
end
return 1
`)
