// Package ordering tracks the last applied version of each indexed record so
// change events delivered out of order cannot regress the search index.
package ordering

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// advanceScript stores the incoming state for KEYS[1] unless it is older
// than the stored one. Equal versions apply in arrival order, because the
// record source does not always move the version on update, except that an
// upsert never overrides a delete tombstone at the same version. States are
// "<version>" or "<version>:d" for tombstones. Returns {applied, previous}
// with previous as the raw stored state.
var advanceScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local incoming = tonumber(ARGV[1])
if current then
	local sep = string.find(current, ':', 1, true)
	local previous = tonumber(current)
	if sep then previous = tonumber(string.sub(current, 1, sep - 1)) end
	if incoming < previous then return {0, current} end
	if incoming == previous and sep and ARGV[2] == '' then return {0, current} end
end
local state = ARGV[1] .. ARGV[2]
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], state, 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], state)
end
return {1, current or ''}
`)

// rollbackScript restores ARGV[2] only while KEYS[1] still holds ARGV[1], so
// a concurrent newer advance is never undone.
var rollbackScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then return 0 end
if ARGV[2] == '' then
	redis.call('DEL', KEYS[1])
elseif tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

const tombstoneSuffix = ":d"

// RedisStore keeps one version key per record id.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL. ttl bounds how long a version (and so a
// delete tombstone) is remembered; zero keeps versions forever.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "note-version:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Advance records version for id unless an equal or newer state already
// rules it out. tombstone marks a delete, which an upsert at the same
// version cannot override. It returns the previous raw state, empty when
// none, for Rollback.
func (s *RedisStore) Advance(ctx context.Context, id string, version int64, tombstone bool) (string, bool, error) {
	res, err := advanceScript.Run(ctx, s.client, []string{s.key(id)},
		strconv.FormatInt(version, 10), suffix(tombstone), s.ttl.Milliseconds()).Slice()
	if err != nil {
		return "", false, fmt.Errorf("advance version for %s: %w", id, err)
	}
	if len(res) != 2 {
		return "", false, fmt.Errorf("advance version for %s: unexpected reply %v", id, res)
	}
	applied, _ := res[0].(int64)
	previous, _ := res[1].(string)
	return previous, applied == 1, nil
}

// Rollback undoes an Advance whose index write failed, so redelivery of the
// same event is not mistaken for a stale one.
func (s *RedisStore) Rollback(ctx context.Context, id string, version int64, tombstone bool, previous string) error {
	state := strconv.FormatInt(version, 10) + suffix(tombstone)
	err := rollbackScript.Run(ctx, s.client, []string{s.key(id)},
		state, previous, s.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("rollback version for %s: %w", id, err)
	}
	return nil
}

// Version returns the stored version for id, zero when none, and whether it
// is a delete tombstone.
func (s *RedisStore) Version(ctx context.Context, id string) (int64, bool, error) {
	state, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read version for %s: %w", id, err)
	}
	raw, tombstone := strings.CutSuffix(state, tombstoneSuffix)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse version for %s: %w", id, err)
	}
	return version, tombstone, nil
}

func suffix(tombstone bool) string {
	if tombstone {
		return tombstoneSuffix
	}
	return ""
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
