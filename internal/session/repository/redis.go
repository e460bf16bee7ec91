package repository

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mymessenger/backend/internal/session/domain"
)

// DefaultRedisPrefix namespaces every key written by RedisRepository.
const DefaultRedisPrefix = "mm:"

// Key layout:
//
//	<prefix>session:<id>                 hash with the session fields
//	<prefix>session:hash:<refresh hash>  session id
//	<prefix>identity:<id>:sessions       set of session ids
//
// All keys of a session expire at the session's expiry.

// rotateScript swaps the hash index and updates the session hash in one step.
// KEYS[1] old hash key, KEYS[2] new hash key.
// ARGV: now ms, expires ms, new hash, device, ip, session key prefix.
var rotateScript = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id then
  return false
end
local skey = ARGV[6] .. id
local exp = tonumber(redis.call('HGET', skey, 'expires_at'))
if not exp or exp <= tonumber(ARGV[1]) then
  return false
end
redis.call('DEL', KEYS[1])
redis.call('HSET', skey, 'refresh_token_hash', ARGV[3], 'expires_at', ARGV[2], 'last_used_at', ARGV[1])
if ARGV[4] ~= '' then
  redis.call('HSET', skey, 'device_info', ARGV[4])
end
if ARGV[5] ~= '' then
  redis.call('HSET', skey, 'ip_address', ARGV[5])
end
redis.call('SET', KEYS[2], id)
redis.call('PEXPIREAT', KEYS[2], ARGV[2])
redis.call('PEXPIREAT', skey, ARGV[2])
return redis.call('HGETALL', skey)
`)

// RedisRepository stores sessions in Redis. Rotation runs as a Lua script so the
// compare-and-swap on the refresh hash is atomic.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository returns a session repository backed by client. An empty
// prefix selects DefaultRedisPrefix.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) sessionKeyPrefix() string { return r.prefix + "session:" }
func (r *RedisRepository) sessionKey(id string) string { return r.sessionKeyPrefix() + id }
func (r *RedisRepository) hashKey(hash string) string { return r.prefix + "session:hash:" + hash }
func (r *RedisRepository) identityKey(identityID string) string {
	return r.prefix + "identity:" + identityID + ":sessions"
}

// Create stores s and indexes it by refresh hash and identity.
func (r *RedisRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		skey := r.sessionKey(s.ID)
		pipe.HSet(ctx, skey, map[string]any{
			"id":                 s.ID,
			"identity_id":        s.IdentityID,
			"refresh_token_hash": s.RefreshTokenHash,
			"device_info":        s.DeviceInfo,
			"ip_address":         s.IPAddress,
			"expires_at":         s.ExpiresAt.UnixMilli(),
			"last_used_at":       s.LastUsedAt.UnixMilli(),
			"created_at":         s.CreatedAt.UnixMilli(),
		})
		pipe.PExpireAt(ctx, skey, s.ExpiresAt)
		pipe.Set(ctx, r.hashKey(s.RefreshTokenHash), s.ID, 0)
		pipe.PExpireAt(ctx, r.hashKey(s.RefreshTokenHash), s.ExpiresAt)
		pipe.SAdd(ctx, r.identityKey(s.IdentityID), s.ID)
		return nil
	})
	return err
}

// GetLiveByHash returns the live session indexed by hash, or nil.
func (r *RedisRepository) GetLiveByHash(ctx context.Context, hash string, now time.Time) (*domain.Session, error) {
	id, err := r.client.Get(ctx, r.hashKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	s, err := r.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	if s.RefreshTokenHash != hash || !s.IsLive(now) {
		return nil, nil
	}
	return s, nil
}

// Rotate swaps the refresh hash atomically; see rotateScript.
func (r *RedisRepository) Rotate(ctx context.Context, rot domain.Rotation) (*domain.Session, error) {
	fields, err := rotateScript.Run(ctx, r.client,
		[]string{r.hashKey(rot.OldHash), r.hashKey(rot.NewHash)},
		rot.Now.UnixMilli(), rot.ExpiresAt.UnixMilli(), rot.NewHash,
		rot.DeviceInfo, rot.IPAddress, r.sessionKeyPrefix(),
	).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	m := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		m[fields[i]] = fields[i+1]
	}
	return sessionFromHash(m)
}

// DeleteByHash removes the session indexed by hash.
func (r *RedisRepository) DeleteByHash(ctx context.Context, hash string) (bool, error) {
	id, err := r.client.Get(ctx, r.hashKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	s, err := r.load(ctx, id)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, r.client.Del(ctx, r.hashKey(hash)).Err()
	}
	return r.remove(ctx, s)
}

// DeleteByID removes session id if it belongs to identityID.
func (r *RedisRepository) DeleteByID(ctx context.Context, identityID, id string) (bool, error) {
	s, err := r.load(ctx, id)
	if err != nil || s == nil {
		return false, err
	}
	if s.IdentityID != identityID {
		return false, nil
	}
	return r.remove(ctx, s)
}

// DeleteAllByIdentity removes every stored session of identityID.
func (r *RedisRepository) DeleteAllByIdentity(ctx context.Context, identityID string) (int64, error) {
	ids, err := r.client.SMembers(ctx, r.identityKey(identityID)).Result()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		s, err := r.load(ctx, id)
		if err != nil {
			return n, err
		}
		if s == nil {
			continue
		}
		ok, err := r.remove(ctx, s)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if err := r.client.Del(ctx, r.identityKey(identityID)).Err(); err != nil {
		return n, err
	}
	return n, nil
}

// ListLiveByIdentity returns the live sessions of identityID, most recently used
// first. Index entries for sessions that already expired are pruned.
func (r *RedisRepository) ListLiveByIdentity(ctx context.Context, identityID string, now time.Time) ([]*domain.Session, error) {
	ids, err := r.client.SMembers(ctx, r.identityKey(identityID)).Result()
	if err != nil {
		return nil, err
	}
	var out []*domain.Session
	for _, id := range ids {
		s, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if s == nil {
			r.client.SRem(ctx, r.identityKey(identityID), id)
			continue
		}
		if s.IsLive(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

// PurgeExpired deletes sessions whose expiry is at or before now that Redis has
// not evicted yet, and returns how many were removed.
func (r *RedisRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	iter := r.client.Scan(ctx, 0, r.prefix+"identity:*:sessions", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		ids, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return n, err
		}
		for _, id := range ids {
			s, err := r.load(ctx, id)
			if err != nil {
				return n, err
			}
			if s == nil {
				r.client.SRem(ctx, setKey, id)
				continue
			}
			if s.IsLive(now) {
				continue
			}
			ok, err := r.remove(ctx, s)
			if err != nil {
				return n, err
			}
			if ok {
				n++
			}
		}
	}
	return n, iter.Err()
}

func (r *RedisRepository) load(ctx context.Context, id string) (*domain.Session, error) {
	m, err := r.client.HGetAll(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return sessionFromHash(m)
}

func (r *RedisRepository) remove(ctx context.Context, s *domain.Session) (bool, error) {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.sessionKey(s.ID))
		pipe.Del(ctx, r.hashKey(s.RefreshTokenHash))
		pipe.SRem(ctx, r.identityKey(s.IdentityID), s.ID)
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func sessionFromHash(m map[string]string) (*domain.Session, error) {
	expires, err := parseMillis(m["expires_at"])
	if err != nil {
		return nil, err
	}
	lastUsed, err := parseMillis(m["last_used_at"])
	if err != nil {
		return nil, err
	}
	created, err := parseMillis(m["created_at"])
	if err != nil {
		return nil, err
	}
	return &domain.Session{
		ID:               m["id"],
		IdentityID:       m["identity_id"],
		RefreshTokenHash: m["refresh_token_hash"],
		DeviceInfo:       m["device_info"],
		IPAddress:        m["ip_address"],
		ExpiresAt:        expires,
		LastUsedAt:       lastUsed,
		CreatedAt:        created,
	}, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
