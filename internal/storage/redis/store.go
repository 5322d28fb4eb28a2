package redis

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/coupon-engine/internal/storage/kv"
)

const defaultScanCount = 500

// compareAndSetScript replaces KEYS[1] with ARGV[2] only while it still
// holds ARGV[1]. It returns 1 on success, 0 on mismatch and -1 when the key
// is gone.
const compareAndSetScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then
	return -1
end
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'KEEPTTL')
return 1
`

var _ kv.Store = (*Store)(nil)

// Store is a kv.Store backed by Redis.
type Store struct {
	rdb       cmdable
	scanCount int64
}

// NewStore wraps a connected client. scanCount is the SCAN COUNT hint; zero
// selects a default.
func NewStore(client *redis.Client, scanCount int64) *Store {
	return newStore(client, scanCount)
}

func newStore(rdb cmdable, scanCount int64) *Store {
	if scanCount <= 0 {
		scanCount = defaultScanCount
	}
	return &Store{rdb: rdb, scanCount: scanCount}
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get %q", key)
	}
	return v, nil
}

// Set implements kv.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	return nil
}

// SetNX implements kv.Store.
func (s *Store) SetNX(ctx context.Context, key string, value []byte) error {
	ok, err := s.rdb.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return errors.Wrapf(err, "setnx %q", key)
	}
	if !ok {
		return kv.ErrExists
	}
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return errors.Wrapf(err, "del %q", key)
	}
	if n == 0 {
		return kv.ErrNotFound
	}
	return nil
}

// Keys implements kv.Store with a SCAN cursor loop. Keys reported twice by
// SCAN are returned once.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
		seen   = make(map[string]struct{})
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", s.scanCount).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "scan %q", prefix)
		}
		for _, k := range batch {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// GetMany implements kv.Store with MGET.
func (s *Store) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "mget")
	}

	out := make([][]byte, len(keys))
	for i, v := range vals {
		switch v := v.(type) {
		case nil:
		case string:
			out[i] = []byte(v)
		case []byte:
			out[i] = v
		default:
			return nil, errors.Errorf("mget: unexpected value type %T for %q", v, keys[i])
		}
	}
	return out, nil
}

// Update implements kv.Store: it reads the key, applies fn and writes the
// result back with a compare-and-set script.
func (s *Store) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	cur, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}

	res, err := s.rdb.Eval(ctx, compareAndSetScript, []string{key}, cur, next).Int64()
	if err != nil {
		return errors.Wrapf(err, "compare-and-set %q", key)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return kv.ErrNotFound
	default:
		return kv.ErrConflict
	}
}

// Ping implements kv.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
