package memory

import (
	"context"
	"sort"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-engine/internal/storage/kv"
)

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "coupon:a")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Set(ctx, "coupon:a", []byte("1")))
	require.ErrorIs(t, s.SetNX(ctx, "coupon:a", []byte("2")), kv.ErrExists)
	require.NoError(t, s.SetNX(ctx, "coupon:b", []byte("2")))
	require.NoError(t, s.Set(ctx, "apikey:x", []byte("k")))

	v, err := s.Get(ctx, "coupon:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	keys, err := s.Keys(ctx, "coupon:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"coupon:a", "coupon:b"}, keys)

	vals, err := s.GetMany(ctx, []string{"coupon:b", "coupon:missing", "coupon:a"})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("2"), nil, []byte("1")}, vals)

	require.NoError(t, s.Delete(ctx, "coupon:a"))
	require.ErrorIs(t, s.Delete(ctx, "coupon:a"), kv.ErrNotFound)
	assert.Equal(t, 2, s.Len())
}

func TestStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()

	in := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", in))
	in[0] = 'x'

	out, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)

	out[0] = 'y'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Update(ctx, "missing", func(b []byte) ([]byte, error) { return b, nil })
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("1")))
	require.NoError(t, s.Update(ctx, "k", func(b []byte) ([]byte, error) {
		return append(b, '2'), nil
	}))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("12"), v)

	boom := errors.New("boom")
	err = s.Update(ctx, "k", func([]byte) ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	v, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("12"), v)
}

func TestStore_PingHonorsContext(t *testing.T) {
	s := New()
	require.NoError(t, s.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Ping(ctx), context.Canceled)
}
