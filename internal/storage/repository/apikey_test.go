package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/internal/storage/memory"
)

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := NewAPIKeyRepository(store)

	hash := auth.HashKey([]byte("pepper"), "raw-key")
	require.NoError(t, repo.Save(ctx, &auth.APIKeyInfo{ID: "k1", Name: "admin", KeyHash: hash}))

	raw, err := store.Get(ctx, "apikey:"+hash)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"admin"`)

	info, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "k1", info.ID)
	assert.False(t, info.CreatedAt.IsZero())

	_, err = repo.FindByHash(ctx, "nope")
	require.ErrorIs(t, err, auth.ErrKeyNotFound)

	require.Error(t, repo.Save(ctx, &auth.APIKeyInfo{ID: "k2"}))
}
