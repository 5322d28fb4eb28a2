package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/internal/storage/kv"
)

const apiKeyPrefix = "apikey:"

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository stores API keys as JSON under apikey:<hash>.
type APIKeyRepository struct {
	store kv.Store
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given store.
func NewAPIKeyRepository(store kv.Store) *APIKeyRepository {
	return &APIKeyRepository{store: store}
}

// FindByHash looks up an API key by its HMAC-SHA256 hash. It returns
// auth.ErrKeyNotFound when no key matches.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	data, err := r.store.Get(ctx, apiKeyPrefix+hash)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, errors.Wrap(err, "find api key by hash")
	}

	var info auth.APIKeyInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrap(err, "decode api key")
	}
	return &info, nil
}

// Save stores info under its hash, replacing an existing entry.
func (r *APIKeyRepository) Save(ctx context.Context, info *auth.APIKeyInfo) error {
	if info.KeyHash == "" {
		return errors.New("api key hash is required")
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "encode api key")
	}
	if err := r.store.Set(ctx, apiKeyPrefix+info.KeyHash, data); err != nil {
		return errors.Wrap(err, "save api key")
	}
	return nil
}
