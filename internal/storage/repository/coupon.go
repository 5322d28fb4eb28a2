// Package repository maps domain aggregates onto a kv.Store.
package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/storage/kv"
)

const (
	couponPrefix = "coupon:"

	// updateAttempts bounds retries of a definition update that keeps
	// racing usage increments.
	updateAttempts = 5
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository on a key-value store.
// Coupons are stored as JSON under coupon:<id>.
type CouponRepository struct {
	store kv.Store
	now   func() time.Time
}

// NewCouponRepository returns a CouponRepository that uses the given store.
func NewCouponRepository(store kv.Store) *CouponRepository {
	return &CouponRepository{store: store, now: time.Now}
}

// CouponKey returns the storage key of a coupon.
func CouponKey(id string) string { return couponPrefix + id }

// Create stores a new coupon. It returns coupon.ErrCouponExists if the id
// is taken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	now := r.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "encode coupon %q", c.ID)
	}

	if err := r.store.SetNX(ctx, CouponKey(c.ID), data); err != nil {
		if errors.Is(err, kv.ErrExists) {
			return coupon.ErrCouponExists
		}
		return backendError("create coupon", err)
	}
	return nil
}

// Get returns the coupon stored under id.
func (r *CouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	data, err := r.store.Get(ctx, CouponKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, backendError("get coupon", err)
	}
	return decodeCoupon(data)
}

// List returns every stored coupon sorted by id. Entries that no longer
// decode are logged and skipped so one bad record does not hide the rest.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	keys, err := r.store.Keys(ctx, couponPrefix)
	if err != nil {
		return nil, backendError("list coupon keys", err)
	}
	if len(keys) == 0 {
		return []coupon.Coupon{}, nil
	}
	sort.Strings(keys)

	values, err := r.store.GetMany(ctx, keys)
	if err != nil {
		return nil, backendError("load coupons", err)
	}

	out := make([]coupon.Coupon, 0, len(values))
	for i, data := range values {
		// Deleted between the scan and the read.
		if data == nil {
			continue
		}
		c, err := decodeCoupon(data)
		if err != nil {
			zctx.From(ctx).Warn("Skipping undecodable coupon",
				zap.String("key", keys[i]),
				zap.Error(err),
			)
			continue
		}
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update replaces the stored definition of c.ID. UsedCount and CreatedAt
// are taken from the stored coupon.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) (*coupon.Coupon, error) {
	var updated coupon.Coupon
	fn := func(cur []byte) ([]byte, error) {
		stored, err := decodeCoupon(cur)
		if err != nil {
			return nil, err
		}
		updated = *c
		updated.UsedCount = stored.UsedCount
		updated.CreatedAt = stored.CreatedAt
		updated.UpdatedAt = r.now().UTC()
		return json.Marshal(&updated)
	}

	for attempt := 0; attempt < updateAttempts; attempt++ {
		err := r.store.Update(ctx, CouponKey(c.ID), fn)
		switch {
		case err == nil:
			return &updated, nil
		case errors.Is(err, kv.ErrConflict):
			continue
		default:
			return nil, r.mapUpdateError("update coupon", err)
		}
	}
	return nil, coupon.ErrConcurrentUpdate
}

// Delete removes the coupon stored under id.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, CouponKey(id)); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return coupon.ErrCouponNotFound
		}
		return backendError("delete coupon", err)
	}
	return nil
}

// IncrementUsage bumps UsedCount by one if it still equals expectedUsed.
// A lost race against another writer is reported as coupon.ErrStaleUsage.
//
// The gate is evaluated again on the value being replaced, inside the same
// compare-and-set, so an update that deactivates the coupon or moves its
// expiry after the caller's read cannot be overtaken by the increment.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string, expectedUsed int, now time.Time) (*coupon.Coupon, error) {
	var updated *coupon.Coupon
	err := r.store.Update(ctx, CouponKey(id), func(cur []byte) ([]byte, error) {
		c, err := decodeCoupon(cur)
		if err != nil {
			return nil, err
		}
		if c.UsedCount != expectedUsed {
			return nil, coupon.ErrStaleUsage
		}
		if err := c.CheckStatus(now); err != nil {
			return nil, err
		}
		c.UsedCount++
		c.UpdatedAt = r.now().UTC()
		updated = c
		return json.Marshal(c)
	})
	if err != nil {
		if errors.Is(err, kv.ErrConflict) {
			return nil, coupon.ErrStaleUsage
		}
		return nil, r.mapUpdateError("increment coupon usage", err)
	}
	return updated, nil
}

func (r *CouponRepository) mapUpdateError(op string, err error) error {
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return coupon.ErrCouponNotFound
	case errors.Is(err, coupon.ErrStaleUsage),
		errors.Is(err, coupon.ErrCouponInactive),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrUsageLimitExceeded),
		errors.Is(err, errCorrupt):
		return err
	default:
		return backendError(op, err)
	}
}

var errCorrupt = errors.New("corrupt coupon record")

func decodeCoupon(data []byte) (*coupon.Coupon, error) {
	var c coupon.Coupon
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Errorf("%w: %v", errCorrupt, err)
	}
	return &c, nil
}

func backendError(op string, err error) error {
	return &coupon.BackendError{Op: op, Err: err}
}
