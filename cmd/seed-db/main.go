package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/coupon-engine/db"
	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	redisstore "github.com/xenking/coupon-engine/internal/storage/redis"
	"github.com/xenking/coupon-engine/internal/storage/repository"
)

func main() {
	var (
		redisURL     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&redisURL, "redis-url", "", "Redis connection URL (or REDIS_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or COUPON_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COUPON_AUTH_API_KEY_PEPPER env)")
	flag.Parse()

	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if redisURL == "" {
		slog.Error("redis URL is required: set --redis-url or REDIS_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("COUPON_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or COUPON_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("COUPON_AUTH_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, redisURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, redisURL, apiKey, pepper string) error {
	slog.Info("connecting to redis")

	client, err := redisstore.Connect(ctx, redisstore.Config{URL: redisURL})
	if err != nil {
		return errors.Wrap(err, "connect to redis")
	}
	defer func() { _ = client.Close() }()

	store := redisstore.NewStore(client, 0)

	if err := seedCoupons(ctx, repository.NewCouponRepository(store)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, repository.NewAPIKeyRepository(store), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCoupons(ctx context.Context, coupons *repository.CouponRepository) error {
	var seed []coupon.Coupon
	if err := json.Unmarshal(db.SeedCoupons, &seed); err != nil {
		return errors.Wrap(err, "parse seed coupons")
	}

	slog.Info("upserting coupons", slog.Int("count", len(seed)))

	for i := range seed {
		c := &seed[i]
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "validate coupon %s", c.ID)
		}

		err := coupons.Create(ctx, c)
		if errors.Is(err, coupon.ErrCouponExists) {
			_, err = coupons.Update(ctx, c)
		}
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.ID)
		}

		slog.Info("upserted coupon",
			slog.String("id", c.ID),
			slog.String("type", string(c.Type)),
			slog.String("name", c.Name),
		)
	}

	return nil
}

func seedAPIKey(ctx context.Context, keys *repository.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	if err := keys.Save(ctx, &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{"manage_coupons"},
	}); err != nil {
		return errors.Wrap(err, "save default API key")
	}

	slog.Info("saved API key", slog.String("id", "default"), slog.String("name", "Default admin key"))

	return nil
}
