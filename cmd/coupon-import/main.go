package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/coupon-engine/internal/importer"
	redisstore "github.com/xenking/coupon-engine/internal/storage/redis"
	"github.com/xenking/coupon-engine/internal/storage/repository"
)

func main() {
	var (
		redisURL    string
		concurrency int
		overwrite   bool
		capacity    uint
	)

	flag.StringVar(&redisURL, "redis-url", "", "Redis connection URL (or REDIS_URL env)")
	flag.IntVar(&concurrency, "concurrency", 16, "maximum concurrent writes")
	flag.BoolVar(&overwrite, "overwrite", false, "replace coupons that already exist")
	flag.UintVar(&capacity, "expected-per-file", 1_000_000, "expected coupons per file, sizes the duplicate filters")
	flag.Parse()

	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if redisURL == "" {
		slog.Error("redis URL is required: set --redis-url or REDIS_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("usage: coupon-import [flags] FILE.ndjson[.gz]...")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := importer.Options{
		Concurrency:   concurrency,
		Overwrite:     overwrite,
		BloomCapacity: capacity,
	}
	if err := run(ctx, redisURL, files, opts); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, redisURL string, files []string, opts importer.Options) error {
	slog.Info("connecting to redis")

	client, err := redisstore.Connect(ctx, redisstore.Config{URL: redisURL})
	if err != nil {
		return errors.Wrap(err, "connect to redis")
	}
	defer func() { _ = client.Close() }()

	coupons := repository.NewCouponRepository(redisstore.NewStore(client, 0))

	stats, err := importer.New(coupons, opts).Import(ctx, files)
	if err != nil {
		return errors.Wrap(err, "import")
	}

	slog.Info("import summary",
		slog.Int64("read", stats.Read),
		slog.Int64("created", stats.Created),
		slog.Int64("updated", stats.Updated),
		slog.Int64("existing", stats.Existing),
		slog.Int64("invalid", stats.Invalid),
		slog.Int64("duplicates", stats.Duplicates),
	)
	for _, id := range stats.DuplicateIDs {
		slog.Warn("skipped id present in several files", slog.String("id", id))
	}
	return nil
}
