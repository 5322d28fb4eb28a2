// Package importer bulk-loads coupons from newline-delimited JSON files,
// optionally gzip-compressed.
//
// Import streams the input three times and holds only the ids shared
// between files in memory:
//
//  1. every file is indexed into its own bloom filter of coupon ids;
//  2. every file is re-read and ids that some other file's filter reports
//     are collected with a per-file bitmask, which confirms the duplicate
//     exactly;
//  3. every file is read a last time and each coupon that is not a
//     cross-file duplicate is validated and written.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const (
	// maxFiles bounds the per-file bitmask.
	maxFiles = bits.UintSize

	defaultConcurrency   = 16
	defaultBloomCapacity = 1_000_000
	defaultBloomFPR      = 0.001
	progressEvery        = 100_000
	maxLineBytes         = 1 << 20
)

// Writer is the subset of coupon.Repository the importer writes through.
type Writer interface {
	Create(ctx context.Context, c *coupon.Coupon) error
	Update(ctx context.Context, c *coupon.Coupon) (*coupon.Coupon, error)
}

// Options configure an Importer. Zero values select defaults.
type Options struct {
	// Concurrency bounds in-flight writes.
	Concurrency int
	// Overwrite replaces coupons that already exist instead of skipping them.
	// The stored usage count is kept either way.
	Overwrite bool
	// BloomCapacity is the expected number of ids per file.
	BloomCapacity uint
	// BloomFPR is the target false positive rate of each filter.
	BloomFPR float64
	Logger   *slog.Logger
}

// Stats summarises an import.
type Stats struct {
	Read       int64
	Created    int64
	Updated    int64
	Existing   int64
	Invalid    int64
	Duplicates int64
	// DuplicateIDs lists ids found in more than one file, sorted.
	DuplicateIDs []string
}

type counters struct {
	read, created, updated, existing, invalid, duplicates atomic.Int64
}

// Importer loads coupon files into a Writer.
type Importer struct {
	coupons Writer
	opts    Options
	lg      *slog.Logger
}

// New creates an Importer.
func New(coupons Writer, opts Options) *Importer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.BloomCapacity == 0 {
		opts.BloomCapacity = defaultBloomCapacity
	}
	if opts.BloomFPR <= 0 {
		opts.BloomFPR = defaultBloomFPR
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Importer{coupons: coupons, opts: opts, lg: lg}
}

// Import loads files. Coupons whose id appears in more than one file are
// skipped. Malformed or invalid lines are logged and counted, not fatal.
func (im *Importer) Import(ctx context.Context, files []string) (Stats, error) {
	if len(files) == 0 {
		return Stats{}, errors.New("no input files")
	}
	if len(files) > maxFiles {
		return Stats{}, errors.Errorf("at most %d files per import, got %d", maxFiles, len(files))
	}

	dups, err := im.FindDuplicates(ctx, files)
	if err != nil {
		return Stats{}, errors.Wrap(err, "find duplicates")
	}
	if len(dups) > 0 {
		im.lg.Warn("ids present in several files are skipped", slog.Int("count", len(dups)))
	}

	var c counters
	skip := make(map[string]struct{}, len(dups))
	for _, id := range dups {
		skip[id] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Concurrency)
	for _, path := range files {
		err := streamLines(gctx, path, func(line []byte) error {
			c.read.Add(1)
			var cp coupon.Coupon
			if err := json.Unmarshal(line, &cp); err != nil {
				c.invalid.Add(1)
				im.lg.Warn("malformed coupon", slog.String("file", path), slog.String("error", err.Error()))
				return nil
			}
			if _, ok := skip[cp.ID]; ok {
				c.duplicates.Add(1)
				return nil
			}
			if err := cp.Validate(); err != nil {
				c.invalid.Add(1)
				im.lg.Warn("invalid coupon",
					slog.String("file", path),
					slog.String("id", cp.ID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			g.Go(func() error { return im.write(gctx, &cp, &c) })
			return nil
		})
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return Stats{}, werr
			}
			return Stats{}, err
		}
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	return Stats{
		Read:         c.read.Load(),
		Created:      c.created.Load(),
		Updated:      c.updated.Load(),
		Existing:     c.existing.Load(),
		Invalid:      c.invalid.Load(),
		Duplicates:   c.duplicates.Load(),
		DuplicateIDs: dups,
	}, nil
}

func (im *Importer) write(ctx context.Context, cp *coupon.Coupon, c *counters) error {
	err := im.coupons.Create(ctx, cp)
	switch {
	case err == nil:
		c.created.Add(1)
		return nil
	case !errors.Is(err, coupon.ErrCouponExists):
		return errors.Wrapf(err, "create coupon %q", cp.ID)
	case !im.opts.Overwrite:
		c.existing.Add(1)
		return nil
	}
	if _, err := im.coupons.Update(ctx, cp); err != nil {
		return errors.Wrapf(err, "update coupon %q", cp.ID)
	}
	c.updated.Add(1)
	return nil
}

// FindDuplicates returns the sorted ids that occur in more than one file.
func (im *Importer) FindDuplicates(ctx context.Context, files []string) ([]string, error) {
	if len(files) < 2 {
		return nil, nil
	}

	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(im.opts.BloomCapacity, im.opts.BloomFPR)
			n, err := im.scanIDs(gctx, path, "index", func(id string) { f.AddString(id) })
			if err != nil {
				return err
			}
			im.lg.Info("indexed file", slog.String("file", path), slog.Int64("ids", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		merged = make(map[string]uint)
	)
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			bit := uint(1) << uint(i)
			found := make(map[string]uint)
			_, err := im.scanIDs(gctx, path, "match", func(id string) {
				for j, f := range filters {
					if j != i && f.TestString(id) {
						found[id] |= bit
						return
					}
				}
			})
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for id, mask := range found {
				merged[id] |= mask
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var dups []string
	for id, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return dups, nil
}

// scanIDs calls fn with the id of every decodable line of path.
func (im *Importer) scanIDs(ctx context.Context, path, phase string, fn func(id string)) (int64, error) {
	var n int64
	err := streamLines(ctx, path, func(line []byte) error {
		var head struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(line, &head) != nil || head.ID == "" {
			return nil
		}
		fn(head.ID)
		n++
		if n%progressEvery == 0 {
			im.lg.Info(phase+" progress", slog.String("file", path), slog.Int64("ids", n))
		}
		return nil
	})
	return n, err
}

// streamLines calls fn for every non-blank line of path. Files ending in
// .gz are decompressed.
func streamLines(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
