// Package discount orchestrates coupon discovery and application on top of
// the strategy registry and a coupon repository.
package discount

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/strategy"
)

const (
	instrumentationName = "github.com/xenking/coupon-engine/internal/domain/discount"

	// DefaultApplyAttempts is used when Config.ApplyAttempts is not positive.
	DefaultApplyAttempts = 5
)

// Config tunes the Service.
type Config struct {
	// ApplyAttempts bounds how many times Apply re-runs
	// validate-apply-persist after losing a usage increment race.
	ApplyAttempts int
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider. Defaults to a no-op.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider. Defaults to a no-op.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// WithClock overrides the time source used by the coupon gate.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements coupon management, discovery and application.
type Service struct {
	coupons  coupon.Repository
	registry *strategy.Registry
	attempts int
	now      func() time.Time

	tracer trace.Tracer
	meter  metric.Meter

	discoverRequests   metric.Int64Counter
	discoverCandidates metric.Int64Histogram
	applyRequests      metric.Int64Counter
}

// NewService creates a Service.
func NewService(coupons coupon.Repository, registry *strategy.Registry, cfg Config, opts ...Option) (*Service, error) {
	s := &Service{
		coupons:  coupons,
		registry: registry,
		attempts: cfg.ApplyAttempts,
		now:      time.Now,
		tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:    metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	if s.attempts <= 0 {
		s.attempts = DefaultApplyAttempts
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.discoverRequests, err = s.meter.Int64Counter("coupon.discover.requests",
		metric.WithDescription("Applicable coupon lookups"),
	); err != nil {
		return nil, errors.Wrap(err, "discover requests counter")
	}
	if s.discoverCandidates, err = s.meter.Int64Histogram("coupon.discover.candidates",
		metric.WithDescription("Applicable coupons found per lookup"),
	); err != nil {
		return nil, errors.Wrap(err, "discover candidates histogram")
	}
	if s.applyRequests, err = s.meter.Int64Counter("coupon.apply.requests",
		metric.WithDescription("Coupon applications by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "apply requests counter")
	}
	return s, nil
}

// Discover returns every coupon applicable to c, sorted by discount
// descending and then by coupon id. c is not modified.
func (s *Service) Discover(ctx context.Context, c *cart.Cart) (_ []strategy.Candidate, rerr error) {
	ctx, span := s.tracer.Start(ctx, "discount.Discover",
		trace.WithAttributes(attribute.Int("cart.items", len(c.Items))),
	)
	defer func() {
		endSpan(span, rerr)
		s.discoverRequests.Add(ctx, 1, metric.WithAttributes(outcome(rerr)))
	}()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	work := c.Clone()
	work.Normalize()

	all, err := s.coupons.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}

	eligible := coupon.Eligible(all, s.now())
	byType := make(map[coupon.Type][]coupon.Coupon, len(coupon.Types()))
	for _, cp := range eligible {
		byType[cp.Type] = append(byType[cp.Type], cp)
	}

	lg := zctx.From(ctx)
	for typ, group := range byType {
		if !typ.Known() {
			lg.Warn("Skipping coupons of unknown type",
				zap.String("type", string(typ)),
				zap.Int("count", len(group)),
			)
		}
	}

	candidates := make([]strategy.Candidate, 0, len(eligible))
	for _, typ := range coupon.Types() {
		group := byType[typ]
		if len(group) == 0 {
			continue
		}
		st, err := s.registry.Lookup(typ)
		if err != nil {
			lg.Warn("No strategy registered", zap.String("type", string(typ)))
			continue
		}
		candidates = append(candidates, st.IsApplicable(work, group)...)
	}

	Rank(candidates)

	s.discoverCandidates.Record(ctx, int64(len(candidates)))
	span.SetAttributes(
		attribute.Int("coupons.eligible", len(eligible)),
		attribute.Int("coupons.applicable", len(candidates)),
	)
	lg.Debug("Discovered applicable coupons",
		zap.Int("eligible", len(eligible)),
		zap.Int("applicable", len(candidates)),
	)
	return candidates, nil
}

// Rank sorts candidates by discount descending, breaking ties by coupon id
// ascending.
func Rank(candidates []strategy.Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Discount != b.Discount {
			return a.Discount > b.Discount
		}
		return a.CouponID < b.CouponID
	})
}

// Apply applies the coupon id to a copy of c, records one use of the
// coupon and returns the discounted copy. c itself is never modified.
func (s *Service) Apply(ctx context.Context, id string, c *cart.Cart) (_ *cart.Cart, rerr error) {
	ctx, span := s.tracer.Start(ctx, "discount.Apply",
		trace.WithAttributes(attribute.String("coupon.id", id)),
	)
	var typ coupon.Type
	defer func() {
		endSpan(span, rerr)
		s.applyRequests.Add(ctx, 1, metric.WithAttributes(
			outcome(rerr),
			attribute.String("type", string(typ)),
		))
	}()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(zap.String("coupon_id", id))
	for attempt := 1; attempt <= s.attempts; attempt++ {
		out, cp, err := s.applyOnce(ctx, id, c)
		if cp != nil {
			typ = cp.Type
		}
		switch {
		case err == nil:
			lg.Info("Coupon applied",
				zap.String("type", string(cp.Type)),
				zap.Int64("discount", out.DiscountedAmount),
				zap.Int("used_count", cp.UsedCount),
			)
			return out, nil
		case errors.Is(err, coupon.ErrStaleUsage):
			lg.Debug("Usage changed concurrently, retrying", zap.Int("attempt", attempt))
			continue
		default:
			return nil, err
		}
	}

	lg.Warn("Giving up on contended coupon", zap.Int("attempts", s.attempts))
	return nil, coupon.ErrConcurrentUpdate
}

// applyOnce runs one validate-apply-persist pass against a fresh read of
// the coupon. The returned coupon is the stored state after the increment,
// or the read snapshot on failure.
func (s *Service) applyOnce(ctx context.Context, id string, c *cart.Cart) (*cart.Cart, *coupon.Coupon, error) {
	now := s.now()
	cp, err := s.coupons.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := cp.CheckStatus(now); err != nil {
		return nil, cp, err
	}

	st, err := s.registry.Lookup(cp.Type)
	if err != nil {
		return nil, cp, err
	}

	work := c.Clone()
	work.Normalize()
	if len(st.IsApplicable(work, []coupon.Coupon{*cp})) == 0 {
		return nil, cp, coupon.ErrCouponNotApplicable
	}
	work = st.ApplyDiscount(work, cp)

	updated, err := s.coupons.IncrementUsage(ctx, id, cp.UsedCount, now)
	if err != nil {
		return nil, cp, err
	}
	return work, updated, nil
}

// CreateCoupon validates and stores a new coupon.
func (s *Service) CreateCoupon(ctx context.Context, cp *coupon.Coupon) (*coupon.Coupon, error) {
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	if err := s.coupons.Create(ctx, cp); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Coupon created",
		zap.String("coupon_id", cp.ID),
		zap.String("type", string(cp.Type)),
	)
	return cp, nil
}

// ListCoupons returns all stored coupons sorted by id, including inactive
// and expired ones.
func (s *Service) ListCoupons(ctx context.Context) ([]coupon.Coupon, error) {
	return s.coupons.List(ctx)
}

// GetCoupon returns one coupon.
func (s *Service) GetCoupon(ctx context.Context, id string) (*coupon.Coupon, error) {
	return s.coupons.Get(ctx, id)
}

// UpdateCoupon replaces the definition of cp.ID. The stored usage count is
// kept regardless of cp.UsedCount.
func (s *Service) UpdateCoupon(ctx context.Context, cp *coupon.Coupon) (*coupon.Coupon, error) {
	// The stored count wins, so the caller's value must not fail validation.
	check := *cp
	check.UsedCount = 0
	if err := check.Validate(); err != nil {
		return nil, err
	}
	updated, err := s.coupons.Update(ctx, cp)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Coupon updated", zap.String("coupon_id", cp.ID))
	return updated, nil
}

// DeleteCoupon removes a coupon.
func (s *Service) DeleteCoupon(ctx context.Context, id string) error {
	if err := s.coupons.Delete(ctx, id); err != nil {
		return err
	}
	zctx.From(ctx).Info("Coupon deleted", zap.String("coupon_id", id))
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func outcome(err error) attribute.KeyValue {
	key := attribute.Key("outcome")
	switch {
	case err == nil:
		return key.String("ok")
	case errors.Is(err, coupon.ErrCouponNotFound):
		return key.String("not_found")
	case errors.Is(err, coupon.ErrCouponInactive),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrUsageLimitExceeded):
		return key.String("ineligible")
	case errors.Is(err, coupon.ErrCouponNotApplicable):
		return key.String("not_applicable")
	case errors.Is(err, coupon.ErrConcurrentUpdate):
		return key.String("contended")
	case errors.Is(err, coupon.ErrBackendUnavailable):
		return key.String("backend_error")
	default:
		return key.String("error")
	}
}
