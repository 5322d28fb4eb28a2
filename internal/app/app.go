package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/internal/domain/discount"
	"github.com/xenking/coupon-engine/internal/domain/strategy"
	"github.com/xenking/coupon-engine/internal/handler"
	"github.com/xenking/coupon-engine/internal/storage/kv"
	"github.com/xenking/coupon-engine/internal/storage/memory"
	redisstore "github.com/xenking/coupon-engine/internal/storage/redis"
	"github.com/xenking/coupon-engine/internal/storage/repository"
	"github.com/xenking/coupon-engine/pkg/health"
	"github.com/xenking/coupon-engine/pkg/httpmiddleware"
)

const serviceName = "coupon-engine"

// backend is the opened storage plus what else was built on the same
// connection.
type backend struct {
	store   kv.Store
	limiter httpmiddleware.Limiter
	close   func() error
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	if cfg.Storage.Driver == DriverMemory {
		lg.Warn("Using in-memory storage, coupons are lost on restart")
		return &backend{store: memory.New(), close: func() error { return nil }}, nil
	}

	client, err := redisstore.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, errors.Wrap(err, "connect redis")
	}
	b := &backend{
		store: redisstore.NewStore(client, cfg.Redis.ScanCount),
		close: client.Close,
	}
	if cfg.RateLimit.Backend == DriverRedis {
		b.limiter = redisstore.NewLimiter(client, cfg.RateLimit.Max, cfg.RateLimit.Window)
	}
	return b, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application. m is usually
// the *app.Telemetry handed over by the go-faster/sdk runner.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	be, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.close(); err != nil {
			lg.Warn("Close storage", zap.Error(err))
		}
	}()

	if be.limiter == nil {
		ml := httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		go ml.Run(ctx)
		be.limiter = ml
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("storage", 5*time.Second, health.PingCheck(be.store))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories and domain services.
	coupons := repository.NewCouponRepository(be.store)
	engine, err := discount.NewService(coupons, strategy.DefaultRegistry(),
		discount.Config{ApplyAttempts: cfg.Engine.ApplyAttempts},
		discount.WithTracerProvider(m.TracerProvider()),
		discount.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create discount service")
	}

	var protect httpmiddleware.Middleware
	if cfg.Auth.Disabled {
		lg.Warn("API key authentication is disabled")
	} else {
		keys := repository.NewAPIKeyRepository(be.store)
		protect = httpmiddleware.RequireAPIKey(
			handler.APIKeyCheck(auth.NewAuthenticator(keys, []byte(cfg.Auth.APIKeyPepper))),
		)
	}

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument(serviceName, m),
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Group(func(r chi.Router) {
		r.Use(
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key", "X-API-Key", "X-Request-ID"},
				ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(be.limiter, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
		)
		handler.NewHandler(engine).Routes(r, protect)
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           r,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	healthSvc.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
