package mealgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/mealgen/budget"
	"github.com/jonwraymond/mealgen/config"
	"github.com/jonwraymond/mealgen/constraint"
	"github.com/jonwraymond/mealgen/generation"
	"github.com/jonwraymond/mealgen/health"
	"github.com/jonwraymond/mealgen/internal/sqldb"
	"github.com/jonwraymond/mealgen/observe"
	"github.com/jonwraymond/mealgen/signature"
	"github.com/jonwraymond/mealgen/store"
)

// HealthTimeout bounds a full run of the health checks.
const HealthTimeout = 5 * time.Second

// Runtime owns a Service and the backends it was built from.
type Runtime struct {
	service   *Service
	observer  observe.Observer
	logger    observe.Logger
	store     store.Store
	guard     *budget.Guard
	generator *generation.Guarded
	health    *health.Aggregator
	sweeper   *store.Sweeper
	info      health.Info

	stopPrune context.CancelFunc
	pruneDone chan struct{}
	closers   []func() error
	closeOnce sync.Once
	closeErr  error
}

// Open builds a Runtime from cfg. When generator is nil an HTTP generator
// is created from cfg.Generator. The generator is always wrapped with the
// configured guards. Close must be called to release backends.
func Open(ctx context.Context, cfg *config.Config, profiles constraint.ProfileStore, generator generation.Generator) (_ *Runtime, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if profiles == nil {
		return nil, fmt.Errorf("%w: profile store", ErrMissingDependency)
	}

	rt := &Runtime{info: health.Info{Service: cfg.Service.Name, Version: cfg.Service.Version}}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	rt.observer, err = observe.NewObserver(ctx, cfg.ObserveConfig())
	if err != nil {
		return nil, fmt.Errorf("mealgen: observer: %w", err)
	}
	mw, err := observe.MiddlewareFromObserver(rt.observer)
	if err != nil {
		return nil, fmt.Errorf("mealgen: middleware: %w", err)
	}
	rt.logger = mw.Logger()

	if generator == nil {
		generator, err = newHTTPGenerator(cfg.Generator)
		if err != nil {
			return nil, err
		}
	}

	rt.store, err = rt.openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	rt.guard = budget.NewGuard(budget.Config{
		Window:      cfg.Budget.Window(),
		UserLimit:   cfg.Budget.UserLimit,
		GlobalLimit: cfg.Budget.GlobalLimit,
	})

	g := cfg.Generator
	rt.generator = generation.NewGuarded(generator, generation.GuardConfig{
		MaxConcurrent: g.MaxConcurrent,
		MaxWait:       config.Millis(g.MaxWaitMS),
		MaxFailures:   g.MaxFailures,
		ResetTimeout:  config.Millis(g.ResetTimeoutMS),
		Timeout:       config.Millis(g.TimeoutMS),
		OnStateChange: func(from, to generation.State) {
			rt.logger.Warn(context.Background(), "generator circuit changed",
				observe.F("from", from.String()), observe.F("to", to.String()))
		},
	})

	rt.service, err = NewService(Options{
		Profiles:   profiles,
		Store:      rt.store,
		Guard:      rt.guard,
		Generator:  rt.generator,
		Builder:    signature.NewBuilder(signature.Options{DigestLength: cfg.Signature.DigestLength}),
		Middleware: mw,
	})
	if err != nil {
		return nil, err
	}

	rt.health = health.NewAggregator(health.AggregatorConfig{
		Timeout:  HealthTimeout,
		Parallel: true,
		Logger:   rt.logger,
	})
	if p, ok := rt.store.(store.Pinger); ok {
		rt.health.Register("store", health.NewStoreChecker("store", p))
	}
	rt.health.Register("budget", health.NewBudgetChecker(rt.guard, health.DefaultSaturation))
	rt.health.Register("generator", health.NewBreakerChecker(rt.generator))

	background := context.WithoutCancel(ctx)
	if ev, ok := rt.store.(store.Evicter); ok {
		policy := store.SweepPolicy{
			MaxIdle:  config.Millis(cfg.Store.Sweep.MaxIdleMS),
			Interval: config.Millis(cfg.Store.Sweep.IntervalMS),
		}
		if policy.Enabled() {
			rt.sweeper = store.NewSweeper(ev, policy, rt.logger, nil)
			rt.sweeper.Start(background)
		}
	}
	rt.startPruning(background, rt.guard.Config().Window)

	rt.logger.Info(ctx, "mealgen runtime started",
		observe.F("store.backend", cfg.Store.Backend),
		observe.F("budget.window_ms", rt.guard.Config().Window.Milliseconds()),
		observe.F("budget.user_limit", rt.guard.Config().UserLimit),
		observe.F("budget.global_limit", rt.guard.Config().GlobalLimit),
	)
	return rt, nil
}

func newHTTPGenerator(cfg config.GeneratorConfig) (generation.Generator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: generator endpoint", ErrMissingDependency)
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	gen, err := generation.NewHTTPGenerator(generation.HTTPConfig{
		Endpoint:         cfg.Endpoint,
		Headers:          headers,
		MaxResponseBytes: cfg.MaxResponseBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("mealgen: generator: %w", err)
	}
	return gen, nil
}

func (rt *Runtime) openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, config.BackendPostgres:
		dialect, err := sqldb.ParseDialect(cfg.Backend)
		if err != nil {
			return nil, err
		}
		db, err := sqldb.Open(ctx, dialect, cfg.DSN, sqldb.PoolConfig{
			MaxOpen:     cfg.Pool.MaxOpen,
			MaxIdle:     cfg.Pool.MaxIdle,
			MaxLifetime: config.Millis(cfg.Pool.MaxLifetimeMS),
		})
		if err != nil {
			return nil, fmt.Errorf("mealgen: store: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)

		s := store.NewSQLStore(db, dialect, nil)
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("mealgen: store: %w", err)
			}
		}
		return s, nil

	case config.BackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Address},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, client.Close)

		s := store.NewRedisStore(client, store.RedisOptions{
			Prefix:  cfg.Redis.Prefix,
			IdleTTL: config.Millis(cfg.Redis.IdleTTLMS),
		})
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("mealgen: store: redis ping: %w", err)
		}
		return s, nil

	default:
		return store.NewMemoryStore(nil), nil
	}
}

// startPruning drops idle user budget buckets once per window.
func (rt *Runtime) startPruning(ctx context.Context, every time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	rt.stopPrune = cancel
	rt.pruneDone = make(chan struct{})

	go func() {
		defer close(rt.pruneDone)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rt.guard.PruneIdle(); n > 0 {
					rt.logger.Debug(ctx, "pruned idle budget buckets", observe.F("pruned", n))
				}
			}
		}
	}()
}

// Service returns the generation service.
func (rt *Runtime) Service() *Service { return rt.service }

// Guard returns the budget guard.
func (rt *Runtime) Guard() *budget.Guard { return rt.guard }

// Store returns the cache store.
func (rt *Runtime) Store() store.Store { return rt.store }

// Generator returns the guarded generator.
func (rt *Runtime) Generator() *generation.Guarded { return rt.generator }

// Health returns the health aggregator.
func (rt *Runtime) Health() *health.Aggregator { return rt.health }

// Handler serves health probes and, for the Prometheus exporter, /metrics.
func (rt *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	health.RegisterHandlers(mux, rt.health, rt.info)
	if h := rt.observer.MetricsHandler(); h != nil {
		mux.Handle("GET /metrics", h)
	}
	return mux
}

// Close stops background work, flushes telemetry and closes backends. It
// is safe to call more than once.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.closeOnce.Do(func() {
		var errs []error

		if rt.sweeper != nil {
			rt.sweeper.Stop()
		}
		if rt.stopPrune != nil {
			rt.stopPrune()
			<-rt.pruneDone
		}
		for i := len(rt.closers) - 1; i >= 0; i-- {
			if err := rt.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		if rt.observer != nil {
			if rt.logger != nil {
				rt.logger.Info(ctx, "mealgen runtime stopped")
			}
			if err := rt.observer.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		rt.closeErr = errors.Join(errs...)
	})
	return rt.closeErr
}
