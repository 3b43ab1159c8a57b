// Package server wires the bridge server together: configuration, the PIN
// database, the rate limiter backend, the identity-provider clients, and
// the HTTP server, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/authbridge/internal/logging"
	"github.com/dmitrijs2005/authbridge/internal/netx"
	"github.com/dmitrijs2005/authbridge/internal/provider"
	"github.com/dmitrijs2005/authbridge/internal/server/api"
	"github.com/dmitrijs2005/authbridge/internal/server/config"
	"github.com/dmitrijs2005/authbridge/internal/server/ratelimit"
	"github.com/dmitrijs2005/authbridge/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authbridge/internal/server/services"
	"github.com/dmitrijs2005/authbridge/internal/server/sessions"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	rdb    *redis.Client

	memLimiter *ratelimit.MemoryLimiter
	otp        *services.OTPService
	handler    *api.Handler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	app := &App{config: c, logger: logger}

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.close()
		return nil, err
	}

	factory, err := provider.NewFactory(provider.Config{
		URL:            c.ProviderURL,
		AnonKey:        c.AnonKey,
		ServiceRoleKey: c.ServiceRoleKey,
	})
	if err != nil {
		app.close()
		return nil, fmt.Errorf("provider init error: %w", err)
	}
	admin, err := factory.Admin()
	if err != nil {
		app.close()
		return nil, fmt.Errorf("provider init error: %w", err)
	}
	browser := factory.Browser()
	server := factory.Server()

	limiter, err := app.newLimiter(ctx)
	if err != nil {
		app.close()
		return nil, err
	}

	verifier := sessions.NewVerifier(c.JWTSecret, server)
	guard := sessions.NewGuard(verifier, c.LoginPath, logger)

	app.otp = services.NewOTPService(browser, limiter, logger, services.OTPOptions{
		Policy:      ratelimit.Policy{Max: c.RateLimitMax, Window: c.RateLimitWindow},
		MaxAttempts: c.OTPMaxAttempts,
	})

	pins, err := services.NewPinService(db, rm, c.PinPepper, admin, browser, logger, services.PinOptions{
		Limiter: limiter,
		Policy:  ratelimit.Policy{Max: c.PinAttemptsMax, Window: c.PinAttemptsWindow},
		Lockout: ratelimit.NewLockout(limiter, c.PinLockoutThreshold, c.PinLockoutDuration),
	})
	if err != nil {
		app.close()
		return nil, err
	}

	proxies, err := netx.ParseProxies(c.TrustedProxies)
	if err != nil {
		app.close()
		return nil, err
	}

	health := []api.HealthCheck{db.PingContext}
	if app.rdb != nil {
		health = append(health, func(ctx context.Context) error { return app.rdb.Ping(ctx).Err() })
	}

	cookies := sessions.DefaultCookiePolicy()
	cookies.Secure = c.CookieSecure
	cookies.Domain = c.CookieDomain

	app.handler = api.NewHandler(api.Options{
		OTP:            app.otp,
		Pins:           pins,
		Sessions:       services.NewSessionService(server, verifier, logger),
		Guard:          guard,
		Cookies:        cookies,
		AdminSecret:    c.AdminSecret,
		TrustedProxies: proxies,
		Health:         health,
		Logger:         logger,
	})

	return app, nil
}

// limiterStore holds both send buckets and PIN failure counts.
type limiterStore interface {
	ratelimit.Limiter
	ratelimit.FailureStore
}

// newLimiter picks Redis when REDIS_URL is set so every instance shares the
// same buckets and lockouts, and process memory otherwise.
func (app *App) newLimiter(ctx context.Context) (limiterStore, error) {
	if app.config.RedisURL == "" {
		app.memLimiter = ratelimit.NewMemoryLimiter(nil)
		app.logger.Info(ctx, "rate limiter: memory")
		return app.memLimiter, nil
	}

	opt, err := redis.ParseURL(app.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	app.rdb = redis.NewClient(opt)
	if err := app.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	app.logger.Info(ctx, "rate limiter: redis", "addr", opt.Addr)
	return ratelimit.NewRedisLimiter(app.rdb, ""), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := api.NewHTTPServer(app.config.ListenAddr, api.NewRouter(app.handler), app.logger, app.config.ShutdownTimeout)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a signal arrives or ctx is cancelled, then releases the
// database and Redis connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.otp.Run(ctx, app.config.SweepInterval)
	}()

	if app.memLimiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.memLimiter.Run(ctx, app.config.SweepInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() {
	if app.rdb != nil {
		_ = app.rdb.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}
