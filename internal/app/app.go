package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tabreaper/tabreaper/internal/config"
	"github.com/tabreaper/tabreaper/internal/events"
	"github.com/tabreaper/tabreaper/internal/host/cdp"
	"github.com/tabreaper/tabreaper/internal/httpserver"
	"github.com/tabreaper/tabreaper/internal/httpserver/deps"
	"github.com/tabreaper/tabreaper/internal/logger"
	"github.com/tabreaper/tabreaper/internal/policy"
	"github.com/tabreaper/tabreaper/internal/redis"
	"github.com/tabreaper/tabreaper/internal/rules"
	"github.com/tabreaper/tabreaper/internal/scheduler"
	redisstore "github.com/tabreaper/tabreaper/internal/store/redis"
	"github.com/tabreaper/tabreaper/internal/sources/rulesfile"
	"github.com/tabreaper/tabreaper/internal/sweep"
	"github.com/tabreaper/tabreaper/internal/tracker"
	"github.com/tabreaper/tabreaper/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	browser     *cdp.Adapter
	tracker     *tracker.Tracker
	policy      *policy.Manager
	resolver    *rules.Resolver
	sync        *events.Synchronizer
	runner      *scheduler.SweepRunner
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Redis initialized successfully")

	store := redisstore.NewStore(redisClient)

	// Attach to the browser - nothing to reap without one
	browser, err := cdp.Connect(context.Background(), cfg.CDPURL, cfg.CDPProbeBudget, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to attach to browser: %v", err)
		os.Exit(1)
	}

	// Restore the activity clock and the policy from the store
	trk := tracker.New(store, loggerClient, tracker.Options{
		Debounce:  cfg.FlushDebounce,
		Retention: cfg.RetentionMax,
	})
	trk.Load(context.Background())

	polMgr := policy.NewManager(store, loggerClient)
	polMgr.Load(context.Background())

	resolver := rules.NewResolver(store, loggerClient)
	if err := resolver.Load(context.Background()); err != nil {
		loggerClient.Warn("failed to load rules from store, starting empty",
			logger.Error(err))
	}

	// Seed rules from the optional operator-provided yaml file
	if cfg.RulesFile != "" {
		loggerClient.Info("rules file configured, seeding rule set",
			logger.String("file", cfg.RulesFile))
		seedRules(cfg.RulesFile, resolver, loggerClient)
	}

	sweeper := sweep.New(browser, trk, resolver, polMgr, loggerClient,
		sweep.WithBatchSize(cfg.DiscardBatchSize))

	runner := scheduler.NewSweepRunner(sweeper, polMgr, loggerClient,
		cfg.SweepInterval, polMgr.Current().CloseOnStart)
	polMgr.OnChange(runner.Poke)

	sync := events.New(browser, trk, loggerClient)

	d := deps.Deps{
		Logger:      loggerClient,
		StartTime:   time.Now(),
		Version:     version.Version,
		Commit:      version.Commit,
		BuildDate:   version.BuildDate,
		GoVersion:   version.GoVersion,
		TimeNow:     time.Now,
		RedisClient: redisClient,
		Host:        browser,
		Policy:      polMgr,
		Rules:       resolver,
		Tracker:     trk,
		Sweeper:     sweeper,
		Validate:    validator.New(),
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		browser:     browser,
		tracker:     trk,
		policy:      polMgr,
		resolver:    resolver,
		sync:        sync,
		runner:      runner,
	}
}

func seedRules(path string, resolver *rules.Resolver, log logger.Logger) {
	loader := rulesfile.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		log.Warn("failed to load rules file, skipping seed", logger.Error(err))
		return
	}
	mapped := rulesfile.NewMapper(log).MapRules(cfg)
	resolver.Seed(context.Background(), mapped)
	log.Info("rule set seeded", logger.Int("count", len(mapped)))
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting tabreaper v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("tabreaper %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Keep the activity clock in step with the browser
	a.sync.Start(ctx)

	// Start the periodic sweeps (runs the startup sweep if configured)
	if err := a.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweep runner: %w", err)
	}
	a.logger.Info("sweep runner started",
		logger.Duration("interval", a.cfg.SweepInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Force out any pending timestamp write before closing the store
	if err := a.tracker.Close(shutdownCtx); err != nil {
		a.logger.Warnf("failed to flush activity clock: %v", err)
	}

	if err := a.browser.Close(); err != nil {
		a.logger.Warnf("failed to detach from browser: %v", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ tabreaper stopped cleanly")
	return nil
}
