package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"smokehouse/internal/config"
	"smokehouse/internal/db"
	"smokehouse/internal/db/mock"
	"smokehouse/internal/ledger"
	"smokehouse/internal/lock"
	applog "smokehouse/internal/log"
	"smokehouse/internal/metrics"
	"smokehouse/internal/notify"
	"smokehouse/internal/server"
	"smokehouse/internal/store"
	"smokehouse/internal/targets"
	"smokehouse/internal/trace"
)

type serverLifecycle interface {
	Start() error
	Stop() error
}

var (
	loadConfigFunc      = config.Load
	setLogLevelFunc     = applog.SetLevel
	newMockDatabaseFunc = mock.New
	configureDatabase   = db.Configure
	newServerFunc       = func(cfg server.Config) (serverLifecycle, error) {
		return server.New(cfg)
	}
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		return ch, func() { signal.Stop(ch) }
	}
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		applog.Error(context.Background(), "failed to read .env file", "error", err)
	}
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	cfg, err := loadConfigFunc()
	if err != nil {
		applog.Error(ctx, "failed to load configuration", "error", err)
		return 1
	}
	if err := setLogLevelFunc(cfg.Logging.Level); err != nil {
		applog.Error(ctx, "invalid log level", "level", cfg.Logging.Level, "error", err)
		return 1
	}

	database, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		applog.Error(ctx, "failed to configure database", "error", err)
		return 1
	}

	recorder := metrics.New()
	deps, cleanup, err := buildServices(ctx, cfg, database, recorder)
	if err != nil {
		applog.Error(ctx, "failed to build ledger services", "error", err)
		return 1
	}
	defer cleanup()

	srv, err := newServerFunc(server.Config{
		Addr:      cfg.Server.Addr,
		Database:  database,
		Ledger:    deps.ledger,
		Targets:   deps.targets,
		Assembler: deps.assembler,
		Metrics:   recorder.Handler(),
	})
	if err != nil {
		applog.Error(ctx, "failed to create server", "error", err)
		return 1
	}

	shutdown, unsubscribe := subscribeShutdownSig()
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		applog.Info(ctx, "starting http server", "addr", cfg.Server.Addr)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error(ctx, "server encountered an error", "error", err)
			return 1
		}
		return 0
	case sig := <-shutdown:
		applog.Info(ctx, "shutting down http server", "signal", sig.String())
	case <-ctx.Done():
		applog.Info(ctx, "context cancelled, shutting down http server")
	}

	if err := srv.Stop(); err != nil {
		applog.Error(ctx, "graceful shutdown failed", "error", err)
		return 1
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		applog.Error(ctx, "server exited with error", "error", err)
		return 1
	}
	applog.Info(ctx, "http server stopped")
	return 0
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.UseMock {
		applog.Info(ctx, "using in-memory mock database")
		return newMockDatabaseFunc(ctx)
	}
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL is required unless DATABASE_USE_MOCK is set")
	}
	return configureDatabase(cfg)
}

type services struct {
	ledger    *ledger.Ledger
	targets   *targets.Service
	assembler *trace.Assembler
}

// buildServices wires the ledger with its optional Redis locks and Kafka recall
// notices. The returned cleanup releases those clients.
func buildServices(ctx context.Context, cfg config.Config, database *gorm.DB, recorder *metrics.Recorder) (*services, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				applog.Warn(ctx, "failed to close client", "error", err)
			}
		}
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		closers = append(closers, client.Close)
		locker = lock.NewRedis(client, cfg.Redis.LockTTL)
		applog.Info(ctx, "using redis lot locks", "addr", opts.Addr)
	}

	var notifier notify.Publisher = notify.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.RecallTopic)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("kafka notifier: %w", err)
		}
		closers = append(closers, k.Close)
		notifier = k
		applog.Info(ctx, "publishing recall notices", "topic", cfg.Kafka.RecallTopic)
	}

	s := store.NewGorm(database)
	l, err := ledger.New(s, ledger.Config{
		Epsilon:     cfg.Ledger.Epsilon,
		MaxRetries:  cfg.Ledger.MaxRetries,
		AuditKey:    []byte(cfg.Ledger.AuditKey),
		StrictUnits: cfg.Ledger.StrictUnits,
		Locker:      locker,
		Observer:    recorder,
		Notifier:    notifier,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	fallback := targets.CureSettings{
		PpmMin:    cfg.Cure.PpmMin,
		PpmTarget: cfg.Cure.PpmTarget,
		PpmMax:    cfg.Cure.PpmMax,
	}
	svc := targets.NewService(s, targets.StoreSettings{Store: s, Fallback: fallback}, cfg.Ledger.Epsilon)
	return &services{
		ledger:    l,
		targets:   svc,
		assembler: trace.NewAssembler(s, svc),
	}, cleanup, nil
}
