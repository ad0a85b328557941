// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"teamchat-upgrade/internal/config"
	"teamchat-upgrade/internal/domain/ports/adapter"
	payAdapters "teamchat-upgrade/internal/infra/adapters/payment"
	pg "teamchat-upgrade/internal/infra/db/postgres"
	"teamchat-upgrade/internal/infra/i18n"
	"teamchat-upgrade/internal/infra/logging"
	"teamchat-upgrade/internal/infra/metrics"
	"teamchat-upgrade/internal/infra/notify"
	red "teamchat-upgrade/internal/infra/redis"
	"teamchat-upgrade/internal/infra/sched"
	"teamchat-upgrade/internal/infra/security"
	"teamchat-upgrade/internal/infra/web"
	"teamchat-upgrade/internal/infra/worker"
	"teamchat-upgrade/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

// devEncryptionKey is only accepted with -dev.
const devEncryptionKey = "0123456789abcdef0123456789abcdef"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("app stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if cfg.Database.MigrateOnStart {
		if err := pg.Migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if encKey == "" {
		if !cfg.Runtime.Dev {
			return errors.New("security.encryption_key is required outside dev mode")
		}
		logger.Warn().Msg("security.encryption_key not set; using the dev key (INSECURE)")
		encKey = devEncryptionKey
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		return err
	}

	// ---- Payment gateway ----
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}

	// ---- Repositories ----
	userRepo := pg.NewUserRepoCacheDecorator(pg.NewPostgresUserRepo(pool), redisClient, cfg.Redis.TTL, logger)
	workspaceRepo := pg.NewWorkspaceRepo(pool)
	payRepo := pg.NewPaymentRepo(pool, encSvc)
	txManager := pg.NewTxManager(pool)

	// ---- Workers ----
	workers := worker.NewPool(cfg.Workers.PoolSize, cfg.Workers.QueueSize, logger)
	workers.Start(ctx)
	defer workers.Stop()

	// ---- Use cases ----
	tr := i18n.MustDefault()
	hub := notify.NewHub(0, logger)
	plans, err := usecase.NewPlanCatalog(cfg.Plans)
	if err != nil {
		return err
	}
	ledgers := usecase.NewLedgerRegistry(userRepo, tr, hub)
	userUC := usecase.NewUserUseCase(userRepo, txManager, ledgers, cfg.Credits.FreeDefault, logger)
	creditUC := usecase.NewCreditUseCase(userRepo, ledgers, tr, logger)
	workspaceUC := usecase.NewWorkspaceUseCase(workspaceRepo, userRepo, txManager, logger)
	upgradeUC := usecase.NewUpgradeUseCase(ctx, cfg.Upgrade, usecase.UpgradeDeps{
		Users:      userRepo,
		Payments:   payRepo,
		Sessions:   red.NewUpgradeSessionStore(redisClient, cfg.Upgrade.SnapshotTTL),
		TxManager:  txManager,
		Plans:      plans,
		Gateway:    gateway,
		Locker:     red.NewLocker(redisClient),
		Limiter:    red.NewRateLimiter(redisClient),
		Scheduler:  workers,
		Ledgers:    ledgers,
		Notifier:   hub,
		Translator: tr,
		Logger:     logger,
		Dev:        cfg.Runtime.Dev,
	})

	// ---- HTTP ----
	srv := web.NewServer(web.Deps{
		Plans:      plans,
		Upgrades:   upgradeUC,
		Credits:    creditUC,
		Users:      userUC,
		Workspaces: workspaceUC,
		Notices:    hub,
		Auth:       web.NewAuthManager(cfg.Auth, !cfg.Runtime.Dev),
		Health: map[string]web.HealthCheck{
			"postgres": func(ctx context.Context) error { return pingPool(ctx, pool) },
			"redis":    redisClient.Ping,
		},
		Logger: logger,
	})

	// ---- Background loops ----
	reconciler := sched.NewPaymentReconciler(upgradeUC, payRepo, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, cfg.Reconciler.BatchSize, logger)
	expiry := sched.NewExpiryWorker(cfg.Reconciler.ExpiryInterval, cfg.Reconciler.BatchSize, userUC, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, cfg.HTTP) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error { return expiry.Run(gctx) })
	g.Go(func() error {
		pg.ReportPoolStats(gctx, pool, 15*time.Second, logger)
		return nil
	})

	logger.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("payment_mode", cfg.Payment.Mode).
		Str("gateway", gateway.Name()).
		Int("plans", len(plans.List())).
		Msg("teamchat-upgrade started")
	return g.Wait()
}

func newGateway(cfg *config.Config, logger *zerolog.Logger) (adapter.PaymentGateway, error) {
	switch cfg.Payment.Mode {
	case config.PaymentModeDaraja:
		d := cfg.Payment.Daraja
		gw, err := payAdapters.NewDarajaGateway(d.BaseURL, payAdapters.DarajaCredentials{
			ConsumerKey:    d.ConsumerKey,
			ConsumerSecret: d.ConsumerSecret,
			ShortCode:      d.ShortCode,
			PassKey:        d.PassKey,
			CallbackURL:    d.CallbackURL,
		}, d.Timeout, logger)
		if err != nil {
			return nil, err
		}
		return payAdapters.Limit(payAdapters.Instrument(gw), cfg.Payment.MaxConcurrent), nil
	default:
		s := cfg.Payment.Simulated
		opts := []payAdapters.SimulatedOption{
			payAdapters.WithLatency(s.InitiateLatency, s.StatusLatency),
			payAdapters.WithSuccessRate(s.SuccessRate),
			payAdapters.WithLogger(logger),
			// outlive the reconciler's window so late checks still resolve
			payAdapters.WithRetention(2 * cfg.Upgrade.PendingMaxAge),
		}
		if s.Seed != 0 {
			opts = append(opts, payAdapters.WithRand(rand.New(rand.NewSource(s.Seed))))
		}
		return payAdapters.Limit(payAdapters.Instrument(payAdapters.NewSimulatedGateway(opts...)), cfg.Payment.MaxConcurrent), nil
	}
}

func pingPool(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Conn().Ping(ctx)
}
