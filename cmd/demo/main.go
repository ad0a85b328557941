// Command demo drives one upgrade end to end against the simulated gateway.
// It needs the same Postgres and Redis as the app.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/config"
	payAdapters "teamchat-upgrade/internal/infra/adapters/payment"
	pg "teamchat-upgrade/internal/infra/db/postgres"
	"teamchat-upgrade/internal/infra/i18n"
	"teamchat-upgrade/internal/infra/notify"
	red "teamchat-upgrade/internal/infra/redis"
	"teamchat-upgrade/internal/infra/security"
	"teamchat-upgrade/internal/infra/worker"
	"teamchat-upgrade/internal/usecase"
)

func main() {
	planID := flag.String("plan", "premium-6months", "plan to buy")
	phone := flag.String("phone", "0712345678", "payer phone number")
	cfg, err := config.LoadConfig()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, &logger); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect")
	}
	defer redisClient.Close()

	key := cfg.Security.EncryptionKey
	if key == "" {
		key = "demo-only-encryption-key"
	}
	encSvc, err := security.NewEncryptionService(key)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	users := pg.NewPostgresUserRepo(pool)
	payments := pg.NewPaymentRepo(pool, encSvc)
	tm := pg.NewTxManager(pool)
	tr := i18n.MustDefault()
	hub := notify.NewHub(0, &logger)
	plans, err := usecase.NewPlanCatalog(cfg.Plans)
	if err != nil {
		logger.Fatal().Err(err).Msg("plans")
	}
	ledgers := usecase.NewLedgerRegistry(users, tr, hub)
	userUC := usecase.NewUserUseCase(users, tm, ledgers, cfg.Credits.FreeDefault, &logger)
	creditUC := usecase.NewCreditUseCase(users, ledgers, tr, &logger)

	workers := worker.NewPool(2, 8, &logger)
	workers.Start(ctx)
	defer workers.Stop()

	upCfg := cfg.Upgrade
	upCfg.PromptDelay = time.Second
	upgradeUC := usecase.NewUpgradeUseCase(ctx, upCfg, usecase.UpgradeDeps{
		Users:     users,
		Payments:  payments,
		Sessions:  red.NewUpgradeSessionStore(redisClient, cfg.Upgrade.SnapshotTTL),
		TxManager: tm,
		Plans:     plans,
		Gateway: payAdapters.NewSimulatedGateway(
			payAdapters.WithLatency(200*time.Millisecond, 200*time.Millisecond),
			payAdapters.WithSuccessRate(1),
			payAdapters.WithLogger(&logger),
		),
		Locker:     red.NewLocker(redisClient),
		Limiter:    red.NewRateLimiter(redisClient),
		Scheduler:  workers,
		Ledgers:    ledgers,
		Notifier:   hub,
		Translator: tr,
		Logger:     &logger,
		Dev:        true,
	})

	// 1. A fresh free user spends a credit.
	uid := uuid.NewString()
	user, err := userUC.Register(ctx, uid, "demo+"+uid[:8]+"@example.com", "Demo User")
	if err != nil {
		logger.Fatal().Err(err).Msg("register")
	}
	fmt.Printf("user %s tier=%s credits=%d\n", user.ID, user.Tier, user.CreditsRemaining)
	res, err := creditUC.Consume(ctx, uid, "send_message", 1)
	if err != nil {
		logger.Fatal().Err(err).Msg("consume")
	}
	fmt.Printf("consumed 1 credit, %d left\n", res.Remaining)

	// 2. Upgrade.
	snap, err := upgradeUC.Start(ctx, uid)
	if err != nil {
		logger.Fatal().Err(err).Msg("start upgrade")
	}
	snap, err = upgradeUC.Submit(ctx, snap.ID, *planID, *phone)
	if err != nil {
		ev := logger.Fatal().Err(err)
		if snap != nil {
			ev = ev.Str("message", snap.Message)
		}
		ev.Msg("submit upgrade")
	}
	fmt.Printf("workflow %s: %s (%s)\n", snap.ID, snap.State, snap.Message)
	if snap, err = upgradeUC.Await(ctx, snap.ID); err != nil {
		logger.Fatal().Err(err).Msg("await upgrade")
	}
	fmt.Printf("workflow %s: %s (%s)\n", snap.ID, snap.State, snap.Message)

	// 3. The account reflects the new tier.
	user, err = userUC.Current(ctx, uid)
	if err != nil {
		logger.Fatal().Err(err).Msg("reload user")
	}
	fmt.Printf("user %s tier=%s credits=%d\n", user.ID, user.Tier, user.CreditsRemaining)
	for _, n := range hub.Drain(uid) {
		fmt.Printf("  [%s] %s\n", n.Level, n.Message)
	}
}
