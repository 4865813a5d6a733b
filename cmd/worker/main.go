package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/database"
	"github.com/phdwriter/essay_go_server/internal/pkg/cron"
	"github.com/phdwriter/essay_go_server/internal/pkg/email"
	"github.com/phdwriter/essay_go_server/internal/pkg/lock"
	"github.com/phdwriter/essay_go_server/internal/pkg/pubsub"
	"github.com/phdwriter/essay_go_server/internal/pkg/queue"
	"github.com/phdwriter/essay_go_server/internal/repository"
	"github.com/phdwriter/essay_go_server/internal/service"
	"github.com/phdwriter/essay_go_server/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	redisClient, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)

	reconcileSvc := service.NewReconcileService(
		userRepo,
		subRepo,
		eventRepo,
		pubsub.NewPublisher(redisClient),
		email.NewService(&cfg.Email),
		lock.NewAccountLock(redisClient, 10*time.Second),
		cfg,
	)

	eventQueue := queue.NewQueue(redisClient, cfg.Queue.WebhookQueue)
	reconciler := worker.NewReconciler(eventQueue, reconcileSvc, cfg.Queue.MaxWorkers)

	scheduler := cron.NewScheduler()
	scheduler.AddJob("cycle_rollover", time.Hour, func(ctx context.Context) error {
		now := time.Now()
		n, err := userRepo.ResetDueCycles(now, firstOfNextMonth(now))
		if n > 0 {
			log.Info().Int64("accounts", n).Msg("billing cycles rolled over")
		}
		return err
	})
	scheduler.AddJob("expire_pending_subscriptions", time.Hour, func(ctx context.Context) error {
		n, err := subRepo.ExpirePending(time.Now().Add(-24 * time.Hour))
		if n > 0 {
			log.Info().Int64("subscriptions", n).Msg("abandoned pending subscriptions expired")
		}
		return err
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()
	wg.Wait()
}

func firstOfNextMonth(now time.Time) time.Time {
	year, month, _ := now.Date()
	return time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location())
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Server.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
