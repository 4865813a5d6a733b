package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/api"
	"github.com/phdwriter/essay_go_server/internal/api/handler"
	"github.com/phdwriter/essay_go_server/internal/database"
	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/pkg/email"
	"github.com/phdwriter/essay_go_server/internal/pkg/oauth"
	"github.com/phdwriter/essay_go_server/internal/pkg/payment"
	"github.com/phdwriter/essay_go_server/internal/pkg/pubsub"
	"github.com/phdwriter/essay_go_server/internal/pkg/queue"
	"github.com/phdwriter/essay_go_server/internal/pkg/storage"
	"github.com/phdwriter/essay_go_server/internal/pkg/ws"
	"github.com/phdwriter/essay_go_server/internal/repository"
	"github.com/phdwriter/essay_go_server/internal/service"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
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
	essayRepo := repository.NewEssayRepository(db)

	eventQueue := queue.NewQueue(redisClient, cfg.Queue.WebhookQueue)
	emailSvc := email.NewService(&cfg.Email)
	githubOAuth := oauth.NewGithubClient(cfg.OAuth.Github.ClientID, cfg.OAuth.Github.ClientSecret, cfg.OAuth.Github.RedirectURI)
	stripeClient := payment.NewStripeClient(cfg.Stripe.SecretKey)
	paypalClient := payment.NewPayPalClient(cfg.PayPal.ClientID, cfg.PayPal.ClientSecret, cfg.PayPal.Sandbox)

	var ossClient *storage.Client
	if cfg.OSS.Endpoint != "" {
		ossClient, err = storage.NewClient(&cfg.OSS)
		if err != nil {
			log.Warn().Err(err).Msg("object storage unavailable, serving essays from database")
			ossClient = nil
		}
	}

	entitlementSvc := service.NewEntitlementService(userRepo, cfg)
	authSvc := service.NewAuthService(userRepo, emailSvc, githubOAuth, cfg)
	userSvc := service.NewUserService(userRepo)
	essaySvc := service.NewEssayService(essayRepo, userRepo, entitlementSvc, ossClient, cfg)
	journalSvc := service.NewJournalService()
	paymentSvc := service.NewPaymentService(userRepo, subRepo, stripeClient, paypalClient, cfg)

	hub := ws.NewHub()

	handlers := &api.Handlers{
		Auth:      handler.NewAuthHandler(authSvc),
		User:      handler.NewUserHandler(userSvc, entitlementSvc),
		Essay:     handler.NewEssayHandler(essaySvc, paymentSvc),
		Journal:   handler.NewJournalHandler(journalSvc),
		Billing:   handler.NewBillingHandler(paymentSvc),
		Plans:     handler.NewPlansHandler(cfg),
		Webhook:   handler.NewWebhookHandler(eventQueue, paypalClient, cfg),
		WebSocket: handler.NewWebSocketHandler(hub),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// forward reconcile-worker billing updates to open websockets
	go forwardBillingUpdates(ctx, pubsub.NewSubscriber(redisClient), hub)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(cfg, handlers),
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}

func forwardBillingUpdates(ctx context.Context, sub *pubsub.Subscriber, hub *ws.Hub) {
	for {
		err := sub.Listen(ctx, func(msg *pubsub.BillingMessage) {
			_ = hub.SendToUser(msg.UserID, &ws.Message{
				Type: "billing_update",
				Data: dto.BillingUpdate{
					State:   msg.State,
					Tier:    msg.Tier,
					Credits: msg.Credits,
					EventID: msg.EventID,
				},
			})
		})
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("billing update subscription dropped, reconnecting")
		time.Sleep(time.Second)
	}
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
