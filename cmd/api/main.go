package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/application/claim"
	"github.com/go-dead-mans-switch/internal/application/deadswitch"
	"github.com/go-dead-mans-switch/internal/application/link"
	"github.com/go-dead-mans-switch/internal/application/liveness"
	"github.com/go-dead-mans-switch/internal/application/notification"
	"github.com/go-dead-mans-switch/internal/application/recovery"
	"github.com/go-dead-mans-switch/internal/application/scheduler"
	"github.com/go-dead-mans-switch/internal/application/user"
	"github.com/go-dead-mans-switch/internal/config"
	"github.com/go-dead-mans-switch/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-dead-mans-switch/internal/infrastructure/jwt"
	"github.com/go-dead-mans-switch/internal/infrastructure/notify"
	s3infra "github.com/go-dead-mans-switch/internal/infrastructure/s3"
	"github.com/go-dead-mans-switch/internal/infrastructure/smtp"
	"github.com/go-dead-mans-switch/internal/infrastructure/sns"
	"github.com/go-dead-mans-switch/internal/pkg/seal"
	"github.com/go-dead-mans-switch/internal/pkg/secretshare"
	transporthttp "github.com/go-dead-mans-switch/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	setupLogger(cfg)

	if err := run(cfg); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Creates missing tables; a no-op against an already provisioned account.
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	sealer, err := seal.NewFromHex(cfg.ShareSealingKey)
	if err != nil {
		return fmt.Errorf("share sealing key: %w", err)
	}

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	// SNS is optional: without it SMS deliveries fail and are recorded.
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		slog.Warn("SNS sender not available", "err", err)
	}
	notifier, err := notify.New(cfg, smtp.NewMailer(cfg), smsSender)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	clk := clock.New()
	t := cfg.DynamoTables
	userRepo := dynamo.NewUserRepo(dynamoClient, t.Users)
	switchRepo := dynamo.NewSwitchRepo(dynamoClient, t.Switches)
	beneficiaryRepo := dynamo.NewBeneficiaryRepo(dynamoClient, t.Beneficiaries)
	linkRepo := dynamo.NewLinkRepo(dynamoClient, t.Links)
	claimRepo := dynamo.NewClaimRepo(dynamoClient, t.Claims, t.Links, t.VerificationEvents)
	eventRepo := dynamo.NewEventRepo(dynamoClient, t.VerificationEvents)
	tokenRepo := dynamo.NewTokenRepo(dynamoClient, t.ResponseTokens)
	deliveryRepo := dynamo.NewDeliveryRepo(dynamoClient, t.Deliveries)
	files := s3infra.NewStore(s3infra.NewClient(cfg), cfg.S3BucketName)

	notifications := notification.NewService(notifier, deliveryRepo, clk)
	monitor := liveness.NewService(liveness.ServiceDeps{
		SwitchRepo:      switchRepo,
		BeneficiaryRepo: beneficiaryRepo,
		UserRepo:        userRepo,
		Files:           files,
		Sealer:          sealer,
		Dispatcher:      notifications,
		Clock:           clk,
		GracePeriodDays: cfg.GracePeriodDays,
		PresignTTL:      cfg.PresignTTL,
	})
	claims := claim.NewService(claim.ServiceDeps{
		ClaimRepo:         claimRepo,
		EventRepo:         eventRepo,
		LinkRepo:          linkRepo,
		UserRepo:          userRepo,
		TokenRepo:         tokenRepo,
		Dispatcher:        notifications,
		Clock:             clk,
		EmailIntervalDays: cfg.EmailIntervalDays,
		PhoneIntervalDays: cfg.PhoneIntervalDays,
		ResponseTokenTTL:  cfg.ResponseTokenTTL,
		PublicBaseURL:     cfg.PublicBaseURL,
	})
	sched := scheduler.New(scheduler.Deps{
		Monitor:  monitor,
		Claims:   claims,
		Tokens:   tokenRepo,
		Clock:    clk,
		Interval: cfg.SchedulerInterval,
	})

	deps := &transporthttp.Deps{
		Users: user.NewService(userRepo, clk),
		Switches: deadswitch.NewService(deadswitch.ServiceDeps{
			SwitchRepo:      switchRepo,
			BeneficiaryRepo: beneficiaryRepo,
			Files:           files,
			ObjectKey:       s3infra.ObjectKey,
			Sealer:          sealer,
			Engine:          secretshare.Engine{},
			Clock:           clk,
			GracePeriodDays: cfg.GracePeriodDays,
		}),
		Links:   link.NewService(linkRepo, switchRepo, userRepo, clk),
		Monitor: monitor,
		Claims:  claims,
		Recovery: recovery.NewService(recovery.ServiceDeps{
			ClaimRepo:       claimRepo,
			LinkRepo:        linkRepo,
			SwitchRepo:      switchRepo,
			BeneficiaryRepo: beneficiaryRepo,
			Sealer:          sealer,
		}),
		Notifications: notifications,
		Scheduler:     sched,
		JWTProvider:   jwtProvider,
		Done:          ctx.Done(),
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go sched.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "notifier", cfg.NotifierMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
