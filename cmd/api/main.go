package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"micromart/internal/config"
	"micromart/internal/database"
	"micromart/internal/logging"
	"micromart/internal/middleware"
	"micromart/internal/modules/auth"
	"micromart/internal/notification"
	"micromart/internal/pkg/jwt"
	"micromart/internal/pkg/perimeter"
	"micromart/internal/pkg/telemetry"
	"micromart/internal/pkg/tokencipher"
	"micromart/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "auth:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("api", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		return err
	}
	cfg, err := config.LoadAuthConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logging.New("auth", cfg.IsProd())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "auth", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := database.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info(ctx, "migrations applied")

	revoked, closeRevoked, err := revocationStore(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer closeRevoked()

	codec, err := jwt.New(cfg.JWTSecret)
	if err != nil {
		return err
	}
	cipher, err := tokencipher.New(cfg.CipherMode, []byte(cfg.EncryptionKey))
	if err != nil {
		return err
	}

	svc := auth.NewService(
		repository.NewUserRepository(db),
		revoked,
		codec,
		cipher,
		newMailer(cfg, log),
		log,
		auth.Config{
			AccessTTL:       cfg.AccessTTL,
			RefreshTTL:      cfg.RefreshTTL,
			VerificationTTL: cfg.VerificationTTL,
			StorageTimeout:  cfg.StorageTimeout,
		},
	)
	handler := auth.NewHandler(svc, log)

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		middleware.RequestLogger(log),
		telemetry.Middleware(),
		middleware.Perimeter(perimeter.New(cfg.TrustedEndpoints, cfg.PerimeterTrustLoopback), cfg.PerimeterExemptPaths, log),
	)
	handler.RegisterRoutes(r.Group("/api/auth"), middleware.InternalToken(cfg.InternalSecret, log))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "auth service listening", "addr", cfg.HTTPAddr, "revocation", cfg.RevocationBackend, "cipher", cfg.CipherMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info(context.Background(), "server exited gracefully")
	return nil
}

func revocationStore(ctx context.Context, cfg *config.AuthConfig, db *gorm.DB, log logging.Logger) (auth.RevocationStore, func(), error) {
	if cfg.RevocationBackend == config.RevocationBackendRedis {
		client, err := database.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx, "revocation store: redis", "addr", cfg.RedisAddr)
		return repository.NewRedisRevocationStore(client, cfg.RevocationRetention), func() { _ = client.Close() }, nil
	}
	log.Info(ctx, "revocation store: sql")
	return repository.NewRevokedTokenRepository(db, cfg.RevocationRetention), func() {}, nil
}

func newMailer(cfg *config.AuthConfig, log logging.Logger) auth.Mailer {
	if cfg.EmailServiceURL == "" || (cfg.EmailDevConsole && !cfg.IsProd()) {
		return notification.NewConsoleMailer(cfg.PublicBaseURL, log)
	}
	return notification.NewHTTPMailer(cfg.EmailServiceURL, cfg.InternalSecret, 5*time.Second)
}
