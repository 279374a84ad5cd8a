package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"micromart/internal/config"
	"micromart/internal/database"
	"micromart/internal/logging"
	"micromart/internal/repository"
)

// auth_cleanup purges revocation rows older than the retention window. Only
// the sql backend needs it; redis expires keys itself.
func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadAuthConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New("auth_cleanup", cfg.IsProd())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if cfg.RevocationBackend != config.RevocationBackendSQL {
		log.Info(ctx, "nothing to do", "revocation", cfg.RevocationBackend)
		return
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error(ctx, "db connect failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = database.Close(db) }()

	n, err := repository.NewRevokedTokenRepository(db, cfg.RevocationRetention).Purge(ctx)
	if err != nil {
		log.Error(ctx, "purge revoked tokens failed", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "auth cleanup completed", "revoked_tokens", n)
}
