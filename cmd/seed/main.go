package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"micromart/internal/config"
	"micromart/internal/database"
	"micromart/internal/domain"
	"micromart/internal/logging"
	"micromart/internal/pkg/validator"
	"micromart/internal/repository"
)

// seed creates a verified demo account for local development. Running it
// twice is harmless.
func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	email := pflag.String("email", "demo@micromart.local", "demo account email")
	password := pflag.String("password", "Demo1234!", "demo account password")
	pflag.Parse()

	if err := run(*envFile, *email, *password); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func run(envFile, email, password string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadAuthConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.IsProd() {
		return errors.New("refusing to seed a production database")
	}
	if !validator.IsValidPassword(password) {
		return errors.New("password does not meet the complexity rules")
	}

	log := logging.New("seed", false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(db)
	err = users.Create(ctx, &domain.User{
		Email:         email,
		PasswordHash:  string(hash),
		FirstName:     "Demo",
		LastName:      "User",
		EmailVerified: true,
	})
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		log.Info(ctx, "demo user already exists", "email", email)
	case err != nil:
		return err
	default:
		log.Info(ctx, "demo user created", "email", email)
	}
	return nil
}
