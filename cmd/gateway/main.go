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

	"micromart/internal/config"
	"micromart/internal/logging"
	"micromart/internal/modules/gateway"
	"micromart/internal/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
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
	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logging.New("gateway", cfg.IsProd())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "gateway", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	client := gateway.NewAuthClient(cfg.AuthServiceURL, cfg.AuthValidatePath, cfg.AuthTimeout)
	bridge := gateway.NewBridge(client, cfg.PublicEndpoints, log)
	if err := bridge.WithRejectionCache(cfg.RejectCacheTTL); err != nil {
		return fmt.Errorf("rejection cache: %w", err)
	}
	defer bridge.Close()

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gateway.NewRouter(bridge, gateway.NewProxy(cfg.Routes, log), cfg.CORSOrigins, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "gateway listening", "addr", cfg.HTTPAddr, "routes", len(cfg.Routes))
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
	return srv.Shutdown(shutdownCtx)
}
