package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gosegment/internal/config"
	"gosegment/internal/container"
	"gosegment/internal/logging"
	"gosegment/ui"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// janitorInterval is how often idle wizards are swept.
const janitorInterval = time.Minute

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(appConfig.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(appConfig, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(appConfig *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(appConfig, logger)
	if err != nil {
		return err
	}
	if err := c.InitWithDatabase(ctx); err != nil {
		return err
	}
	defer c.Close()

	server := ui.NewServer(c.Segmentation, logger, appConfig.Server.GinMode)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx, ":"+appConfig.Server.Port)
	})
	g.Go(func() error {
		return c.Segmentation.RunJanitor(ctx, janitorInterval)
	})
	return g.Wait()
}
