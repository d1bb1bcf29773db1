// Command stub serves the synthetic analytics service over HTTP with the
// same routes as the remote backend.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gosegment/internal/config"
	"gosegment/internal/logging"
	"gosegment/internal/testkit"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// the stub needs no remote URL, so it reads its settings without full validation
	os.Setenv("ANALYTICS_MODE", string(config.AnalyticsStub))
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	survey := testkit.GenerateSurvey(testkit.SurveyGeneratorConfig{
		Respondents: testkit.DefaultSurveyConfig().Respondents,
		Seed:        cfg.Analytics.StubSeed,
	})
	service := testkit.NewStubAnalytics(survey, cfg.Analytics.StubSeed, testkit.WithLogger(logger))

	srv := &http.Server{
		Addr:              ":" + cfg.Analytics.StubPort,
		Handler:           testkit.NewHandler(service, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("stub analytics listening", zap.String("addr", srv.Addr), zap.Int("respondents", survey.N))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("stub stopped", zap.Error(err))
		os.Exit(1)
	}
}
