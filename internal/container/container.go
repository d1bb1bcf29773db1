package container

import (
	"context"
	"fmt"

	"gosegment/adapters/analytics"
	"gosegment/adapters/excel"
	"gosegment/adapters/store"
	"gosegment/app"
	"gosegment/internal/config"
	"gosegment/internal/logging"
	"gosegment/internal/testkit"
	"gosegment/ports"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	// Infrastructure
	DB *sqlx.DB

	// Collaborators
	Runs      ports.RunRepository
	Catalog   ports.VariableCatalog
	Analytics ports.AnalyticsService

	// Services
	Segmentation *app.SegmentationService
}

// New creates the collaborators that need no database.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	c := &Container{Config: cfg, Logger: logging.OrNop(logger)}
	c.initCollaborators()
	return c, nil
}

// InitWithDatabase opens the run-history store and builds the services.
func (c *Container) InitWithDatabase(ctx context.Context) error {
	db, err := store.Open(ctx, c.Config.Database.Driver, c.Config.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	c.DB = db
	c.Runs = store.NewRunRepository(db)
	c.initServices()

	c.Logger.Info("container initialized",
		zap.String("analytics_mode", string(c.Config.Analytics.Mode)),
		zap.String("database_driver", c.Config.Database.Driver))
	return nil
}

// InitWithoutDatabase builds the services without run history.
func (c *Container) InitWithoutDatabase() {
	c.initServices()
}

// initCollaborators selects the catalog and analytics implementations.
// Without a codebook the synthetic survey doubles as the catalog.
func (c *Container) initCollaborators() {
	cfg := c.Config
	survey := testkit.GenerateSurvey(testkit.SurveyGeneratorConfig{
		Respondents: testkit.DefaultSurveyConfig().Respondents,
		Seed:        cfg.Analytics.StubSeed,
	})

	if cfg.Catalog.CodebookFile != "" {
		c.Catalog = excel.NewCodebookCatalog(cfg.Catalog.CodebookFile, cfg.Catalog.CodebookSheet, c.Logger)
	} else {
		c.Catalog = survey
	}

	switch cfg.Analytics.Mode {
	case config.AnalyticsStub:
		c.Analytics = testkit.NewStubAnalytics(survey, cfg.Analytics.StubSeed, testkit.WithLogger(c.Logger))
	default:
		c.Analytics = analytics.NewClient(analytics.Config{
			BaseURL:    cfg.Analytics.BaseURL,
			APIKey:     cfg.Analytics.APIKey,
			Timeout:    cfg.Analytics.Timeout,
			RatePerSec: cfg.Analytics.RatePerSec,
		}, c.Logger)
	}
}

func (c *Container) initServices() {
	c.Segmentation = app.NewSegmentationService(c.Analytics, c.Catalog, c.Runs, c.Config.Wizard, c.Logger)
}

// Close releases all resources.
func (c *Container) Close() error {
	if c.Segmentation != nil {
		c.Segmentation.Shutdown()
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}
