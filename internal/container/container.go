package container

import (
	"context"
	"fmt"

	"gobayes/adapters/excel"
	"gobayes/adapters/postgres"
	"gobayes/adapters/stan"
	"gobayes/app"
	"gobayes/internal"
	"gobayes/internal/api"
	"gobayes/internal/config"
	"gobayes/internal/migration"
	"gobayes/internal/testkit"
	"gobayes/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB     *sqlx.DB
	Engine ports.SamplerEngine
	RNG    ports.RNGPort

	// Repositories (data access layer)
	FitRepo ports.FitRepository

	// Services
	FitService      *app.FitService
	AnalysisService *app.AnalysisService

	logger *internal.Logger
}

// Option adjusts a container before its services are built
type Option func(*Container)

// WithEngine replaces the engine chosen by the configuration
func WithEngine(engine ports.SamplerEngine) Option {
	return func(c *Container) { c.Engine = engine }
}

// New creates a new dependency injection container. Services use an
// in-memory repository until InitWithDatabase is called.
func New(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	kit := testkit.NewTestKit()
	c := &Container{
		Config:  cfg,
		RNG:     kit.RNGAdapter(),
		FitRepo: kit.FitRepository(),
		logger:  cfg.Logger().With("container"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.Engine == nil {
		switch cfg.Stan.Engine {
		case "fake":
			c.Engine = kit.Engine()
		default:
			c.Engine = stan.NewEngine(stan.Config{Home: cfg.Stan.Home, WorkDir: cfg.Stan.WorkDir},
				stan.WithLogger(cfg.Logger().With(stan.EngineName)))
		}
	}
	c.initServices()
	c.logger.Debug("engine %s, in-memory fit store", c.Engine.Name())
	return c, nil
}

func (c *Container) initServices() {
	c.FitService = app.NewFitService(c.Engine, c.RNG, c.FitRepo)
	c.AnalysisService = app.NewAnalysisService()
}

// Connect opens the configured database, if any, and switches the
// repository to it
func (c *Container) Connect(ctx context.Context) error {
	if !c.Config.Database.Enabled() {
		return nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, c.Config.Database.ConnectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, "postgres", c.Config.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if n := c.Config.Database.MaxOpenConns; n > 0 {
		db.SetMaxOpenConns(n)
	}
	if err := c.InitWithDatabase(ctx, db); err != nil {
		db.Close()
		return err
	}
	return nil
}

// InitWithDatabase migrates the schema and stores fits in db
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	c.DB = db
	c.FitRepo = postgres.NewFitRepository(db)
	c.initServices()
	c.logger.Info("fits are stored in postgres")
	return nil
}

// Reader returns a dataset reader for CSV and XLSX files
func (c *Container) Reader(sheet string, factors []string) ports.DatasetReader {
	return excel.NewDataReader(excel.Config{Sheet: sheet, Factors: factors})
}

// Server builds the HTTP API over the container's services
func (c *Container) Server() *api.Server {
	return api.NewServer(c.FitService, c.AnalysisService, c.FitRepo, c.Config.Sampler.Defaults)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
