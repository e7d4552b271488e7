package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"booksdb/internal/config"
	"booksdb/internal/dataset"
	"booksdb/internal/fixtures"
	"booksdb/internal/seeder"
	"booksdb/internal/storage"
	"booksdb/internal/storage/mongodb"
	"booksdb/internal/storage/stubs"
)

// Commands accepted by Run
const (
	CommandUp       = "up"
	CommandStatus   = "status"
	CommandValidate = "validate"
)

// ErrUnknownCommand is returned by Run for a command it does not know
var ErrUnknownCommand = errors.New("unknown command")

// App represents the application
type App struct {
	config  *config.Config
	logger  *zap.Logger
	dataset dataset.Dataset
	db      storage.Storage
	out     io.Writer
}

// New creates and initializes a new application instance from the environment
func New() (*App, error) {
	dotenv := config.LoadDotEnv()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if !dotenv {
		logger.Debug("No .env file found, using system environment variables")
	}

	return NewWithConfig(cfg, logger, os.Stdout)
}

// NewWithConfig creates an application from an explicit configuration
func NewWithConfig(cfg *config.Config, logger *zap.Logger, out io.Writer) (*App, error) {
	app := &App{config: cfg, logger: logger, out: out}

	if err := app.loadDataset(); err != nil {
		return nil, err
	}
	return app, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// loadDataset reads the configured dataset file, or falls back to the bundled one
func (a *App) loadDataset() error {
	if a.config.DatasetPath == "" {
		ds, err := fixtures.BooksDB(a.config.Database)
		if err != nil {
			return fmt.Errorf("failed to build bundled dataset: %w", err)
		}
		a.dataset = ds
		a.logger.Info("Using bundled dataset", zap.String("dataset", ds.Name))
		return nil
	}

	ds, err := dataset.Load(a.config.DatasetPath)
	if err != nil {
		return err
	}
	a.dataset = ds
	a.logger.Info("Dataset loaded",
		zap.String("path", a.config.DatasetPath),
		zap.String("dataset", ds.Name),
		zap.Int("collections", len(ds.Collections)),
		zap.Int("documents", ds.DocumentCount()),
	)
	return nil
}

// initDatabase connects to the configured datastore
func (a *App) initDatabase(ctx context.Context) error {
	if a.db != nil {
		return nil
	}

	if a.config.UseMockDB {
		a.logger.Info("Using mock database")
		a.db = stubs.NewMockDB()
		return nil
	}

	a.logger.Info("Connecting to MongoDB",
		zap.String("database", a.config.Database),
		zap.Duration("timeout", a.config.ConnectTimeout),
	)
	db, err := mongodb.NewMongoDB(ctx, a.config.MongoURI, a.config.Database, a.config.ConnectTimeout)
	if err != nil {
		a.logger.Error("Failed to connect to MongoDB", zap.Error(err))
		return err
	}
	a.db = db
	return nil
}

func (a *App) newSeeder() *seeder.Seeder {
	history := a.config.HistoryCollection
	if a.config.SkipHistory {
		history = ""
	}
	return seeder.New(a.db, a.logger, seeder.Options{
		AccountUser:       a.config.AccountUser,
		AccountPassword:   a.config.AccountPassword,
		SkipAccount:       a.config.SkipAccount,
		HistoryCollection: history,
	})
}

// Run executes a command; an interrupt cancels whatever is in flight
func (a *App) Run(ctx context.Context, command string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case CommandValidate:
		if err := a.dataset.Validate(); err != nil {
			return &seeder.Error{Kind: seeder.KindInvalidDataset, Err: err}
		}
		fmt.Fprintf(a.out, "Dataset %s is valid: %d collections, %d documents\n",
			a.dataset.Name, len(a.dataset.Collections), a.dataset.DocumentCount())
		return nil

	case CommandUp:
		if err := a.initDatabase(ctx); err != nil {
			return err
		}
		report, err := a.newSeeder().Seed(ctx, a.dataset)
		if err != nil {
			return err
		}
		report.WriteSummary(a.out)
		return nil

	case CommandStatus:
		if err := a.initDatabase(ctx); err != nil {
			return err
		}
		statuses, err := a.newSeeder().Status(ctx, a.dataset)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Dataset %s:\n", a.dataset.Name)
		seeder.WriteStatus(a.out, statuses)
		return nil
	}

	return fmt.Errorf("%w %q (expected %s, %s or %s)", ErrUnknownCommand, command, CommandUp, CommandStatus, CommandValidate)
}

// Shutdown closes the datastore connection and flushes the logger
func (a *App) Shutdown() error {
	defer a.logger.Sync() //nolint:errcheck

	if a.db == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.db.Close(ctx); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Debug("Shutdown complete")
	return nil
}
