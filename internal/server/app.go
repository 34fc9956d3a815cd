// Package server assembles and runs the triox account server: PostgreSQL
// with migrations, the owned-data purger, the Redis session denylist, the
// event publisher and the gRPC endpoint, with graceful shutdown on signals.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/triox/internal/logging"
	"github.com/dmitrijs2005/triox/internal/server/config"
	"github.com/dmitrijs2005/triox/internal/server/events"
	"github.com/dmitrijs2005/triox/internal/server/password"
	"github.com/dmitrijs2005/triox/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/triox/internal/server/services"
	"github.com/dmitrijs2005/triox/internal/server/sessions"
	"github.com/dmitrijs2005/triox/internal/server/storage"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/triox/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	redis     *redis.Client
	publisher events.Publisher
	sessions  *sessions.Invalidator
	accounts  *services.AccountService
}

// NewApp connects to every backing store and wires the account service.
// Resources opened before a failure are released.
func NewApp(ctx context.Context, c *config.Config) (_ *App, err error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.db, err = repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err = rm.RunMigrations(ctx, app.db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	purger, err := newPurger(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	if err = app.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	app.publisher = newPublisher(c)

	app.sessions = sessions.NewInvalidator(
		sessions.NewRedisDenylist(app.redis),
		rm.RefreshTokens(app.db),
		logger,
	)

	app.accounts = services.NewAccountService(
		app.db,
		rm,
		password.NewArgon2(password.DefaultParams),
		purger,
		app.sessions,
		app.publisher,
		logger,
	)

	return app, nil
}

func newPurger(ctx context.Context, c *config.Config) (storage.Purger, error) {
	switch c.StorageBackend {
	case config.StorageFS:
		return storage.NewFSPurger(c.StorageRoot), nil
	case config.StorageS3:
		return storage.NewS3Purger(ctx, storage.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

func newPublisher(c *config.Config) events.Publisher {
	if len(c.KafkaBrokers) == 0 {
		return events.NopPublisher{}
	}
	return events.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic)
}

// Logger returns the application logger.
func (app *App) Logger() logging.Logger { return app.logger }

// Accounts returns the wired account service.
func (app *App) Accounts() *services.AccountService { return app.accounts }

// Close releases every backing connection.
func (app *App) Close() error {
	var errs []error
	if app.publisher != nil {
		errs = append(errs, app.publisher.Close())
	}
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(
		app.config.EndpointAddrGRPC,
		app.logger,
		app.accounts,
		app.sessions,
		app.config.SecretKey,
		app.config.MaskAccountNotFound,
	)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// closes the backing connections.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Warn(ctx, "close resources", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
