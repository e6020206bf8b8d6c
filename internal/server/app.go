// Package server initializes and runs the application: it wires config,
// logging, the database with its migrations, the auth and user services,
// and the HTTP server, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dsmirnov82/authuser/internal/logging"
	"github.com/dsmirnov82/authuser/internal/server/config"
	"github.com/dsmirnov82/authuser/internal/server/httpapi"
	"github.com/dsmirnov82/authuser/internal/server/repositories/repomanager"
	"github.com/dsmirnov82/authuser/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	repos  repomanager.RepositoryManager
	auth   *services.AuthService
	users  *services.UsersService
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := repomanager.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	authService := services.NewAuthService(db, rm, cfg, logger)
	usersService := services.NewUsersService(db, rm, authService, logger)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		repos:  rm,
		auth:   authService,
		users:  usersService,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.auth, app.users, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		app.logger.Error(ctx, "migration error", "error", err)
		return
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
