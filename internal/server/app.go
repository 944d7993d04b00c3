// Package server wires the backend: PostgreSQL repositories, the account,
// row and avatar services, the gRPC endpoint and the health probes.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/survivalcodex/codex/internal/logging"
	"github.com/survivalcodex/codex/internal/server/config"
	gs "github.com/survivalcodex/codex/internal/server/grpc"
	"github.com/survivalcodex/codex/internal/server/health"
	"github.com/survivalcodex/codex/internal/server/repositories/repomanager"
	"github.com/survivalcodex/codex/internal/server/services"
)

var (
	openDB               = repomanager.OpenPostgres
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	grpc   *gs.GRPCServer
	health *health.Server
}

// NewApp opens the database and brings the schema up to date.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, "json", c.LogLevel)

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	if c.OAuthSecret == "" {
		logger.Warn(ctx, "oauth secret not set, oauth sign-in disabled")
	}

	us := services.NewUserService(db, rm, c)
	rs := services.NewRowService(db, rm)
	as := services.NewAvatarService(c)

	return &App{
		config: c,
		logger: logger,
		db:     db,
		grpc:   gs.NewGRPCServer(c.EndpointAddrGRPC, logger, us, rs, as, c.SecretKey),
		health: health.NewServer(c.HealthAddr, db, logger),
	}, nil
}

// Run serves gRPC and the health probes until ctx is done or either fails.
func (app *App) Run(ctx context.Context) error {
	defer app.db.Close()

	app.logger.Info(ctx, "Starting app...")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(ctx) })
	g.Go(func() error { return app.health.Run(ctx) })

	err := g.Wait()
	app.logger.Info(ctx, "App stopped")
	return err
}
