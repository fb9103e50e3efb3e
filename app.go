// Package sdk is the composition root: App wires every internal
// package into the running SDK instance a host application embeds.
package sdk

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/wireapp/wire-apps-go-sdk/internal/appmanager"
	"github.com/wireapp/wire-apps-go-sdk/internal/asset"
	"github.com/wireapp/wire-apps-go-sdk/internal/backend"
	"github.com/wireapp/wire-apps-go-sdk/internal/bootstrap"
	"github.com/wireapp/wire-apps-go-sdk/internal/config"
	"github.com/wireapp/wire-apps-go-sdk/internal/conversation"
	"github.com/wireapp/wire-apps-go-sdk/internal/handler"
	"github.com/wireapp/wire-apps-go-sdk/internal/listener"
	"github.com/wireapp/wire-apps-go-sdk/internal/logging"
	"github.com/wireapp/wire-apps-go-sdk/internal/metrics"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
	"github.com/wireapp/wire-apps-go-sdk/internal/router"
	"github.com/wireapp/wire-apps-go-sdk/internal/store/sqlstore"
)

// EngineFactory constructs the concrete CryptoEngine (C2). The SDK
// core only depends on the cryptoengine.Engine interface (spec §9) —
// hosts supply the MLS/Proteus implementation.
type EngineFactory = bootstrap.EngineFactory

// App is the SDK's public entry point: one instance per registered
// device.
type App struct {
	cfg      *config.Config
	db       *sql.DB
	backend  *backend.Client
	metrics  *metrics.Metrics
	handlers *handler.Registry
	manager  *appmanager.Manager
	router   *router.Router
	listener *listener.Listener

	cancel context.CancelFunc
	done   chan struct{}
}

// Options are the pieces of App construction a host must supply
// beyond plain configuration.
type Options struct {
	// StoragePath is the SQLite database file (":memory:" for tests).
	StoragePath string
	// NewEngine constructs the CryptoEngine rooted at a derived
	// keystore path (spec §4.8).
	NewEngine EngineFactory
}

// New loads configuration, runs CryptoBootstrap, and wires every
// internal component. Call Run to start the event pipeline and
// Close to release resources (reverse creation order, spec §5).
func New(ctx context.Context, yamlConfigPath string, opts Options) (*App, error) {
	cfg, err := config.Load(yamlConfigPath)
	if err != nil {
		return nil, fmt.Errorf("sdk: load config: %w", err)
	}

	logging.Setup()

	m := metrics.New()

	db, err := sqlstore.Open(opts.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("sdk: open database: %w", err)
	}
	if err := sqlstore.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sdk: migrate database: %w", err)
	}

	var (
		teams = sqlstore.NewTeamStore(db)
		convs = sqlstore.NewConversationStore(db)
		apps  = sqlstore.NewAppStore(db)
	)

	bc := backend.New(cfg, m)

	bootResult, err := bootstrap.Run(ctx, cfg, bc, apps, opts.NewEngine)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sdk: bootstrap: %w", err)
	}

	selfUserUUID, err := uuid.Parse(cfg.UserID)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sdk: config user_id is not a uuid: %w", err)
	}
	selfUserID := model.QualifiedId{ID: selfUserUUID, Domain: bootResult.Domain}

	handlers := handler.New()
	convService := conversation.NewService(bc, bootResult.Engine, convs, teams, apps, handlers, m, selfUserID, bootResult.Domain)
	assets := asset.NewService(bc, cfg.MaxAssetDataSize)
	mgr := appmanager.New(bc, bootResult.Engine, convs, convService, assets, bootResult.Domain)

	done := make(chan struct{})
	r := router.New(convService, m, done)
	l := listener.New(bc, apps, bootResult.DeviceId, r, m, nil)

	app := &App{
		cfg:      cfg,
		db:       db,
		backend:  bc,
		metrics:  m,
		handlers: handlers,
		manager:  mgr,
		router:   r,
		listener: l,
		done:     done,
	}

	if err := convService.EstablishOrRejoinConversations(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("sdk: establish/rejoin conversations: %w", err)
	}

	return app, nil
}

// Run starts the event listener loop; it blocks until ctx is
// cancelled or Close is called.
func (a *App) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.listener.Run(runCtx)
}

// Manager exposes the public send/receive façade (C10).
func (a *App) Manager() *appmanager.Manager {
	return a.manager
}

// Handlers exposes the Handler Surface (§4.7) for registering
// callbacks.
func (a *App) Handlers() *handler.Registry {
	return a.handlers
}

// MetricsHandler returns the Prometheus scrape handler.
func (a *App) MetricsHandler() http.Handler {
	return a.metrics.Handler()
}

// SetLogLevel changes the SDK's global log level at runtime.
func (a *App) SetLogLevel(levelName string) error {
	lvl, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	logging.SetLevel(lvl)
	return nil
}

// Close releases resources in reverse creation order: stop accepting
// new work, drain the router and its in-flight handler callbacks,
// then close the database.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	close(a.done)
	a.router.Wait()
	a.handlers.Wait()
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
