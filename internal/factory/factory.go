package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/sailsync/internal/api"
	"github.com/mcoot/sailsync/internal/config"
	"github.com/mcoot/sailsync/internal/dependencies/clock"
	"github.com/mcoot/sailsync/internal/dependencies/idgen"
	"github.com/mcoot/sailsync/internal/realtime"
	"github.com/mcoot/sailsync/internal/services/chat"
	"github.com/mcoot/sailsync/internal/services/identity"
	"github.com/mcoot/sailsync/internal/services/leaderboard"
	"github.com/mcoot/sailsync/internal/services/presence"
	"github.com/mcoot/sailsync/internal/services/session"
	"github.com/mcoot/sailsync/internal/services/state"
	"github.com/mcoot/sailsync/internal/storage"
	"github.com/mcoot/sailsync/internal/storage/memory"
	redisstorage "github.com/mcoot/sailsync/internal/storage/redis"
)

// App contains all wired application components
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Storage
	Store storage.Store

	// External dependencies
	Clock clock.Clock
	IDs   idgen.Generator

	// Services
	Registry    *session.Registry
	Throttler   *state.Throttler
	Cache       *state.Cache
	Resolver    *identity.Resolver
	Chat        *chat.Service
	Leaderboard *leaderboard.Aggregator
	Hub         *realtime.Hub
	Controller  *presence.Controller
	Dispatcher  *presence.Dispatcher

	// Transports
	Sockets    *realtime.SocketServer
	Spectators *realtime.SpectatorServer
}

// defaultDrainTimeout bounds Close when no shutdown timeout is configured
const defaultDrainTimeout = 30 * time.Second

// New creates a new application with all dependencies wired. A nil cfg
// uses config.Default(); a nil logger discards output.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	verifier, err := newVerifier(ctx, cfg.Identity)
	if err != nil {
		_ = closeStore(store)
		return nil, err
	}

	return newWithDependencies(cfg, store, clock.New(), idgen.New(), verifier, logger), nil
}

func newStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case config.StorageMemory, "":
		return memory.New(), nil
	case config.StorageRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		if cfg.PoolSize > 0 {
			redisCfg.PoolSize = cfg.PoolSize
		}
		if cfg.MinIdleConns > 0 {
			redisCfg.MinIdleConns = cfg.MinIdleConns
		}
		store, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("invalid storage type %q: must be 'memory' or 'redis'", cfg.Type)
	}
}

func newVerifier(ctx context.Context, cfg config.IdentityConfig) (identity.Verifier, error) {
	switch cfg.Provider {
	case config.IdentityNone, "":
		return nil, nil
	case config.IdentityStatic:
		if len(cfg.StaticTokens) == 0 {
			return nil, errors.New("static identity provider requires static_tokens")
		}
		return identity.NewStaticVerifier(cfg.StaticTokens), nil
	case config.IdentityFirebase:
		verifier, err := identity.NewFirebaseVerifier(ctx, identity.FirebaseConfig{
			ProjectID:       cfg.ProjectID,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize firebase: %w", err)
		}
		return verifier, nil
	default:
		return nil, fmt.Errorf("invalid identity provider %q", cfg.Provider)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	cfg *config.Config,
	store storage.Store,
	clk clock.Clock,
	ids idgen.Generator,
	verifier identity.Verifier,
	logger *slog.Logger,
) *App {
	timeout := cfg.Storage.Timeout

	registry := session.NewRegistry()
	throttler := state.NewThrottler(cfg.Sync.ThrottleInterval, clk)
	cache := state.NewCache(store, throttler, clk, timeout, logger)
	resolver := identity.NewResolver(verifier, cfg.Identity.Timeout, logger)
	chatService := chat.New(store, cache, clk, timeout, logger)
	aggregator := leaderboard.NewAggregator(store, timeout, logger)
	hub := realtime.NewHub(cfg.Sync.SendBuffer, logger)
	controller := presence.NewController(
		resolver,
		registry,
		cache,
		chatService,
		aggregator,
		hub,
		ids,
		clk,
		presence.Limits{
			LeaderboardLimit: cfg.Sync.LeaderboardLimit,
			ChatHistoryLimit: cfg.Sync.ChatHistoryLimit,
		},
		logger,
	)
	dispatcher := presence.NewDispatcher(controller, logger)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Clock:       clk,
		IDs:         ids,
		Registry:    registry,
		Throttler:   throttler,
		Cache:       cache,
		Resolver:    resolver,
		Chat:        chatService,
		Leaderboard: aggregator,
		Hub:         hub,
		Controller:  controller,
		Dispatcher:  dispatcher,
		Sockets:     realtime.NewSocketServer(hub, dispatcher, ids, logger),
		Spectators:  realtime.NewSpectatorServer(hub, ids, logger),
	}
}

// Start hydrates the state cache and starts the hub. An unreadable store
// leaves the cache empty rather than failing startup.
func (a *App) Start(ctx context.Context) {
	if err := a.Cache.HydrateAll(ctx); err != nil {
		a.Logger.Warn("starting with an empty state cache", slog.String("error", err.Error()))
	}
	a.Logger.Info("leaderboard ready", slog.Bool("native_ordering", a.Leaderboard.Ordered()))
	go a.Hub.Run()
}

// Router returns the HTTP handler serving the API and realtime transports
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:           a.Logger,
		Controller:       a.Controller,
		Hub:              a.Hub,
		Sockets:          a.Sockets,
		Spectators:       a.Spectators,
		LeaderboardLimit: a.Config.Sync.LeaderboardLimit,
		AdminTokenHash:   a.Config.Admin.TokenHash,
	})
}

// Close stops the hub, waits for websocket sessions to persist their
// disconnects, then releases the store. A drain that outlives the shutdown
// timeout is logged and the store is closed anyway.
func (a *App) Close() error {
	a.Hub.Close()

	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultDrainTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.Sockets.Drain(ctx); err != nil {
		a.Logger.Warn("websocket sessions still open at close", slog.String("error", err.Error()))
	}

	return closeStore(a.Store)
}

func closeStore(store storage.Store) error {
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
