package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/driftwatch/internal/auth"
	"github.com/HerbHall/driftwatch/internal/config"
	"github.com/HerbHall/driftwatch/internal/event"
	"github.com/HerbHall/driftwatch/internal/registry"
	"github.com/HerbHall/driftwatch/internal/server"
	"github.com/HerbHall/driftwatch/internal/store"
	"github.com/HerbHall/driftwatch/internal/version"
	"github.com/HerbHall/driftwatch/internal/watch"
	"github.com/HerbHall/driftwatch/internal/ws"
	"github.com/HerbHall/driftwatch/pkg/plugin"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("DriftWatch server starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	// Open database
	dbPath := viperCfg.GetString("database.path")
	if dbPath == "" {
		dbPath = "driftwatch.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Create shared services
	bus := event.NewBus(logger.Named("event"))
	logger.Info("event bus created", zap.String("component", "event"))

	reg := registry.New(logger.Named("registry"))
	logger.Info("plugin registry created", zap.String("component", "registry"))

	// Register all plugins (compile-time composition)
	modules := []plugin.Plugin{
		watch.New(),
	}
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register plugin", zap.Error(err))
		}
	}

	if err := reg.Validate(); err != nil {
		logger.Fatal("plugin validation failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		pluginCfg := cfg.Sub("plugins." + name)
		return plugin.Dependencies{
			Config:  pluginCfg,
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     bus,
			Plugins: reg,
		}
	}); err != nil {
		logger.Fatal("failed to initialize plugins", zap.Error(err))
	}

	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start plugins", zap.Error(err))
	}

	// Create auth service when enabled.
	var authHandler *auth.Handler
	var tokens *auth.TokenService
	if viperCfg.GetBool("auth.enabled") {
		jwtSecret := viperCfg.GetString("auth.jwt_secret")
		if jwtSecret == "" {
			// Generate an ephemeral secret -- tokens won't survive restarts.
			b := make([]byte, 32)
			if _, err := rand.Read(b); err != nil {
				logger.Fatal("failed to generate JWT secret", zap.Error(err))
			}
			jwtSecret = hex.EncodeToString(b)
			logger.Info("using auto-generated JWT secret (set auth.jwt_secret in config to persist tokens across restarts)",
				zap.String("component", "auth"),
			)
		}

		tokenTTL := viperCfg.GetDuration("auth.token_ttl")
		if tokenTTL == 0 {
			tokenTTL = time.Hour
		}
		tokens = auth.NewTokenService([]byte(jwtSecret), tokenTTL)

		keys, err := loadAPIKeys(viperCfg)
		if err != nil {
			logger.Fatal("failed to load API keys", zap.Error(err))
		}
		authService, err := auth.NewService(keys, tokens)
		if err != nil {
			logger.Fatal("failed to initialize auth service", zap.Error(err))
		}
		authHandler = auth.NewHandler(authService, logger.Named("auth"))
		logger.Info("auth service initialized",
			zap.String("component", "auth"),
			zap.Int("api_keys", len(keys)),
			zap.Duration("token_ttl", tokenTTL),
		)
	} else {
		logger.Warn("authentication disabled", zap.String("component", "auth"))
	}

	// Create WebSocket handler for real-time drift updates.
	wsHandler := ws.NewHandler(tokens, bus, logger.Named("ws"))
	logger.Info("websocket handler initialized", zap.String("component", "ws"))

	// Create and start HTTP server
	addr := viperCfg.GetString("server.host") + ":" + viperCfg.GetString("server.port")
	if addr == ":" {
		addr = "0.0.0.0:8080"
	}
	logger.Info("HTTP server configured",
		zap.String("component", "server"),
		zap.String("addr", addr),
	)
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})

	var authRegistrar server.RouteRegistrar
	if authHandler != nil {
		authRegistrar = authHandler
	}
	srv := server.New(addr, reg, logger, readyCheck, authRegistrar, wsHandler)
	if viperCfg.GetBool("server.demo_mode") {
		srv.EnableDemoMode()
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("DriftWatch server ready", zap.String("addr", addr))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	reg.StopAll(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("DriftWatch server stopped")
}

// loadAPIKeys reads the configured API keys. Each entry under
// auth.api_keys is a name -> bcrypt hash pair.
func loadAPIKeys(v interface{ GetStringMapString(string) map[string]string }) ([]auth.APIKey, error) {
	raw := v.GetStringMapString("auth.api_keys")
	if len(raw) == 0 {
		return nil, fmt.Errorf("auth.enabled is true but auth.api_keys is empty")
	}
	keys := make([]auth.APIKey, 0, len(raw))
	for name, hash := range raw {
		keys = append(keys, auth.APIKey{Name: name, Hash: hash})
	}
	return keys, nil
}
