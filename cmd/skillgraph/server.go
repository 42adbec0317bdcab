package skillgraph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillmesh/skillgraph"
	"github.com/skillmesh/skillgraph/pkg/config"
	sglogger "github.com/skillmesh/skillgraph/pkg/logger"
	"github.com/skillmesh/skillgraph/pkg/server"
	"github.com/skillmesh/skillgraph/pkg/store"
	"github.com/skillmesh/skillgraph/pkg/telemetry"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the skillgraph HTTP server",
	Long: `Start the skillgraph HTTP server to provide REST API access to the
relationship engine.

The server provides endpoints for:
- Upserting and deleting embedding vectors
- Running community detection per organization
- Exporting the graph topology
- Hybrid lexical + semantic search
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")

	// Database flags
	serverCmd.Flags().String("db-driver", "sqlite", "Database driver (sqlite, neo4j, memory)")
	serverCmd.Flags().String("db-uri", "./skillgraph.db", "Database URI/path")
	serverCmd.Flags().String("db-username", "", "Database username (neo4j only)")
	serverCmd.Flags().String("db-password", "", "Database password (neo4j only)")
	serverCmd.Flags().String("db-database", "", "Database name (neo4j only)")

	// Engine flags
	serverCmd.Flags().Int("knn", 0, "Nearest neighbors considered per artifact")
	serverCmd.Flags().Float64("min-similarity", 0, "Edge admission threshold")
	serverCmd.Flags().Int("workers", 0, "Neighbor-query worker pool size")

	// Telemetry flags
	serverCmd.Flags().String("telemetry-parquet-path", "", "Path to directory for telemetry (errors and detection runs)")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	overrideConfigWithFlags(cmd, cfg)

	// Validate configuration
	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Initializing skillgraph...")
	engine, st, cleanup, err := initializeEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer cleanup()

	// Create and setup server
	srv := server.New(cfg, engine, st)
	srv.Setup()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Database flags
	if cmd.Flags().Changed("db-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("db-driver")
	}
	if cmd.Flags().Changed("db-uri") {
		cfg.Database.URI, _ = cmd.Flags().GetString("db-uri")
	}
	if cmd.Flags().Changed("db-username") {
		cfg.Database.Username, _ = cmd.Flags().GetString("db-username")
	}
	if cmd.Flags().Changed("db-password") {
		cfg.Database.Password, _ = cmd.Flags().GetString("db-password")
	}
	if cmd.Flags().Changed("db-database") {
		cfg.Database.Database, _ = cmd.Flags().GetString("db-database")
	}

	// Engine flags
	if cmd.Flags().Changed("knn") {
		cfg.Engine.KNN, _ = cmd.Flags().GetInt("knn")
	}
	if cmd.Flags().Changed("min-similarity") {
		cfg.Engine.MinSimilarity, _ = cmd.Flags().GetFloat64("min-similarity")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Engine.Workers, _ = cmd.Flags().GetInt("workers")
	}

	// Telemetry flags
	if cmd.Flags().Changed("telemetry-parquet-path") {
		cfg.Telemetry.ParquetPath, _ = cmd.Flags().GetString("telemetry-parquet-path")
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	if cfg.Database.Driver != "memory" && cfg.Database.URI == "" {
		return fmt.Errorf("database URI is required")
	}
	return nil
}

// newStore builds the storage backend selected by the configuration.
func newStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Database.Driver {
	case "sqlite":
		st, err = store.NewSQLiteStore(cfg.Database.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite store: %w", err)
		}
	case "neo4j":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		st, err = store.NewNeo4jStore(ctx, cfg.Database.URI,
			cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create neo4j store: %w", err)
		}
	case "memory":
		st = store.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	if cfg.CircuitBreaker.Enabled {
		settings := store.DefaultBreakerSettings(cfg.Database.Driver)
		if cfg.CircuitBreaker.MaxRequests > 0 {
			settings.MaxRequests = cfg.CircuitBreaker.MaxRequests
		}
		if cfg.CircuitBreaker.Interval > 0 {
			settings.Interval = time.Duration(cfg.CircuitBreaker.Interval) * time.Second
		}
		if cfg.CircuitBreaker.Timeout > 0 {
			settings.Timeout = time.Duration(cfg.CircuitBreaker.Timeout) * time.Second
		}
		if cfg.CircuitBreaker.ReadyToTripRatio > 0 {
			settings.ReadyToTripRatio = cfg.CircuitBreaker.ReadyToTripRatio
		}
		st = store.NewBreakerStore(st, settings, logger)
	}

	return st, nil
}

func initializeEngine(cfg *config.Config) (skillgraph.SkillGraph, store.Store, func(), error) {
	handler := sglogger.NewColorHandler(os.Stderr, sglogger.ParseLevel(cfg.Log.Level))
	logger := slog.New(handler)

	// Telemetry using Parquet
	trackingPath := cfg.Telemetry.ParquetPath
	if trackingPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		trackingPath = fmt.Sprintf("%s/.skillgraph/telemetry", homeDir)
	}
	if err := os.MkdirAll(trackingPath, 0755); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	parquetHandler, err := telemetry.NewParquetHandler(handler, trackingPath)
	if err != nil {
		fmt.Printf("Warning: Failed to initialize error tracking: %v\n", err)
	} else {
		logger = slog.New(parquetHandler)
		fmt.Println("Error tracking enabled")
	}

	var recorder *telemetry.RunRecorder
	recorder, err = telemetry.NewRunRecorder(trackingPath)
	if err != nil {
		fmt.Printf("Warning: Failed to initialize run recorder: %v\n", err)
		recorder = nil
	} else {
		fmt.Printf("Detection run tracking enabled at: %s\n", trackingPath)
	}

	st, err := newStore(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	engine, err := skillgraph.New(st, skillgraph.ConfigFrom(cfg.Engine),
		skillgraph.WithLogger(logger),
		skillgraph.WithRunRecorder(recorder),
	)
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}

	cleanup := func() {
		if err := engine.Close(); err != nil {
			logger.Warn("engine close", "error", err)
		}
		if err := st.Close(); err != nil {
			logger.Warn("store close", "error", err)
		}
	}

	fmt.Printf("Skillgraph initialized successfully with driver: %s\n", cfg.Database.Driver)
	return engine, st, cleanup, nil
}
