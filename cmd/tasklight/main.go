package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tasklight/tasklight/internal/config"
	"github.com/tasklight/tasklight/internal/database"
	"github.com/tasklight/tasklight/internal/importer"
	"github.com/tasklight/tasklight/internal/logging"
	"github.com/tasklight/tasklight/internal/maintenance"
	"github.com/tasklight/tasklight/internal/notification"
	"github.com/tasklight/tasklight/internal/reminder"
	"github.com/tasklight/tasklight/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port        int
	bind        string
	allowSubnet string
	dbPath      string
	logFile     string
	verbosity   int

	// Timeout flags (advanced)
	httpTimeout   time.Duration
	websocketPing time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tasklight",
		Short: "Tasklight - Todo list server",
		Long:  `Tasklight is a todo list server with labels, due date reminders and a live event feed.`,
		RunE:  run,
	}

	// Flags
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	rootCmd.Flags().StringVarP(&dbPath, "db", "d", "./tasklight.db", "SQLite database path (or set DB_PATH env var)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Log file path (defaults to a file next to the database)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	// Advanced timeout flags
	rootCmd.Flags().DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "Timeout for HTTP client requests to external services")
	rootCmd.Flags().DurationVar(&websocketPing, "websocket-ping", 30*time.Second, "Interval between WebSocket keepalive pings")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tasklight %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	// Migrate command - prepare the database without starting the server
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().StringVarP(&dbPath, "db", "d", "./tasklight.db", "SQLite database path (or set DB_PATH env var)")
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if dbPath == "./tasklight.db" {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbPath = envDB
		}
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}).With().Timestamp().Logger()

	db, err := database.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := db.InitializeDefaults(); err != nil {
		return fmt.Errorf("failed to initialize default settings: %w", err)
	}

	log.Info().Str("database", dbPath).Msg("Database ready")
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	// Check for PORT env var if flag not set
	if port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			if _, err := fmt.Sscanf(envPort, "%d", &port); err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", envPort, err)
			}
		}
	}

	// Check for DB_PATH env var if using default
	if dbPath == "./tasklight.db" {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbPath = envDB
		}
	}

	// Validate port
	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}

	// Validate bind address if provided
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	// Validate and parse allow-subnet if provided
	var allowedNet *net.IPNet
	if allowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(allowSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
		}
		allowedNet = parsedNet
	}

	// Console-only logging until the database is open
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}).With().Timestamp().Logger()

	// Configure global timeouts
	config.SetGlobalTimeouts(&config.TimeoutConfig{
		HTTPClient:    httpTimeout,
		WebSocketPing: websocketPing,
	})

	// Warn if binding to all interfaces without an allow list
	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("database", dbPath).
		Msg("Starting Tasklight")

	// Initialize database
	db, err := database.New(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Seed default settings
	if err := db.InitializeDefaults(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize default settings")
	}

	// Full logging with rotation, level from settings unless overridden by -v
	loader := config.NewLoader(db)
	level := loader.String("log.level", "info")
	switch verbosity {
	case 0:
	case 1:
		level = "debug"
	default: // 2+
		level = "trace"
	}
	if logFile == "" {
		logFile = logging.FilePathForDB(dbPath)
	}
	logging.Apply(level, loader, logFile)

	// Create web server with bind address and allowed subnet
	server := web.NewServer(db, port, bind, allowedNet)
	sseBroker := server.SSEBroker()

	// Generate an API key on first run so auth can be enabled later
	if err := server.APIKeyService().EnsureKey(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure API key")
	}

	// Initialize notification manager from settings
	notificationMgr := notification.NewManager()
	notificationMgr.ConfigureFromSettings(loader)
	defer notificationMgr.Stop()
	if !notificationMgr.IsRunning() {
		log.Debug().Msg("Notification manager not started (no providers configured)")
	}

	// Start scheduled maintenance
	maintenanceMgr := maintenance.NewManager(db)
	maintenanceMgr.SetSSEBroker(sseBroker)
	maintenanceMgr.SetNotifier(notificationMgr)
	if err := maintenanceMgr.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start maintenance manager")
	}
	defer maintenanceMgr.Stop()

	// Start due date reminders
	reminderSvc := reminder.New(db, sseBroker, notificationMgr)
	if started := reminderSvc.Start(); !started {
		log.Debug().Msg("Reminder service not started")
	}
	defer reminderSvc.Stop()

	// Start the drop directory importer
	imp, err := importer.New(db, sseBroker, notificationMgr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize importer")
	} else {
		defer imp.Stop()
		if started, err := imp.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start importer")
		} else if !started {
			log.Debug().Msg("Importer not started (disabled or no directory configured)")
		}
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Tasklight stopped")
	return nil
}
