package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/karuna-health/intake/internal/api"
	"github.com/karuna-health/intake/internal/followup"
	"github.com/karuna-health/intake/internal/forms"
	"github.com/karuna-health/intake/internal/lockfile"
	"github.com/karuna-health/intake/internal/notify"
	"github.com/karuna-health/intake/internal/store"
	"github.com/karuna-health/intake/internal/telemetry"
	"github.com/karuna-health/intake/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for intake state data
	DefaultStateDir = "/var/lib/intake"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "intake.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Hold an exclusive lock on the state directory so two instances never
	// share a SQLite database
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build the store
	st, err := store.NewStore(buildStoreOptions(flags)...)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Build the form registry: built-in flows plus any YAML definitions
	registry := forms.NewRegistry()
	if *flags.formsDir != "" {
		if err := forms.LoadDirectory(registry, *flags.formsDir); err != nil {
			slog.Error("Failed to load form definitions", "error", err, "dir", *flags.formsDir)
			os.Exit(1)
		}
		slog.Info("Loaded form definitions", "dir", *flags.formsDir)
	}

	// Start the follow-up worker when staff notifications are configured
	if worker := buildFollowupWorker(flags, st); worker != nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		worker.Start(ctx)
		defer worker.Stop()
	}

	// Start the service
	slog.Info("Bootstrapping intake API with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	server := api.NewServer(registry, st, telemetry.NewStoreEmitter(st), buildAPIOptions(flags)...)
	if err := server.Run(); err != nil {
		slog.Error("Intake API failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Intake API exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL        string
	StateDir           string
	APIAddr            string
	FormsDir           string
	StaffPhone         string
	FollowupEnabled    bool
	FollowupInterval   time.Duration
	FollowupStaleAfter time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir           *string
	dbDSN              *string
	apiAddr            *string
	formsDir           *string
	staffPhone         *string
	followupEnabled    *bool
	followupInterval   *time.Duration
	followupStaleAfter *time.Duration
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		StateDir:           os.Getenv("INTAKE_STATE_DIR"),
		APIAddr:            os.Getenv("API_ADDR"),
		FormsDir:           os.Getenv("INTAKE_FORMS_DIR"),
		StaffPhone:         os.Getenv("FOLLOWUP_STAFF_PHONE"),
		FollowupEnabled:    util.ParseBoolEnv("FOLLOWUP_ENABLED", true),
		FollowupInterval:   util.ParseDurationEnv("FOLLOWUP_INTERVAL", followup.DefaultInterval),
		FollowupStaleAfter: util.ParseDurationEnv("FOLLOWUP_STALE_AFTER", followup.DefaultStaleAfter),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No INTAKE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("INTAKE_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"INTAKE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"INTAKE_FORMS_DIR", config.FormsDir,
		"FOLLOWUP_STAFF_PHONE_SET", config.StaffPhone != "",
		"FOLLOWUP_ENABLED", config.FollowupEnabled,
		"FOLLOWUP_INTERVAL", config.FollowupInterval,
		"FOLLOWUP_STALE_AFTER", config.FollowupStaleAfter)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:           flag.String("state-dir", config.StateDir, "state directory for intake data (overrides $INTAKE_STATE_DIR)"),
		dbDSN:              flag.String("db-dsn", config.DatabaseURL, "database DSN for the store (overrides $DATABASE_URL)"),
		apiAddr:            flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		formsDir:           flag.String("forms-dir", config.FormsDir, "directory of YAML form definitions (overrides $INTAKE_FORMS_DIR)"),
		staffPhone:         flag.String("staff-phone", config.StaffPhone, "phone number for abandonment follow-up alerts (overrides $FOLLOWUP_STAFF_PHONE)"),
		followupEnabled:    flag.Bool("followup-enabled", config.FollowupEnabled, "enable abandonment follow-up notifications (overrides $FOLLOWUP_ENABLED)"),
		followupInterval:   flag.Duration("followup-interval", config.FollowupInterval, "how often to sweep for abandoned sessions (overrides $FOLLOWUP_INTERVAL)"),
		followupStaleAfter: flag.Duration("followup-stale-after", config.FollowupStaleAfter, "inactivity window before a session counts as abandoned (overrides $FOLLOWUP_STALE_AFTER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"formsDir", *flags.formsDir,
		"staffPhoneSet", *flags.staffPhone != "",
		"followupEnabled", *flags.followupEnabled,
		"followupInterval", *flags.followupInterval,
		"followupStaleAfter", *flags.followupStaleAfter)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}

// buildFollowupWorker constructs the abandonment follow-up worker, or nil
// when no staff phone is configured. The Twilio credentials come from the
// environment; without them follow-up alerts are disabled.
func buildFollowupWorker(flags Flags, st store.Store) *followup.Worker {
	if !*flags.followupEnabled {
		slog.Debug("Follow-up notifications disabled by configuration")
		return nil
	}
	if *flags.staffPhone == "" {
		slog.Debug("No staff phone configured, follow-up notifications disabled")
		return nil
	}
	notifier, err := notify.NewTwilioNotifier()
	if err != nil {
		slog.Warn("Twilio notifier unavailable, follow-up notifications disabled", "error", err)
		return nil
	}
	return followup.NewWorker(st, notifier,
		followup.WithInterval(*flags.followupInterval),
		followup.WithStaleAfter(*flags.followupStaleAfter),
		followup.WithStaffPhone(*flags.staffPhone),
	)
}
