package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/faceoverlay/internal/config"
	"github.com/andresmejia3/faceoverlay/internal/logging"
	"github.com/andresmejia3/faceoverlay/internal/store"
	"github.com/spf13/cobra"
)

var (
	// cfg is loaded once per invocation in PersistentPreRunE
	cfg *config.Config
	// logger is the process-wide structured logger
	logger   *slog.Logger
	closeLog func() error

	// DB is opened lazily by the commands that need the gallery store
	DB *store.Store

	configPath string
	logLevel   string
	dbURL      string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "faceoverlay",
	Short:   "Live face recognition overlay for video playback",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipConfig(cmd) {
			logger = logging.NewNop()
			return nil
		}

		loaded, _, _, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		if dbURL != "" {
			loaded.Database.URL = dbURL
		}
		cfg = loaded

		logger, closeLog, err = logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: os.Stderr,
			Dir:    cfg.Logging.Dir,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
		if closeLog != nil {
			_ = closeLog()
			closeLog = nil
		}
	},
}

// skipConfig lets `config init` run even when the current file is invalid.
func skipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skip-config"] == "true" {
			return true
		}
	}
	return false
}

// openStore connects to the gallery database on first use.
func openStore(ctx context.Context) (*store.Store, error) {
	if DB != nil {
		return DB, nil
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("no database configured: set database.url or pass --db")
	}
	s, err := store.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return DB, nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path (default: ~/.config/faceoverlay/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the gallery store (overrides database.url)")
}
