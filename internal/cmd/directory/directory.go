// Package directory parses directory command flags and launches the
// directory runtime.
package directory

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/mwslabs/dinesync/internal/platform/cmd"
	directoryserver "github.com/mwslabs/dinesync/internal/services/directory/app"
)

// Config holds directory command configuration.
type Config struct {
	Port         int           `env:"DINESYNC_PORT" envDefault:"8080"`
	HealthPort   int           `env:"DINESYNC_HEALTH_PORT" envDefault:"8090"`
	APIBaseURL   string        `env:"DINESYNC_API_BASE_URL"`
	ShellOrigin  string        `env:"DINESYNC_SHELL_ORIGIN"`
	DBPath       string        `env:"DINESYNC_DB_PATH" envDefault:"data/directory.db"`
	AssetDir     string        `env:"DINESYNC_ASSET_DIR" envDefault:"data/assets"`
	PollInterval time.Duration `env:"DINESYNC_SYNC_POLL_INTERVAL" envDefault:"30s"`
	AllowOrigins []string      `env:"DINESYNC_ALLOW_ORIGINS" envSeparator:","`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The interception HTTP server port")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The health gRPC server port")
	fs.StringVar(&cfg.APIBaseURL, "api-base-url", cfg.APIBaseURL, "The origin REST API base URL")
	fs.StringVar(&cfg.ShellOrigin, "shell-origin", cfg.ShellOrigin, "The origin serving the static app shell")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The directory SQLite database path")
	fs.StringVar(&cfg.AssetDir, "asset-dir", cfg.AssetDir, "The static asset cache directory")
	fs.DurationVar(&cfg.PollInterval, "sync-poll-interval", cfg.PollInterval, "Pending-write sync poll interval")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the directory runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDirectory, func(context.Context) error {
		return directoryserver.Run(ctx, directoryserver.RuntimeConfig{
			Port:         cfg.Port,
			HealthPort:   cfg.HealthPort,
			APIBaseURL:   cfg.APIBaseURL,
			ShellOrigin:  cfg.ShellOrigin,
			DBPath:       cfg.DBPath,
			AssetDir:     cfg.AssetDir,
			PollInterval: cfg.PollInterval,
			AllowOrigins: cfg.AllowOrigins,
		})
	})
}
