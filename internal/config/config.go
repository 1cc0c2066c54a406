package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// EngineConfig holds click engine settings.
type EngineConfig struct {
	// MaxConcurrent bounds simultaneous capture/match work.
	MaxConcurrent int
	// ClickGap is the global minimum pause between injected clicks.
	ClickGap time.Duration
	// Retry is the wait before re-resolving a missing window.
	Retry time.Duration
	// Autostart launches enabled tasks as soon as the daemon is up.
	Autostart bool
}

// MaintConfig holds housekeeping settings.
type MaintConfig struct {
	// Cron is a 5-field schedule for the maintenance run.
	Cron string
	// StatsRetentionDays is how long tick stats are kept.
	StatsRetentionDays int
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server ServerConfig
	Bark   BarkConfig
	Engine EngineConfig
	Maint  MaintConfig

	// Mode selects the exposed surfaces: "http", "mcp" or "both".
	Mode string
	// DataDir holds tasks.json, images/, scripts/, profiles/, the stats
	// database and backups/.
	DataDir       string
	LogLevel      string
	ShutdownGrace time.Duration
}

const (
	defaultAddr           = "127.0.0.1:7171"
	defaultLogLevel       = "info"
	defaultMode           = "http"
	defaultClickGap       = 250 * time.Millisecond
	defaultRetry          = 2 * time.Second
	defaultMaintCron      = "30 3 * * *"
	defaultStatsRetention = 30
	defaultShutdownGrace  = 5 * time.Second
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > environment variables > .env file > defaults.
func Parse() (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "ghostclick", ".env"))
	}
	_ = godotenv.Load(envFiles...) // file is optional

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("GHOSTCLICK_ADDR", defaultAddr),
			AuthToken: getEnvString("GHOSTCLICK_AUTH_TOKEN", ""),
		},
		Bark: BarkConfig{
			URL:     getEnvString("GHOSTCLICK_BARK_URL", ""),
			Enabled: getEnvBool("GHOSTCLICK_BARK_ENABLED", false),
		},
		Engine: EngineConfig{
			MaxConcurrent: getEnvInt("GHOSTCLICK_MAX_CONCURRENT", 0),
			ClickGap:      getEnvDuration("GHOSTCLICK_CLICK_GAP", defaultClickGap),
			Retry:         getEnvDuration("GHOSTCLICK_RETRY", defaultRetry),
			Autostart:     getEnvBool("GHOSTCLICK_AUTOSTART", true),
		},
		Maint: MaintConfig{
			Cron:               getEnvString("GHOSTCLICK_MAINT_CRON", defaultMaintCron),
			StatsRetentionDays: getEnvInt("GHOSTCLICK_STATS_RETENTION_DAYS", defaultStatsRetention),
		},
		Mode:          getEnvString("GHOSTCLICK_MODE", defaultMode),
		DataDir:       getEnvString("GHOSTCLICK_DATA_DIR", ""),
		LogLevel:      getEnvString("GHOSTCLICK_LOG_LEVEL", defaultLogLevel),
		ShutdownGrace: getEnvDuration("GHOSTCLICK_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	var addr, logLevel, mode, dataDir string
	var autostart bool
	var clickGap, shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&dataDir, "data-dir", "", "Directory for tasks, templates, scripts and stats")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&mode, "mode", "", "Surfaces to expose: http, mcp or both")
	flag.BoolVar(&autostart, "autostart", true, "Start enabled tasks on boot")
	flag.DurationVar(&clickGap, "click-gap", 0, "Global minimum pause between injected clicks")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	// Bool and duration flags count only when explicitly set.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "autostart":
			cfg.Engine.Autostart = autostart
		case "click-gap":
			cfg.Engine.ClickGap = clickGap
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q (want http, mcp or both)", cfg.Mode)
	}

	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default data dir: %w", err)
		}
		cfg.DataDir = dir
	}
	if cfg.Maint.StatsRetentionDays < 1 {
		cfg.Maint.StatsRetentionDays = defaultStatsRetention
	}

	return cfg, nil
}

// Paths under the data directory.

func (c *Config) TasksPath() string   { return filepath.Join(c.DataDir, "tasks.json") }
func (c *Config) ImagesDir() string   { return filepath.Join(c.DataDir, "images") }
func (c *Config) ScriptsDir() string  { return filepath.Join(c.DataDir, "scripts") }
func (c *Config) ProfilesDir() string { return filepath.Join(c.DataDir, "profiles") }
func (c *Config) StatsPath() string   { return filepath.Join(c.DataDir, "stats.sqlite") }
func (c *Config) BackupsDir() string  { return filepath.Join(c.DataDir, "backups") }

func defaultDataDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "ghostclick")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
