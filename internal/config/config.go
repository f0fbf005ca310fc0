package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"codeberg.org/mutker/pgmon/internal/errors"
)

const (
	DefaultLogLevel = "info"

	defaultHost      = "localhost"
	defaultPort      = 5432
	defaultDatabase  = "postgres"
	defaultUser      = "postgres"
	defaultSSLMode   = "disable"
	defaultOutput    = OutputTable
	defaultTrendName = "24h"
	defaultLatencyMS = 100
	defaultBloatPct  = 30.0
	defaultRetention = 90
	defaultHistoryDB = "/var/lib/pgmon/history.db"

	envPrefix  = "PGMON"
	configEnv  = "PGMON_CONFIG"
	configName = "pgmon"
	configType = "toml"
)

// Output formats accepted by --output.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// trendWindows maps the --trend flag values to lookback durations.
var trendWindows = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

type Config struct {
	// Connection settings
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// Check selection
	All          bool
	Connections  bool
	Cache        bool
	Checkpoints  bool
	Transactions bool
	Locks        bool
	SlowQueries  bool `mapstructure:"slow_queries"`
	Bloat        bool
	Vacuum       bool
	Indexes      bool
	Sizes        bool
	WALGrowth    bool `mapstructure:"wal_growth"`
	Replication  bool

	// Thresholds
	LatencyThreshold int     `mapstructure:"latency_threshold"`
	BloatThreshold   float64 `mapstructure:"bloat_threshold"`

	// History store
	NoHistory     bool   `mapstructure:"no_history"`
	HistoryDB     string `mapstructure:"history_db"`
	RetentionDays int    `mapstructure:"retention_days"`
	PurgeHistory  bool   `mapstructure:"purge_history"`

	// Reporting
	ShowTrends  bool   `mapstructure:"show_trends"`
	ShowAlerts  bool   `mapstructure:"show_alerts"`
	TrendWindow string `mapstructure:"trend"`
	Output      string

	// Runtime behavior
	Watch    int
	LogLevel string `mapstructure:"log_level"`
	Debug    bool
	Verbose  bool
}

// Load reads configuration from flags, environment variables, and an
// optional TOML file. Explicitly set flags win over environment values,
// which win over file values, which win over defaults.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		envPrefix: envPrefix,
		args:      os.Args[1:],
	}
	for _, opt := range opts {
		opt(&o)
	}

	// A .env alongside the binary mirrors the connection settings many
	// deployments already keep for client tools. Missing files are fine.
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("pgmon", pflag.ContinueOnError)
	fs.String("host", defaultHost, "PostgreSQL host")
	fs.Int("port", defaultPort, "PostgreSQL port")
	fs.String("database", defaultDatabase, "Database name")
	fs.String("user", defaultUser, "Database user")
	fs.String("password", "", "Database password")
	fs.String("sslmode", defaultSSLMode, "Connection sslmode")

	fs.Bool("all", false, "Run every diagnostic check")
	fs.Bool("connections", false, "Check connection pool usage")
	fs.Bool("cache", false, "Check buffer cache hit ratio")
	fs.Bool("checkpoints", false, "Check checkpoint activity")
	fs.Bool("transactions", false, "Check transaction throughput")
	fs.Bool("locks", false, "Check lock contention")
	fs.Bool("slow-queries", false, "Check slow queries")
	fs.Bool("bloat", false, "Check table bloat")
	fs.Bool("vacuum", false, "Check vacuum health")
	fs.Bool("indexes", false, "Check index usage")
	fs.Bool("sizes", false, "Check database and table sizes")
	fs.Bool("wal-growth", false, "Check WAL growth")
	fs.Bool("replication", false, "Check replication status")

	fs.Int("latency-threshold", defaultLatencyMS, "Slow statement threshold in milliseconds")
	fs.Float64("bloat-threshold", defaultBloatPct, "Dead tuple percentage reported as bloat")

	fs.Bool("no-history", false, "Disable the local metrics history store")
	fs.String("history-db", defaultHistoryDB, "Path to the metrics history database")
	fs.Int("retention-days", defaultRetention, "Days of history to keep when purging")
	fs.Bool("purge-history", false, "Purge history older than the retention window")

	fs.Bool("show-trends", false, "Show metric trends against the history baseline")
	fs.Bool("show-alerts", false, "Show the recent alert summary")
	fs.String("trend", defaultTrendName, "Trend lookback window (24h, 7d, 30d)")
	fs.String("output", defaultOutput, "Output format (table, json)")

	fs.Int("watch", 0, "Repeat checks every N seconds (0 runs once)")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debug logging")
	fs.Bool("verbose", false, "Enable verbose logging")

	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	fs.VisitAll(func(f *pflag.Flag) {
		v.SetDefault(configKey(f.Name), f.DefValue)
	})

	if path := resolveConfigFile(o.configFile); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.WithMessage(errors.ErrReadConfig,
				"Failed to read config file: "+err.Error())
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath("/etc")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pgmon"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errFactory.WithMessage(errors.ErrReadConfig,
					"Failed to read config file: "+err.Error())
			}
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Explicitly set flags override file and environment values
	fs.Visit(func(f *pflag.Flag) {
		v.Set(configKey(f.Name), f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks value ranges and enum fields.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, struct {
			Level string
		}{
			Level: c.LogLevel,
		})
	}

	if c.Output != OutputTable && c.Output != OutputJSON {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value string
		}{
			Field: "output",
			Value: c.Output,
		})
	}

	if _, ok := trendWindows[c.TrendWindow]; !ok {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value string
		}{
			Field: "trend",
			Value: c.TrendWindow,
		})
	}

	if c.Port <= 0 || c.Port > 65535 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{
			Field: "port",
			Value: c.Port,
		})
	}

	if c.Watch < 0 {
		return errFactory.New(errors.ErrInvalidInterval)
	}

	if c.RetentionDays < 0 || c.LatencyThreshold < 0 || c.BloatThreshold < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
		}{
			Field: "thresholds",
		})
	}

	return nil
}

// TrendLookback returns the duration selected by the trend window flag.
func (c *Config) TrendLookback() time.Duration {
	return trendWindows[c.TrendWindow]
}

// AnyCheckSelected reports whether at least one diagnostic check was
// requested, directly or via --all.
func (c *Config) AnyCheckSelected() bool {
	return c.All || c.Connections || c.Cache || c.Checkpoints || c.Transactions ||
		c.Locks || c.SlowQueries || c.Bloat || c.Vacuum || c.Indexes ||
		c.Sizes || c.WALGrowth || c.Replication
}

func resolveConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}

	return os.Getenv(configEnv)
}

func configKey(flagName string) string {
	return strings.ReplaceAll(flagName, "-", "_")
}
