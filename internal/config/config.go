package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	NEON     NEONConfig     `yaml:"neon" mapstructure:"neon"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// NEONConfig holds portal API settings.
type NEONConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	ProductCode string `yaml:"product_code" mapstructure:"product_code"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// CacheConfig configures the local raw-table cache.
type CacheConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SyncConfig configures portal download runs.
type SyncConfig struct {
	Sites       []string `yaml:"sites" mapstructure:"sites"`
	SiteFile    string   `yaml:"site_file" mapstructure:"site_file"`
	StartMonth  string   `yaml:"start_month" mapstructure:"start_month"`
	EndMonth    string   `yaml:"end_month" mapstructure:"end_month"`
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
}

// PipelineConfig configures processing behavior.
type PipelineConfig struct {
	Strict bool `yaml:"strict" mapstructure:"strict"`
}

// OutputConfig configures where processed counts land.
type OutputConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig holds the optional database sink settings.
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRAPLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("neon.base_url", "https://data.neonscience.org/api/v0")
	v.SetDefault("neon.product_code", "DP1.10022.001")
	v.SetDefault("neon.user_agent", "trapline (github.com/quadrat-io/trapline)")
	v.SetDefault("cache.path", "trapline.db")
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("pipeline.strict", false)
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.path", "counts.csv")
	v.SetDefault("postgres.table", "carabid_counts")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required by the given run mode. Problems are
// collected and reported together so a bad config surfaces everything at
// once.
func (c *Config) Validate(mode string) error {
	var problems []string

	need := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, key+" is required")
		}
	}

	switch mode {
	case "fetch":
		need(c.NEON.BaseURL, "neon.base_url")
		need(c.NEON.ProductCode, "neon.product_code")
		need(c.Cache.Path, "cache.path")
		if c.Sync.Concurrency < 1 || c.Sync.Concurrency > 16 {
			problems = append(problems, "sync.concurrency must be between 1 and 16")
		}
		if err := validMonth(c.Sync.StartMonth); err != nil {
			problems = append(problems, "sync.start_month: "+err.Error())
		}
		if err := validMonth(c.Sync.EndMonth); err != nil {
			problems = append(problems, "sync.end_month: "+err.Error())
		}
	case "process":
		switch c.Output.Format {
		case "csv", "xlsx":
			need(c.Output.Path, "output.path")
		case "postgres":
			need(c.Postgres.DatabaseURL, "postgres.database_url")
			need(c.Postgres.Table, "postgres.table")
		default:
			problems = append(problems, "output.format must be csv, xlsx, or postgres")
		}
	case "status":
		need(c.Cache.Path, "cache.path")
	case "serve":
		need(c.Cache.Path, "cache.path")
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// validMonth accepts an empty month (meaning unbounded) or a YYYY-MM value.
func validMonth(s string) error {
	if s == "" {
		return nil
	}
	if len(s) != 7 || s[4] != '-' {
		return eris.Errorf("invalid month %q, want YYYY-MM", s)
	}
	for i, r := range s {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return eris.Errorf("invalid month %q, want YYYY-MM", s)
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
