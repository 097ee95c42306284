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
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Parser   ParserConfig   `yaml:"parser" mapstructure:"parser"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CacheConfig configures the on-disk taxonomy cache.
type CacheConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// HTTPConfig configures outbound taxonomy fetches. SEC EDGAR and most
// taxonomy hosts reject requests without a descriptive User-Agent.
type HTTPConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ParserConfig configures instance parsing behavior.
type ParserConfig struct {
	RoundingThreshold float64 `yaml:"rounding_threshold" mapstructure:"rounding_threshold"`
	SharedCacheSize   int     `yaml:"shared_cache_size" mapstructure:"shared_cache_size"`
	MaxConcurrent     int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// RegistryConfig configures the well-known taxonomy registry.
type RegistryConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// StoreConfig configures the SQLite filing store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
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
	v.SetEnvPrefix("XBRL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cache.dir", "./cache")
	v.SetDefault("http.user_agent", "xbrl-cli admin@example.com")
	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.requests_per_second", 8.0)
	v.SetDefault("parser.rounding_threshold", 1000000.0)
	v.SetDefault("parser.shared_cache_size", 64)
	v.SetDefault("parser.max_concurrent", 4)
	v.SetDefault("store.path", "./filings.db")
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

// Validate checks the configuration for the given command mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "parse", "warm":
		if c.Cache.Dir == "" {
			problems = append(problems, "cache.dir is required")
		}
		if c.HTTP.UserAgent == "" {
			problems = append(problems, "http.user_agent is required")
		}
		if c.HTTP.TimeoutSecs <= 0 {
			problems = append(problems, "http.timeout_secs must be > 0")
		}
		if c.HTTP.MaxRetries < 0 {
			problems = append(problems, "http.max_retries must be >= 0")
		}
		if c.Parser.RoundingThreshold < 0 {
			problems = append(problems, "parser.rounding_threshold must be >= 0")
		}
		if c.Parser.MaxConcurrent < 1 || c.Parser.MaxConcurrent > 32 {
			problems = append(problems, "parser.max_concurrent must be between 1 and 32")
		}
		if mode == "warm" && c.Parser.SharedCacheSize < 1 {
			problems = append(problems, "parser.shared_cache_size must be >= 1")
		}
	case "facts":
		// Facts only reads the local store; network settings do not apply.
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
