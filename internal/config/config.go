package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrMissingSetting is returned by Validate when a required setting is absent.
var ErrMissingSetting = eris.New("config: missing required setting")

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Google   GoogleConfig   `yaml:"google" mapstructure:"google"`
	Backfill BackfillConfig `yaml:"backfill" mapstructure:"backfill"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the listings database.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GoogleConfig holds Google Geocoding API settings.
type GoogleConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// BackfillConfig controls pacing and progress of the coordinate backfill.
type BackfillConfig struct {
	PaceMs           int `yaml:"pace_ms" mapstructure:"pace_ms"`
	QuotaBackoffSecs int `yaml:"quota_backoff_secs" mapstructure:"quota_backoff_secs"`
	ProgressEvery    int `yaml:"progress_every" mapstructure:"progress_every"`
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
	v.SetEnvPrefix("LISTGEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The two required settings keep the names operators already export.
	if err := v.BindEnv("store.database_url", "PG_DSN", "LISTGEO_STORE_DATABASE_URL"); err != nil {
		return nil, eris.Wrap(err, "config: bind PG_DSN")
	}
	if err := v.BindEnv("google.api_key", "GOOGLE_MAPS_API_KEY", "LISTGEO_GOOGLE_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind GOOGLE_MAPS_API_KEY")
	}

	// Defaults
	v.SetDefault("google.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("google.timeout_secs", 15)
	v.SetDefault("google.rate_limit", 50)
	v.SetDefault("backfill.pace_ms", 150)
	v.SetDefault("backfill.quota_backoff_secs", 10)
	v.SetDefault("backfill.progress_every", 25)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks that the settings needed by the given command are present.
// Modes: "backfill" needs the database URL and the Google API key, "status"
// needs only the database URL.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case "backfill":
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			missing = append(missing, "PG_DSN (store.database_url)")
		}
		if strings.TrimSpace(c.Google.APIKey) == "" {
			missing = append(missing, "GOOGLE_MAPS_API_KEY (google.api_key)")
		}
	case "status":
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			missing = append(missing, "PG_DSN (store.database_url)")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Wrapf(ErrMissingSetting, "set %s", strings.Join(missing, " and "))
	}
	if mode == "backfill" {
		return c.validateTimings()
	}
	return nil
}

func (c *Config) validateTimings() error {
	if c.Google.TimeoutSecs <= 0 {
		return eris.New("config: google.timeout_secs must be > 0")
	}
	if c.Backfill.PaceMs < 0 {
		return eris.New("config: backfill.pace_ms must be >= 0")
	}
	if c.Backfill.QuotaBackoffSecs <= 0 {
		return eris.New("config: backfill.quota_backoff_secs must be > 0")
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
