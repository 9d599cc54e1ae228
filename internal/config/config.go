package config

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/searchcore/pkg/search"
)

type Config struct {
	Port                string `mapstructure:"PORT"`
	Env                 string `mapstructure:"ENV"`
	DatabaseURL         string `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32  `mapstructure:"DB_MIN_CONNS"`
	LogLevel            string `mapstructure:"LOG_LEVEL"`
	DefaultPageSize     int    `mapstructure:"DEFAULT_PAGE_SIZE"`
	MaxPageSize         int    `mapstructure:"MAX_PAGE_SIZE"`
	DefaultIncludeCount int    `mapstructure:"DEFAULT_INCLUDE_COUNT"`
	DefaultTotal        string `mapstructure:"DEFAULT_TOTAL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEFAULT_PAGE_SIZE", 10)
	v.SetDefault("MAX_PAGE_SIZE", 1000)
	v.SetDefault("DEFAULT_INCLUDE_COUNT", 1000)
	v.SetDefault("DEFAULT_TOTAL", "none")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("DEFAULT_PAGE_SIZE")
	v.BindEnv("MAX_PAGE_SIZE")
	v.BindEnv("DEFAULT_INCLUDE_COUNT")
	v.BindEnv("DEFAULT_TOTAL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. DATABASE_URL is
// deliberately not required: without it the server and CLI fall back to the
// built-in search parameter definitions.
func (c *Config) Validate() error {
	if c.DefaultPageSize < 1 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be at least 1, got %d", c.DefaultPageSize)
	}
	if c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("MAX_PAGE_SIZE must be at least DEFAULT_PAGE_SIZE (%d), got %d", c.DefaultPageSize, c.MaxPageSize)
	}
	if c.DefaultIncludeCount < 1 {
		return fmt.Errorf("DEFAULT_INCLUDE_COUNT must be at least 1, got %d", c.DefaultIncludeCount)
	}

	total, ok := search.ParseTotalType(c.DefaultTotal)
	if !ok {
		return fmt.Errorf("DEFAULT_TOTAL must be \"accurate\" or \"none\", got %q", c.DefaultTotal)
	}
	if total == search.TotalEstimate {
		return fmt.Errorf("DEFAULT_TOTAL \"estimate\" is not supported; use \"accurate\" or \"none\"")
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level: %w", c.LogLevel, err)
	}

	return nil
}

// SearchConfig maps the page-size knobs onto the compiler configuration.
// Call Validate first; unparseable totals fall back to none here.
func (c *Config) SearchConfig() search.Config {
	total, _ := search.ParseTotalType(c.DefaultTotal)
	return search.Config{
		DefaultItemCount: c.DefaultPageSize,
		MaxItemCount:     c.MaxPageSize,
		IncludeCount:     c.DefaultIncludeCount,
		DefaultTotal:     total,
	}
}
