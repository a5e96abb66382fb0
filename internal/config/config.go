// Package config loads application configuration from config.yaml and
// environment variables (prefix FACTURAS_, e.g. FACTURAS_DB_DSN).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Vault  VaultConfig  `mapstructure:"vault"`
	DB     DBConfig     `mapstructure:"db"`
	Ingest IngestConfig `mapstructure:"ingest"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Debug        bool          `mapstructure:"debug"`
}

// VaultConfig selects the invoice store backend.
type VaultConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `mapstructure:"backend"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// IngestConfig holds batch ingestion settings.
type IngestConfig struct {
	Workers int `mapstructure:"workers"`
}

// LedgerConfig holds reconciliation settings. Rates and tolerance are
// decimal strings so configuration round-trips without float drift.
type LedgerConfig struct {
	// Rates are the statutory tax rates accepted by the ratio check.
	Rates []string `mapstructure:"rates"`
	// Tolerance is the absolute tolerance around each rate.
	Tolerance string `mapstructure:"tolerance"`
	// AdvanceOnDuplicate controls whether a duplicate folio advances the
	// continuity cursor. Defaults to true.
	AdvanceOnDuplicate bool `mapstructure:"advance_on_duplicate"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and the
// environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FACTURAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.debug", false)

	v.SetDefault("vault.backend", "memory")
	v.SetDefault("db.dsn", "")

	v.SetDefault("ingest.workers", 4)

	v.SetDefault("ledger.rates", []string{"0", "0.05", "0.19"})
	v.SetDefault("ledger.tolerance", "0.001")
	v.SetDefault("ledger.advance_on_duplicate", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
