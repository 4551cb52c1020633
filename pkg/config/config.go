package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags "-X .../pkg/config.Version=...".
var Version = "dev"

// Config holds application-wide configuration
type Config struct {
	NatsEngine NatsEngineConfig `mapstructure:"natsEngine"`
}

// NatsEngineConfig configures the natsengine subcommand: one ClickHouse
// connection shared by every table's dependent-view sink, and the set of
// NATS-backed tables to serve.
type NatsEngineConfig struct {
	Enabled    bool                `mapstructure:"enabled"`
	ClickHouse json.RawMessage     `mapstructure:"clickhouse"`
	Tables     []NatsEngineTable   `mapstructure:"tables"`
}

// NatsEngineTable is one ENGINE = NATS(...) table: its identity, the
// nats_* settings LoadConfig decodes, and the views (by table ID) that
// depend on it for streaming.
type NatsEngineTable struct {
	ID             string         `mapstructure:"id"`
	Schema         string         `mapstructure:"schema"`
	Name           string         `mapstructure:"name"`
	Settings       map[string]any `mapstructure:"settings"`
	DependentViews []string       `mapstructure:"dependentViews"`
}

// Load reads config from file or environment
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgo")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("PGO")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		fmt.Println("Using config file:", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}
