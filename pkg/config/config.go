// Package config provides a reusable loader for canisdk's runtime
// configuration files and environment variables.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"canisdk/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a canister host-simulation process
// (the debug server and CLI, not the canister itself, which receives its
// configuration from the host at init time).
type Config struct {
	Allocator struct {
		DataFile    string `mapstructure:"data_file" json:"data_file"`
		MaxOwners   int    `mapstructure:"max_owners" json:"max_owners"`
		GrowthPages int    `mapstructure:"growth_pages" json:"growth_pages"`
	} `mapstructure:"allocator" json:"allocator"`

	Scheduler struct {
		TickIntervalMS      int `mapstructure:"tick_interval_ms" json:"tick_interval_ms"`
		RunningTaskTimeoutS int `mapstructure:"running_task_timeout_s" json:"running_task_timeout_s"`
	} `mapstructure:"scheduler" json:"scheduler"`

	Payments struct {
		DedupWindowS   int64 `mapstructure:"dedup_window_s" json:"dedup_window_s"`
		SafetyMarginS  int64 `mapstructure:"safety_margin_s" json:"safety_margin_s"`
		DefaultRetries int   `mapstructure:"default_retries" json:"default_retries"`
	} `mapstructure:"payments" json:"payments"`

	Logging struct {
		Level           string `mapstructure:"level" json:"level"`
		Filter          string `mapstructure:"filter" json:"filter"`
		InMemoryRecords int    `mapstructure:"in_memory_records" json:"in_memory_records"`
	} `mapstructure:"logging" json:"logging"`

	DebugServer struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"debug_server" json:"debug_server"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of a .env file is not an error

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CANISDK_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("CANISDK_ENV", ""))
}
