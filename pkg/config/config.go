// Package config loads shared-state's process configuration: the
// handful of knobs that govern a running node, as opposed to the
// per-type registration data (which lives in internal/store and is
// addressed by SHARED_STATE_CONFIG_DIR, not by this package).
//
// Version: v0.1.0
package config

import (
	"strings"

	"github.com/spf13/viper"

	"shared-state/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified process configuration for a shared-state node.
type Config struct {
	ListenPort    int    `mapstructure:"listen_port" json:"listen_port"`
	ConfigDir     string `mapstructure:"config_dir" json:"config_dir"`
	HooksDir      string `mapstructure:"hooks_dir" json:"hooks_dir"`
	StatsFilePath string `mapstructure:"stats_file_path" json:"stats_file_path"`
	DiscoveryCmd  string `mapstructure:"discovery_cmd" json:"discovery_cmd"`
	MaxSyncFanout int    `mapstructure:"max_sync_fanout" json:"max_sync_fanout"`
	LogLevel      string `mapstructure:"log_level" json:"log_level"`
	MetricsListen string `mapstructure:"metrics_listen" json:"metrics_listen"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// setDefaults mirrors spec.md §6's environment variable names,
// translated to viper keys via the SHARED_STATE_ prefix and the
// EnvKeyReplacer below (SHARED_STATE_CONFIG_DIR -> config_dir, etc.);
// stats_file_path and discovery_cmd are bound to their names explicitly
// in Load.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_port", 3490)
	v.SetDefault("config_dir", "/etc/shared-state")
	v.SetDefault("hooks_dir", "/etc/shared-state/hooks")
	v.SetDefault("stats_file_path", "/var/lib/shared-state/stats.json")
	v.SetDefault("discovery_cmd", "")
	v.SetDefault("max_sync_fanout", 8)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_listen", "")
}

// Load reads an optional YAML config file (configFile, empty to skip)
// and overlays SHARED_STATE_* environment variables onto the result
// (spec.md §6's collaborator paths: SHARED_STATE_CONFIG_DIR,
// SHARED_STATE_HOOKS_DIR, SHARED_STATE_NET_STAT_FILE_PATH,
// SHARED_STATE_GET_CANDIDATES_CMD). The result is stored in AppConfig
// and returned.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("shared_state")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// These two collaborator variables are named differently from their keys.
	_ = v.BindEnv("stats_file_path", "SHARED_STATE_NET_STAT_FILE_PATH")
	_ = v.BindEnv("discovery_cmd", "SHARED_STATE_GET_CANDIDATES_CMD")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, utils.Wrap(err, "load config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	AppConfig = cfg
	return &AppConfig, nil
}

// LoadFromEnv loads configuration from SHARED_STATE_* environment
// variables only, with no config file.
func LoadFromEnv() (*Config, error) {
	return Load("")
}
