package config

import (
	"github.com/spf13/viper"

	"stack-keeper/internal/env"
)

/**
 * Server configuration parameters
 * @property {string} address - Listening address; loopback-only by design
 * @property {string} mode - Gin mode (debug/release/test)
 */
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path, or "console"
 */
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

/**
 * Per-service log ring buffer configuration
 * @property {int} capacity - Max retained entries per service
 */
type BufferConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// IntervalConfig holds the periodic background task intervals, in seconds.
type IntervalConfig struct {
	Liveness   int `mapstructure:"liveness"`
	GitRefresh int `mapstructure:"git_refresh"`
	Watch      int `mapstructure:"watch"`
}

// TimeoutConfig holds the bounded-wait knobs, in seconds.
type TimeoutConfig struct {
	StopGrace  int `mapstructure:"stop_grace"`
	StartProbe int `mapstructure:"start_probe"`
	Git        int `mapstructure:"git"`
}

/**
 * Secret resolver configuration (external collaborator)
 * @property {bool} enabled - Resolver disabled means empty injected env
 * @property {string} host - Resolver base URL
 * @property {string} token - Access token sent as bearer auth
 * @property {string} environment - Environment key (e.g. "dev")
 * @property {string} path - Secret path within the environment
 */
type SecretsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Token       string `mapstructure:"token"`
	Environment string `mapstructure:"environment"`
	Path        string `mapstructure:"path"`
}

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Buffer   BufferConfig   `mapstructure:"buffer"`
	Interval IntervalConfig `mapstructure:"interval"`
	Timeout  TimeoutConfig  `mapstructure:"timeout"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

/**
 * Load application configuration from YAML file
 */
func LoadConfig() (*AppConfig, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(env.KeeperDir)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var Config AppConfig

func collectConfig(cfg *AppConfig) *AppConfig {
	if cfg.Server.Address == "" {
		cfg.Server.Address = "127.0.0.1:7330"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Buffer.Capacity <= 0 {
		cfg.Buffer.Capacity = 500
	}
	if cfg.Interval.Liveness <= 0 {
		cfg.Interval.Liveness = 5
	}
	if cfg.Interval.GitRefresh <= 0 {
		cfg.Interval.GitRefresh = 60
	}
	if cfg.Interval.Watch <= 0 {
		cfg.Interval.Watch = 2
	}
	if cfg.Timeout.StopGrace <= 0 {
		cfg.Timeout.StopGrace = 8
	}
	if cfg.Timeout.StartProbe <= 0 {
		cfg.Timeout.StartProbe = 30
	}
	if cfg.Timeout.Git <= 0 {
		cfg.Timeout.Git = 20
	}
	return cfg
}

func init() {
	cfg, err := LoadConfig()
	if err == nil {
		Config = *cfg
	}
	collectConfig(&Config)
}
