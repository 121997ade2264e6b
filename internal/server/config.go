package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the server block of the configuration tree.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr formats the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var configDefaults = map[string]any{
	"server.host":     "0.0.0.0",
	"server.port":     8080,
	"server.data_dir": "./data",
	"logging.level":   "info",
	"logging.format":  "json",
	"database.path":   "./data/driftwatch.db",
	"auth.enabled":    false,
	"auth.token_ttl":  "1h",

	"plugins.watch.enabled":              true,
	"plugins.watch.window_size":          500,
	"plugins.watch.min_per_bin":          50,
	"plugins.watch.max_bins":             20,
	"plugins.watch.confidence":           0.99,
	"plugins.watch.threshold":            3,
	"plugins.watch.criterion":            "any_bin",
	"plugins.watch.policy":               "reset_on_clean",
	"plugins.watch.max_batch":            10000,
	"plugins.watch.event_retention":      "720h",
	"plugins.watch.maintenance_interval": "1h",
}

// LoadConfig builds the full configuration: defaults, then an optional
// YAML file, then DW_-prefixed environment variables (DW_SERVER_PORT
// overrides server.port). A missing config file is not an error.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	for key, val := range configDefaults {
		v.SetDefault(key, val)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("driftwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/driftwatch")
	}

	v.SetEnvPrefix("DW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}
