package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration accepts both plain integer seconds and Go duration strings in the
// config file.
type Duration time.Duration

// UnmarshalText lets Viper accept values like "30s", "5m" or bare seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue returns the plain time.Duration.
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt accepts decimal or 0x-prefixed hexadecimal strings.
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig describes host-wide runtime behavior.
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	MetricsPort     int      `mapstructure:"MetricsPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	Upstream        string   `mapstructure:"Upstream"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// PluginConfig selects one registered plugin and passes its settings
// through. Dispatch order follows config order.
type PluginConfig struct {
	Name     string         `mapstructure:"Name"`
	Settings map[string]any `mapstructure:"Settings"`
}

// Config is the root of the TOML configuration.
type Config struct {
	Global  GlobalConfig   `mapstructure:"Global"`
	Plugins []PluginConfig `mapstructure:"Plugins"`
}

// PluginNames lists the configured plugin keys in dispatch order.
func (c *Config) PluginNames() []string {
	names := make([]string, len(c.Plugins))
	for i, p := range c.Plugins {
		names[i] = strings.ToLower(strings.TrimSpace(p.Name))
	}
	return names
}
