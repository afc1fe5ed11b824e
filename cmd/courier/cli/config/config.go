package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config represents the courier CLI configuration.
// Use mapstructure tags for Viper unmarshaling.
type Config struct {
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Progress  string          `mapstructure:"progress"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
}

// DownloadsConfig holds download directory settings.
type DownloadsConfig struct {
	Dir string `mapstructure:"dir"`
}

// HTTPConfig holds transport settings.
type HTTPConfig struct {
	// Timeout bounds a whole request, body included. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`
}

// FetchConfig holds settings for the fetch command.
type FetchConfig struct {
	Strict      bool `mapstructure:"strict"`
	Compression bool `mapstructure:"compression"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Downloads: DownloadsConfig{Dir: DownloadsDir()},
		Progress:  "auto",
		Fetch:     FetchConfig{Compression: true},
	}
}

// SetDefaults registers the built-in configuration with v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("downloads.dir", d.Downloads.Dir)
	v.SetDefault("progress", d.Progress)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("fetch.strict", d.Fetch.Strict)
	v.SetDefault("fetch.compression", d.Fetch.Compression)
}

// Load decodes the effective configuration from v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
