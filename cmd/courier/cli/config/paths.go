// Package config provides configuration management for the courier CLI.
package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// Dir returns the courier config directory.
// Uses XDG_CONFIG_HOME/courier, defaulting to ~/.config/courier.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, "courier")
}

// File returns the path of the courier config file.
func File() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DownloadsDir returns the default download directory.
// Uses XDG_DATA_HOME/courier/downloads, defaulting to ~/.local/share/courier/downloads.
func DownloadsDir() string {
	return filepath.Join(xdg.DataHome, "courier", "downloads")
}
