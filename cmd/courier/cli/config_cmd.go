package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/meigma/courier/cmd/courier/cli/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage courier configuration",
	Long: `View and modify courier configuration.

Without arguments, displays the current effective configuration.
Use subcommands to view the config path, initialize a config file,
or set configuration values.

Every key can also be set through the environment with the COURIER_
prefix, e.g. COURIER_DOWNLOADS_DIR or COURIER_FETCH_STRICT.`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), configFile())
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long: `Create a default configuration file at the XDG config path.

The file will be created at ~/.config/courier/config.yaml (or
$XDG_CONFIG_HOME/courier/config.yaml if set).`,
	RunE: runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Examples:
  courier config set downloads.dir ~/Downloads/courier
  courier config set progress plain
  courier config set http.timeout 30s
  courier config set fetch.strict true`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

// configFile returns the file config commands read and write.
func configFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.File()
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := configFile()

	if _, statErr := os.Stat(path); statErr == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	d := config.Defaults()
	defaultConfig := map[string]any{
		"downloads": map[string]any{
			"dir": d.Downloads.Dir,
		},
		"progress": d.Progress,
		"http": map[string]any{
			"timeout": d.HTTP.Timeout.String(),
		},
		"fetch": map[string]any{
			"strict":      d.Fetch.Strict,
			"compression": d.Fetch.Compression,
		},
	}
	data, err := yaml.Marshal(defaultConfig)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", path)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	var parsed any
	switch value {
	case "true":
		parsed = true
	case "false":
		parsed = false
	default:
		parsed = value
	}
	viper.Set(key, parsed)

	path := configFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s = %v\n", key, parsed)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
