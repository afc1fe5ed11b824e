// Package cli implements the courier command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/courier"
	"github.com/meigma/courier/cmd/courier/cli/config"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Download, upload and fetch over HTTP",
	Long: `Courier moves data over HTTP.

Downloads are spooled to disk and can pick up where they stopped when the
server supports range requests. Uploads POST a file and print the answer.
Fetch decodes JSON or YAML payloads and can filter them with jq expressions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/courier/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.Version = version

	rootCmd.AddGroup(&cobra.Group{ID: "transfer", Title: "Transfer Commands:"})
}

// initConfig reads the config file and COURIER_* environment variables.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(config.Dir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("COURIER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: reading config: %v\n", err)
		}
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// newLogger returns a debug text logger when --verbose is set.
func newLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newClient creates a courier client from the effective configuration.
func newClient() (*courier.Client, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = cfg.HTTP.Timeout

	opts := []courier.ClientOption{
		courier.WithHTTPClient(hc),
		courier.WithUserAgent("courier/" + version),
		courier.WithStrictDecoding(cfg.Fetch.Strict),
		courier.WithCompression(cfg.Fetch.Compression),
		courier.WithLogger(newLogger()),
	}
	if cfg.Downloads.Dir != "" {
		dir, err := expandHome(cfg.Downloads.Dir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, courier.WithDownloadDir(dir))
	}
	return courier.NewClient(opts...)
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// formatError converts courier errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *courier.StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Error: server responded with status %d", statusErr.StatusCode)
	case errors.Is(err, courier.ErrBadURL):
		return fmt.Sprintf("Error: invalid url: %v", err)
	case errors.Is(err, courier.ErrDecodeFailed):
		return fmt.Sprintf("Error: unexpected payload: %v", err)
	case errors.Is(err, courier.ErrTransportFailure):
		return fmt.Sprintf("Error: request failed: %v", err)
	case errors.Is(err, courier.ErrDigestMismatch):
		return "Error: downloaded content does not match the expected digest"
	case errors.Is(err, courier.ErrFileSystemFailure):
		return fmt.Sprintf("Error: could not store download: %v", err)
	case errors.Is(err, courier.ErrCancelled), errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
