package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/courier"
)

// Downloads command flags
var (
	downloadsDir  string
	downloadsLong bool
	pruneMaxSize  string
	pruneMaxAge   string
	clearConfirm  bool
)

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Manage the download directory",
	Long: `Manage the local download directory.

Finished downloads are placed in the download directory; unfinished ones
leave partial files under its .incoming folder until they complete or are
cancelled. Use subcommands to inspect, clear, or prune it.

The directory can be specified with --dir. If not specified, the
downloads.dir setting is used.`,
}

var downloadsInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show download directory statistics",
	Long: `Display information about the download directory.

Shows the total size, file count, and optionally detailed information
about each file.

Examples:
  courier downloads info
  courier downloads info --long
  courier downloads info --dir /path/to/downloads`,
	Args: cobra.NoArgs,
	RunE: runDownloadsInfo,
}

var downloadsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all downloaded files",
	Long: `Remove all files from the download directory, partial ones included.

Use --yes to skip confirmation.

Examples:
  courier downloads clear
  courier downloads clear --yes`,
	Args: cobra.NoArgs,
	RunE: runDownloadsClear,
}

var downloadsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old or excess downloads",
	Long: `Prune the download directory based on age and/or size limits.

Files older than --max-age are removed first, partial ones included. The
oldest finished files are then removed until the total is under --max-size.

Size can be specified with units: B, KB, MB, GB, TB.
Age can be specified with units: s, m, h, d (e.g., 24h, 7d).

Examples:
  courier downloads prune --max-size 1GB
  courier downloads prune --max-age 24h
  courier downloads prune --max-size 500MB --max-age 7d`,
	Args: cobra.NoArgs,
	RunE: runDownloadsPrune,
}

func init() {
	downloadsCmd.PersistentFlags().StringVar(&downloadsDir, "dir", "", "Download directory path")

	downloadsInfoCmd.Flags().BoolVarP(&downloadsLong, "long", "l", false, "Show detailed file information")

	downloadsClearCmd.Flags().BoolVarP(&clearConfirm, "yes", "y", false, "Skip confirmation prompt")

	downloadsPruneCmd.Flags().StringVar(&pruneMaxSize, "max-size", "", "Maximum total size (e.g., 1GB)")
	downloadsPruneCmd.Flags().StringVar(&pruneMaxAge, "max-age", "", "Maximum file age (e.g., 24h, 7d)")

	downloadsCmd.AddCommand(downloadsInfoCmd)
	downloadsCmd.AddCommand(downloadsClearCmd)
	downloadsCmd.AddCommand(downloadsPruneCmd)
	rootCmd.AddCommand(downloadsCmd)
}

// resolveDownloadsDir returns --dir, else the configured directory.
func resolveDownloadsDir() string {
	if downloadsDir != "" {
		return downloadsDir
	}
	return viper.GetString("downloads.dir")
}

func runDownloadsInfo(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	info, err := courier.DownloadsStats(resolveDownloadsDir())
	if err != nil {
		return err
	}

	if info.EntryCount == 0 {
		fmt.Fprintln(out, "Download directory is empty")
		return nil
	}

	fmt.Fprintf(out, "Directory: %s\n", info.Path)
	fmt.Fprintf(out, "Size:      %s (%d bytes)\n", humanize.Bytes(safeUint64(info.TotalSize)), info.TotalSize)
	fmt.Fprintf(out, "Entries:   %d\n", info.EntryCount)
	if info.PartialCount > 0 {
		fmt.Fprintf(out, "Partial:   %d\n", info.PartialCount)
	}

	if downloadsLong {
		fmt.Fprintln(out)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED\tPARTIAL")
		for _, e := range info.Entries {
			partial := "no"
			if e.Partial {
				partial = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				e.Name,
				humanize.Bytes(safeUint64(e.Size)),
				humanize.Time(e.ModTime),
				partial)
		}
		tw.Flush()
	}

	return nil
}

func runDownloadsClear(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	dir := resolveDownloadsDir()

	info, err := courier.DownloadsStats(dir)
	if err != nil {
		return err
	}

	if info.EntryCount == 0 {
		fmt.Fprintln(out, "Download directory is already empty")
		return nil
	}

	// Confirm unless --yes is specified
	if !clearConfirm {
		fmt.Fprintf(out, "This will remove %d files (%s) from %s.\n",
			info.EntryCount, humanize.Bytes(safeUint64(info.TotalSize)), info.Path)
		fmt.Fprint(out, "Continue? [y/N] ")

		var response string
		//nolint:errcheck // Empty input or EOF is treated as "no" - not an error
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted")
			return nil
		}
	}

	if err := courier.DownloadsClear(dir); err != nil {
		return err
	}

	fmt.Fprintf(out, "Cleared %d files (%s)\n",
		info.EntryCount, humanize.Bytes(safeUint64(info.TotalSize)))
	return nil
}

func runDownloadsPrune(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	opts := courier.DownloadsPruneOptions{}

	if pruneMaxSize != "" {
		size, err := humanize.ParseBytes(pruneMaxSize)
		if err != nil {
			return fmt.Errorf("invalid --max-size: %w", err)
		}
		opts.MaxSize = safeInt64(size)
	}

	if pruneMaxAge != "" {
		age, err := parseDuration(pruneMaxAge)
		if err != nil {
			return fmt.Errorf("invalid --max-age: %w", err)
		}
		opts.MaxAge = age
	}

	// Require at least one option
	if opts.MaxSize == 0 && opts.MaxAge == 0 {
		return errors.New("at least one of --max-size or --max-age is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := courier.DownloadsPrune(ctx, resolveDownloadsDir(), opts)
	if err != nil {
		return err
	}

	if result.EntriesRemoved == 0 {
		fmt.Fprintln(out, "No files to prune")
	} else {
		fmt.Fprintf(out, "Removed %d files (%s)\n",
			result.EntriesRemoved, humanize.Bytes(safeUint64(result.BytesRemoved)))
	}

	if result.EntriesRemaining > 0 {
		fmt.Fprintf(out, "Remaining: %d files (%s)\n",
			result.EntriesRemaining, humanize.Bytes(safeUint64(result.BytesRemaining)))
	}

	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// parseDuration parses a duration string with support for days (d).
func parseDuration(s string) (time.Duration, error) {
	if s != "" && s[len(s)-1] == 'd' {
		days, err := strconv.ParseUint(s[:len(s)-1], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid day count: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// safeUint64 converts int64 to uint64, clamping negative values to 0.
func safeUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// safeInt64 converts uint64 to int64, clamping to max int64 if overflow.
func safeInt64(n uint64) int64 {
	const maxInt64 = int64(^uint64(0) >> 1)
	if n > uint64(maxInt64) {
		return maxInt64
	}
	return int64(n)
}
