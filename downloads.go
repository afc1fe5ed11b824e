package courier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/meigma/courier/internal/destination"
)

// DownloadsInfo contains statistics about a download directory.
type DownloadsInfo struct {
	// Path is the absolute path to the download directory.
	Path string
	// TotalSize is the sum of all file sizes in bytes, partial files included.
	TotalSize int64
	// EntryCount is the number of files.
	EntryCount int
	// PartialCount is the number of partial files left by unfinished downloads.
	PartialCount int
	// Entries contains detailed information about each file.
	// Sorted by modification time, most recent first.
	Entries []DownloadEntry
}

// DownloadEntry describes a single file in the download directory.
type DownloadEntry struct {
	// Name is the file name, or the transfer ID for a partial file.
	Name string
	// Size is the file size in bytes.
	Size int64
	// ModTime is when the file was last written.
	ModTime time.Time
	// Partial indicates bytes of an unfinished download.
	Partial bool
}

// DownloadsPruneOptions configures download directory pruning.
type DownloadsPruneOptions struct {
	// MaxSize is the maximum total size of finished files in bytes.
	// The oldest files are removed until the directory is under this limit.
	// Zero means no size limit.
	MaxSize int64

	// MaxAge is the maximum age for files, partial ones included.
	// Zero means no age limit.
	MaxAge time.Duration
}

// DownloadsPruneResult contains statistics about a prune operation.
type DownloadsPruneResult struct {
	// EntriesRemoved is the number of files that were removed.
	EntriesRemoved int
	// BytesRemoved is the total bytes freed.
	BytesRemoved int64
	// EntriesRemaining is the number of files still present.
	EntriesRemaining int
	// BytesRemaining is the total bytes still present.
	BytesRemaining int64
}

// DownloadsStats returns statistics about the download directory at path.
// If the directory doesn't exist, returns an empty DownloadsInfo.
func DownloadsStats(path string) (*DownloadsInfo, error) {
	absPath, err := resolveDownloadsPath(path)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(absPath); os.IsNotExist(statErr) {
		return &DownloadsInfo{Path: absPath}, nil
	}

	entries, err := openDownloads(absPath).Entries()
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}

	info := &DownloadsInfo{
		Path:       absPath,
		EntryCount: len(entries),
		Entries:    make([]DownloadEntry, len(entries)),
	}
	for i, e := range entries {
		info.TotalSize += e.Size
		if e.Partial {
			info.PartialCount++
		}
		info.Entries[i] = DownloadEntry{
			Name:    e.Name,
			Size:    e.Size,
			ModTime: e.ModTime,
			Partial: e.Partial,
		}
	}
	return info, nil
}

// DownloadsClear removes every file from the download directory at path.
// Returns nil if the directory doesn't exist.
func DownloadsClear(path string) error {
	absPath, err := resolveDownloadsPath(path)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(absPath); os.IsNotExist(statErr) {
		return nil
	}

	if err := openDownloads(absPath).Clear(); err != nil {
		return fmt.Errorf("clear downloads: %w", err)
	}
	return nil
}

// DownloadsPrune removes files based on the provided options.
// Files exceeding MaxAge are removed first, then the oldest finished files
// until the total is under MaxSize.
// Returns nil if the directory doesn't exist.
func DownloadsPrune(ctx context.Context, path string, opts DownloadsPruneOptions) (*DownloadsPruneResult, error) {
	absPath, err := resolveDownloadsPath(path)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(absPath); os.IsNotExist(statErr) {
		return &DownloadsPruneResult{}, nil
	}

	result, err := openDownloads(absPath).Prune(ctx, destination.PruneOptions{
		MaxSize: opts.MaxSize,
		MaxAge:  opts.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("prune downloads: %w", err)
	}

	return &DownloadsPruneResult{
		EntriesRemoved:   result.EntriesRemoved,
		BytesRemoved:     result.BytesRemoved,
		EntriesRemaining: result.EntriesRemaining,
		BytesRemaining:   result.BytesRemaining,
	}, nil
}

func openDownloads(absPath string) *destination.Resolver {
	return destination.New(osfs.New(absPath), slog.New(slog.DiscardHandler))
}

// resolveDownloadsPath expands ~ and converts to absolute path.
func resolveDownloadsPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("download path is empty")
	}

	// Expand ~ to home directory
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	return absPath, nil
}
