package destination

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"time"
)

// Entry describes one file in the download directory.
type Entry struct {
	// Name is the file name, or the task ID for a spool file.
	Name    string
	Size    int64
	ModTime time.Time
	// Partial marks a spool file left behind by an unfinished download.
	Partial bool
}

// PruneOptions configures pruning.
type PruneOptions struct {
	// MaxSize is the maximum total size of completed files in bytes.
	// The oldest files are removed until the directory is under this limit.
	// Zero means no size limit.
	MaxSize int64

	// MaxAge removes completed files and spool files older than this.
	// Zero means no age limit.
	MaxAge time.Duration
}

// PruneResult contains statistics about a prune operation.
type PruneResult struct {
	EntriesRemoved   int
	BytesRemoved     int64
	EntriesRemaining int
	BytesRemaining   int64
}

// Entries lists completed files and spool files, most recent first.
// A missing download directory yields no entries.
func (r *Resolver) Entries() ([]Entry, error) {
	var entries []Entry

	infos, err := r.readDir(".")
	if err != nil {
		return nil, err
	}
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		entries = append(entries, Entry{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}

	spools, err := r.readDir(IncomingDir)
	if err != nil {
		return nil, err
	}
	for _, fi := range spools {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), PartSuffix) {
			continue
		}
		entries = append(entries, Entry{
			Name:    strings.TrimSuffix(fi.Name(), PartSuffix),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			Partial: true,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return entries, nil
}

// Clear removes every completed and spool file.
func (r *Resolver) Clear() error {
	entries, err := r.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := r.remove(e); err != nil {
			return err
		}
	}
	return nil
}

// Prune removes entries by age first, then the oldest completed files until
// the size limit is met.
func (r *Resolver) Prune(ctx context.Context, opts PruneOptions) (PruneResult, error) {
	var result PruneResult

	entries, err := r.Entries()
	if err != nil {
		return result, err
	}

	toRemove := selectEntriesToRemove(entries, opts, time.Now())

	for i, e := range entries {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if toRemove[i] {
			if err := r.remove(e); err != nil {
				r.logger.Warn("failed to remove download", "name", e.Name, "error", err)
				continue
			}
			result.EntriesRemoved++
			result.BytesRemoved += e.Size
		} else {
			result.EntriesRemaining++
			result.BytesRemaining += e.Size
		}
	}

	r.logger.Debug("downloads pruned",
		"removed", result.EntriesRemoved,
		"bytes_removed", result.BytesRemoved,
		"remaining", result.EntriesRemaining,
		"bytes_remaining", result.BytesRemaining)

	return result, nil
}

// selectEntriesToRemove marks indexes of entries (sorted newest first) to evict.
func selectEntriesToRemove(entries []Entry, opts PruneOptions, now time.Time) map[int]bool {
	toRemove := make(map[int]bool)

	if opts.MaxAge > 0 {
		cutoff := now.Add(-opts.MaxAge)
		for i, e := range entries {
			if e.ModTime.Before(cutoff) {
				toRemove[i] = true
			}
		}
	}

	if opts.MaxSize > 0 {
		var total int64
		for i, e := range entries {
			if !toRemove[i] && !e.Partial {
				total += e.Size
			}
		}
		// Oldest entries sit at the end.
		for i := len(entries) - 1; i >= 0 && total > opts.MaxSize; i-- {
			if toRemove[i] || entries[i].Partial {
				continue
			}
			toRemove[i] = true
			total -= entries[i].Size
		}
	}

	return toRemove
}

func (r *Resolver) remove(e Entry) error {
	name := e.Name
	if e.Partial {
		name = r.SpoolPath(e.Name)
	}
	if err := r.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (r *Resolver) readDir(dir string) ([]os.FileInfo, error) {
	infos, err := r.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return infos, nil
}
