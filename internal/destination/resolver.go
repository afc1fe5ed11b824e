// Package destination decides where downloaded bytes live: in a per-task
// spool file while the transfer runs, and at a named path in the download
// directory once it has finished.
package destination

import (
	_ "crypto/sha256" // register digest algorithms
	_ "crypto/sha512"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/courier/core"
	"github.com/meigma/courier/internal/safepath"
)

const (
	// IncomingDir holds spool files relative to the download directory root.
	IncomingDir = ".incoming"
	// PartSuffix marks a spool file.
	PartSuffix = ".part"
)

// Resolver manages spool files and final placement on a billy filesystem
// rooted at the download directory.
type Resolver struct {
	fs     billy.Filesystem
	logger *slog.Logger
}

// New creates a resolver over fs.
func New(fs billy.Filesystem, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{fs: fs, logger: logger}
}

// Root returns the download directory.
func (r *Resolver) Root() string {
	return r.fs.Root()
}

// SpoolPath returns the spool file location for taskID, relative to Root.
func (r *Resolver) SpoolPath(taskID string) string {
	return r.fs.Join(IncomingDir, taskID+PartSuffix)
}

// OpenSpool opens the spool file for taskID positioned at offset.
//
// If the file on disk does not hold exactly offset bytes it is cut back to
// offset, or to zero when it is shorter. The returned offset is where
// writing actually continues.
func (r *Resolver) OpenSpool(taskID string, offset int64) (billy.File, int64, error) {
	if err := r.fs.MkdirAll(IncomingDir, 0o755); err != nil {
		return nil, 0, &core.FileSystemError{Path: IncomingDir, Cause: err}
	}

	path := r.SpoolPath(taskID)
	f, err := r.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, 0, &core.FileSystemError{Path: path, Cause: err}
	}

	var size int64
	if fi, statErr := r.fs.Stat(path); statErr == nil {
		size = fi.Size()
	}
	if size < offset {
		r.logger.Debug("spool shorter than resume offset, restarting",
			"task", taskID, "size", size, "offset", offset)
		offset = 0
	}
	if size != offset {
		if err := f.Truncate(offset); err != nil {
			f.Close()
			return nil, 0, &core.FileSystemError{Path: path, Cause: err}
		}
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, 0, &core.FileSystemError{Path: path, Cause: err}
	}
	return f, offset, nil
}

// DiscardSpool removes the spool file for taskID. A missing file is not an error.
func (r *Resolver) DiscardSpool(taskID string) error {
	path := r.SpoolPath(taskID)
	if err := r.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &core.FileSystemError{Path: path, Cause: err}
	}
	return nil
}

// Verify checks the spool file for taskID against expected.
func (r *Resolver) Verify(taskID string, expected digest.Digest) error {
	if err := expected.Validate(); err != nil {
		return fmt.Errorf("verify %s: %w", expected, err)
	}

	path := r.SpoolPath(taskID)
	f, err := r.fs.Open(path)
	if err != nil {
		return &core.FileSystemError{Path: path, Cause: err}
	}
	defer f.Close()

	verifier := expected.Verifier()
	if _, err := io.Copy(verifier, f); err != nil {
		return &core.FileSystemError{Path: path, Cause: err}
	}
	if !verifier.Verified() {
		return fmt.Errorf("verify %s: %w", expected, core.ErrDigestMismatch)
	}
	return nil
}

// Place moves the spool file for taskID to name inside the download
// directory and returns the final path. An existing file of the same name is
// replaced; a partially written file is never visible under name.
func (r *Resolver) Place(taskID, name string) (string, error) {
	if err := safepath.ValidateName(name); err != nil {
		return "", &core.FileSystemError{Path: name, Cause: err}
	}

	src := r.SpoolPath(taskID)
	if err := r.fs.Rename(src, name); err != nil {
		r.logger.Debug("rename over existing file failed, removing target first",
			"task", taskID, "name", name, "error", err)
		if rmErr := r.fs.Remove(name); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return "", &core.FileSystemError{Path: name, Cause: rmErr}
		}
		if err := r.fs.Rename(src, name); err != nil {
			return "", &core.FileSystemError{Path: name, Cause: err}
		}
	}

	r.logger.Debug("download placed", "task", taskID, "name", name)
	return r.fs.Join(r.fs.Root(), name), nil
}
