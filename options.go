package courier

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-git/go-billy/v5"
	"github.com/opencontainers/go-digest"
)

// ClientOption configures a Client.
type ClientOption func(*Client) error

// DownloadOption configures a single download.
type DownloadOption func(*downloadConfig)

// downloadConfig holds configuration for one download.
type downloadConfig struct {
	filename string
	digest   digest.Digest
}

// WithLogger sets a logger for the client. By default, logging is disabled.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger is nil")
		}
		c.logger = logger
		return nil
	}
}

// WithHTTPClient sets the HTTP client used by the default transport.
// By default each Client gets its own pooled client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTransport replaces the HTTP transport entirely.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) error {
		c.transport = t
		return nil
	}
}

// WithDownloadDir sets the directory finished downloads are placed in.
// Defaults to $XDG_DATA_HOME/courier/downloads.
func WithDownloadDir(dir string) ClientOption {
	return func(c *Client) error {
		if dir == "" {
			return errors.New("download directory is empty")
		}
		c.downloadDir = dir
		return nil
	}
}

// WithFilesystem sets the filesystem downloads are written to. Its root acts
// as the download directory.
func WithFilesystem(fs billy.Filesystem) ClientOption {
	return func(c *Client) error {
		c.fs = fs
		return nil
	}
}

// WithStrictDecoding makes FetchTyped reject fields unknown to the record type.
func WithStrictDecoding(strict bool) ClientOption {
	return func(c *Client) error {
		c.strict = strict
		return nil
	}
}

// WithCompression controls whether fetches ask for zstd or gzip compressed
// responses. Enabled by default.
func WithCompression(enabled bool) ClientOption {
	return func(c *Client) error {
		c.compression = enabled
		return nil
	}
}

// WithUserAgent sets a custom User-Agent header for all requests.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithFilename overrides the name the finished download is stored under.
func WithFilename(name string) DownloadOption {
	return func(cfg *downloadConfig) {
		cfg.filename = name
	}
}

// WithDigest verifies the downloaded bytes against d before placing them.
func WithDigest(d digest.Digest) DownloadOption {
	return func(cfg *downloadConfig) {
		cfg.digest = d
	}
}
