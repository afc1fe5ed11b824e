package courier

import (
	"context"

	"github.com/meigma/courier/internal/decode"
)

// FetchRaw GETs url and returns the response body. A non-2xx status yields a
// *FetchError wrapping a *StatusError; a failed exchange yields a *FetchError
// wrapping a *TransportError. Both match ErrFetchFailed.
func (c *Client) FetchRaw(ctx context.Context, url string) ([]byte, error) {
	meta, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return meta.Body, nil
}

// FetchTyped GETs url and decodes the body into records of type T.
//
// YAML is decoded when the response Content-Type says so, JSON otherwise. A
// top-level array yields one record per element and a single object yields
// one record. Fetch failures match ErrFetchFailed; payloads of the wrong
// shape yield a *DecodeError matching ErrDecodeFailed. A non-2xx response is
// never decoded.
func FetchTyped[T any](ctx context.Context, c *Client, url string) ([]T, error) {
	meta, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return decode.Records[T](meta.Body, decode.FormatOf(meta.Header.Get("Content-Type")), c.strict)
}

func (c *Client) fetch(ctx context.Context, url string) (*ResponseMetadata, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}

	meta, err := c.transport.Fetch(ctx, url)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if err := decode.CheckStatus(meta); err != nil {
		return nil, &FetchError{URL: url, StatusCode: meta.StatusCode, Err: err}
	}

	c.logger.Debug("fetch succeeded", "url", url, "status", meta.StatusCode, "bytes", len(meta.Body))
	return meta, nil
}
