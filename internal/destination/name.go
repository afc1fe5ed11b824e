package destination

import (
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/meigma/courier/internal/safepath"
)

// DefaultName is used when neither the response nor the URL suggest one.
const DefaultName = "download"

// SuggestName picks a file name for a finished download: the
// Content-Disposition filename if present, else the last URL path segment,
// else DefaultName. The result is always a safe single path component.
func SuggestName(header http.Header, rawURL string) string {
	if cd := header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := safepath.Sanitize(params["filename"]); name != "" {
				return name
			}
		}
	}

	if u, err := url.Parse(rawURL); err == nil {
		if name := safepath.Sanitize(path.Base(u.Path)); name != "" {
			return name
		}
	}

	return DefaultName
}
