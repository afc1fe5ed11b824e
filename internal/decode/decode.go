// Package decode validates HTTP outcomes and turns payloads into records.
package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meigma/courier/core"
)

// Format is a structured payload encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// CheckStatus returns a StatusError unless meta carries a 2xx status.
func CheckStatus(meta *core.ResponseMetadata) error {
	if meta.StatusCode < 200 || meta.StatusCode > 299 {
		return &core.StatusError{StatusCode: meta.StatusCode}
	}
	return nil
}

// FormatOf picks the payload format from a Content-Type header value.
// Anything not recognisably YAML is treated as JSON.
func FormatOf(contentType string) Format {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return FormatJSON
	}
	switch {
	case mt == "application/yaml", mt == "application/x-yaml", mt == "text/yaml", mt == "text/x-yaml",
		strings.HasSuffix(mt, "+yaml"):
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Records decodes body as a list of T. A top-level array yields one record
// per element; a single object yields exactly one record. With strict set,
// fields unknown to T are an error.
func Records[T any](body []byte, format Format, strict bool) ([]T, error) {
	var (
		out []T
		err error
	)
	switch format {
	case FormatYAML:
		out, err = yamlRecords[T](body, strict)
	default:
		out, err = jsonRecords[T](body, strict)
	}
	if err != nil {
		return nil, &core.DecodeError{Cause: err}
	}
	return out, nil
}

func jsonRecords[T any](body []byte, strict bool) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty payload")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if strict {
		dec.DisallowUnknownFields()
	}

	var out []T
	switch trimmed[0] {
	case '[':
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode json array: %w", err)
		}
	case '{':
		var v T
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode json object: %w", err)
		}
		out = []T{v}
	default:
		return nil, fmt.Errorf("json payload starts with %q, want array or object", trimmed[0])
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after json value")
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func yamlRecords[T any](body []byte, strict bool) ([]T, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(body, &node); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return nil, errors.New("empty payload")
	}

	dec := yaml.NewDecoder(bytes.NewReader(body))
	dec.KnownFields(strict)

	var out []T
	switch node.Content[0].Kind {
	case yaml.SequenceNode:
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode yaml sequence: %w", err)
		}
	case yaml.MappingNode:
		var v T
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode yaml mapping: %w", err)
		}
		out = []T{v}
	default:
		return nil, errors.New("yaml payload is not a sequence or mapping")
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
