package decode

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Content types produced by the encoders.
const (
	ContentTypeJSON = "application/json"
	ContentTypeYAML = "application/yaml"
)

// EncodeJSON serializes v for an upload body.
func EncodeJSON(v any) ([]byte, string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("encode json: %w", err)
	}
	return data, ContentTypeJSON, nil
}

// EncodeYAML serializes v for an upload body.
func EncodeYAML(v any) ([]byte, string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("encode yaml: %w", err)
	}
	return data, ContentTypeYAML, nil
}
