package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/courier/core"
)

type record struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code    int
		wantErr bool
	}{
		{code: 200},
		{code: 201},
		{code: 204},
		{code: 299},
		{code: 199, wantErr: true},
		{code: 300, wantErr: true},
		{code: 404, wantErr: true},
		{code: 500, wantErr: true},
	}

	for _, tt := range tests {
		err := CheckStatus(&core.ResponseMetadata{StatusCode: tt.code})
		if !tt.wantErr {
			assert.NoError(t, err, "status %d", tt.code)
			continue
		}
		require.ErrorIs(t, err, core.ErrBadServerResponse, "status %d", tt.code)
		var se *core.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, tt.code, se.StatusCode)
	}
}

func TestFormatOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        Format
	}{
		{"application/json", FormatJSON},
		{"application/json; charset=utf-8", FormatJSON},
		{"application/yaml", FormatYAML},
		{"application/x-yaml", FormatYAML},
		{"text/yaml; charset=utf-8", FormatYAML},
		{"application/vnd.example+yaml", FormatYAML},
		{"text/plain", FormatJSON},
		{"", FormatJSON},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatOf(tt.contentType), tt.contentType)
	}
}

func TestRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		format  Format
		strict  bool
		want    []record
		wantErr bool
	}{
		{
			name:   "json array",
			body:   `[{"id":1,"name":"a"},{"id":2,"name":"b"},{"id":3,"name":"c"}]`,
			format: FormatJSON,
			want:   []record{{1, "a"}, {2, "b"}, {3, "c"}},
		},
		{
			name:   "json single object",
			body:   ` {"id":7,"name":"solo"} `,
			format: FormatJSON,
			want:   []record{{7, "solo"}},
		},
		{
			name:   "json empty array",
			body:   `[]`,
			format: FormatJSON,
			want:   []record{},
		},
		{
			name:   "json unknown field lenient",
			body:   `[{"id":1,"name":"a","extra":true}]`,
			format: FormatJSON,
			want:   []record{{1, "a"}},
		},
		{
			name:    "json unknown field strict",
			body:    `[{"id":1,"name":"a","extra":true}]`,
			format:  FormatJSON,
			strict:  true,
			wantErr: true,
		},
		{
			name:    "json wrong shape",
			body:    `[{"id":"one"}]`,
			format:  FormatJSON,
			wantErr: true,
		},
		{
			name:    "json scalar",
			body:    `42`,
			format:  FormatJSON,
			wantErr: true,
		},
		{
			name:    "json trailing garbage",
			body:    `[{"id":1}] xyz`,
			format:  FormatJSON,
			wantErr: true,
		},
		{
			name:    "empty body",
			body:    ``,
			format:  FormatJSON,
			wantErr: true,
		},
		{
			name:    "html error page",
			body:    `<html>oops</html>`,
			format:  FormatJSON,
			wantErr: true,
		},
		{
			name:   "yaml sequence",
			body:   "- id: 1\n  name: a\n- id: 2\n  name: b\n",
			format: FormatYAML,
			want:   []record{{1, "a"}, {2, "b"}},
		},
		{
			name:   "yaml mapping",
			body:   "id: 9\nname: nine\n",
			format: FormatYAML,
			want:   []record{{9, "nine"}},
		},
		{
			name:    "yaml unknown field strict",
			body:    "- id: 1\n  bogus: x\n",
			format:  FormatYAML,
			strict:  true,
			wantErr: true,
		},
		{
			name:    "yaml scalar",
			body:    "hello\n",
			format:  FormatYAML,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Records[record]([]byte(tt.body), tt.format, tt.strict)
			if tt.wantErr {
				require.ErrorIs(t, err, core.ErrDecodeFailed)
				assert.NotErrorIs(t, err, core.ErrFetchFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	data, ct, err := EncodeJSON(record{ID: 1, Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, ct)
	assert.JSONEq(t, `{"id":1,"name":"a"}`, string(data))

	data, ct, err = EncodeYAML(record{ID: 1, Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, ContentTypeYAML, ct)
	assert.YAMLEq(t, "id: 1\nname: a\n", string(data))

	_, _, err = EncodeJSON(make(chan int))
	require.Error(t, err)
}
