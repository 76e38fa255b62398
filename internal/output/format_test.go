package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatValid(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatText, true},
		{FormatYAML, true},
		{FormatJSON, true},
		{FormatTable, true},
		{OutputFormat("dir"), false},
		{OutputFormat(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.format.Valid())
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input string
		want  OutputFormat
		valid bool
	}{
		{"text", FormatText, true},
		{"yaml", FormatYAML, true},
		{"YML", FormatYAML, true},
		{"JSON", FormatJSON, true},
		{"table", FormatTable, true},
		{"invalid", OutputFormat("invalid"), false},
		{"", OutputFormat(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, valid := ParseOutputFormat(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, valid)
		})
	}
}

func TestValidFormats(t *testing.T) {
	formats := ValidFormats()
	assert.Len(t, formats, 4)
	for _, f := range formats {
		parsed, ok := ParseOutputFormat(f)
		assert.True(t, ok, f)
		assert.Equal(t, f, parsed.String())
	}
}

func TestWriteValue(t *testing.T) {
	v := map[string]any{"total": 5}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteValue(&buf, FormatJSON, v))
		assert.JSONEq(t, `{"total":5}`, buf.String())
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteValue(&buf, FormatYAML, v))
		assert.YAMLEq(t, "total: 5\n", buf.String())
	})

	t.Run("table cannot encode", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Error(t, WriteValue(&buf, FormatTable, v))
	})
}
