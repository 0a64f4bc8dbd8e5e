package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONComponents(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{LogLevel: zerolog.InfoLevel, Type: JSONLogger, Output: &buf})

	Court.Info().Uint64("market", 7).Msg("court opened")
	Court.Debug().Msg("filtered")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	entry := map[string]any{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "court", entry["component"])
	assert.Equal(t, "court opened", entry["message"])
	assert.EqualValues(t, 7, entry["market"])
}

func TestParseLoggerType(t *testing.T) {
	tests := []struct {
		in      string
		want    LoggerType
		wantErr bool
	}{
		{in: "", want: ConsoleLogger},
		{in: "console", want: ConsoleLogger},
		{in: "JSON", want: JSONLogger},
		{in: "syslog", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLoggerType(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
