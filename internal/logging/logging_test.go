package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWriter(&buf, "debug", "json")
	l.Debug().Str("order", "o1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "o1", entry["order"])
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupWriterBadLevel(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "loud", "json")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")
	l := Component("checkout")
	l.Info().Msg("x")
	assert.Contains(t, buf.String(), `"component":"checkout"`)
}
