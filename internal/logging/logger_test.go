package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitEmitsJSONWithAppName(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{AppName: "granule-dl", Level: "info", Writer: &buf})
	t.Cleanup(func() { Init(Options{}) })

	log := With("test")
	log.Info().Str("url", "https://x.example.com").Msg("hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "granule-dl", rec["application"])
	assert.Equal(t, "test", rec["component"])
	assert.Equal(t, "hello", rec["message"])
	assert.Contains(t, rec, "time")
}

func TestInitLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "warn", Writer: &buf})
	t.Cleanup(func() { Init(Options{}) })

	Get().Info().Msg("dropped")
	Get().Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARNING"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestRedactNeverEchoesSecret(t *testing.T) {
	assert.Equal(t, "<redacted>", Redact("super-secret-token"))
	assert.Empty(t, Redact(""))
	assert.NotContains(t, Redact("super-secret-token"), "super")
}
