package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/config"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/logging"
)

func TestNew_JSONWithDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithOutput(config.LoggingConfig{Level: "warn", Format: "json"}, "1.2.3", &buf)

	log.Info("dropped")
	log.WithField("component", "test").Warn("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "biogate", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "test", entry["component"])
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	log := logging.NewWithOutput(config.LoggingConfig{Level: "chatty", Format: "text"}, "dev", &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, log.Logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Logger.Formatter)
}
