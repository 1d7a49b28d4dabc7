package core

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLoggerWithWriter("test-service", "debug", &buf)

	logger.Info("schema retrieved", map[string]interface{}{
		"operation":   "schema_retrieve",
		"table_count": 3,
	})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "info", record["level"])
	assert.Equal(t, "schema retrieved", record["msg"])
	assert.Equal(t, "test-service", record["service"])
	assert.Equal(t, "schema_retrieve", record["operation"])
	assert.EqualValues(t, 3, record["table_count"])
}

func TestProductionLoggerLevelGating(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLoggerWithWriter("test-service", "warn", &buf)

	logger.Debug("noise", nil)
	logger.Info("noise", nil)
	assert.Zero(t, buf.Len())

	logger.Warn("signal", nil)
	assert.NotZero(t, buf.Len())
}

func TestProductionLoggerUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLoggerWithWriter("test-service", "verbose", &buf)

	logger.Debug("hidden", nil)
	assert.Zero(t, buf.Len())

	logger.Info("shown", nil)
	assert.NotZero(t, buf.Len())
}
