package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifiedai/internal/platform/config"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json format honours level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(config.Log{Level: "warn", Format: "json"}, &buf)

		log.Info("dropped")
		log.Warn("kept", "job_id", "42")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "kept", line["msg"])
		assert.Equal(t, "42", line["job_id"])
		assert.Equal(t, "verifiedai", line["service"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(config.Log{Level: "debug", Format: "TEXT"}, &buf)
		log.Debug("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})
}
