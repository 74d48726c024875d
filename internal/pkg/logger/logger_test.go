package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(DEBUG)
	t.Cleanup(func() {
		SetLevel(INFO)
		SetRedactPII(true)
	})
	return &buf
}

func TestInfoWritesStructuredEntry(t *testing.T) {
	buf := capture(t)

	Info("sequence started", "sequence_id", "seq-1", "step", 0, "err", errors.New("boom"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "sequence started", entry["msg"])
	assert.Equal(t, "seq-1", entry["sequence_id"])
	assert.Equal(t, float64(0), entry["step"])
	assert.Equal(t, "boom", entry["err"])
}

func TestRedactsEmailFields(t *testing.T) {
	buf := capture(t)

	Warn("send failed", "recipient", "john.doe@example.com", "detail", "bounce for jane@example.org")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "jo***@example.com", entry["recipient"])
	assert.Equal(t, "bounce for ja***@example.org", entry["detail"])
}

func TestRedactionCanBeDisabled(t *testing.T) {
	buf := capture(t)
	SetRedactPII(false)

	Info("raw", "email", "john.doe@example.com")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "john.doe@example.com", entry["email"])
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Info("hidden")
	assert.Empty(t, buf.String())

	Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}
