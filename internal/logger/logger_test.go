package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset() {
	Configure("info", "console")
	SetOutput(os.Stderr)
}

func TestSetVerbose(t *testing.T) {
	defer reset()

	SetVerbose(false)
	assert.False(t, IsVerbose())

	SetVerbose(true)
	assert.True(t, IsVerbose())

	SetVerbose(false)
	assert.False(t, IsVerbose())
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debugf("test message %s", "arg")

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "test message arg")
}

func TestDebug_WhenNotVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debugf("hidden")

	assert.Zero(t, buf.Len())
}

func TestInfow_JSONFormat(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	Configure("info", "json")
	SetOutput(&buf)

	Infow("index built", "corpus", "pdf", "documents", 3)

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "index built", entry["msg"])
	assert.Equal(t, "pdf", entry["corpus"])
	assert.EqualValues(t, 3, entry["documents"])
}

func TestConfigure_UnknownLevelFallsBackToInfo(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	Configure("shouting", "console")
	SetOutput(&buf)

	Debugf("nope")
	Warnf("yes %d", 1)

	assert.NotContains(t, buf.String(), "nope")
	assert.Contains(t, buf.String(), "yes 1")
}
