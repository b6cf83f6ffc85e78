package logger

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevFlags := log.Flags()
	log.SetFlags(0)
	SetOutput(&buf)
	t.Cleanup(func() {
		log.SetFlags(prevFlags)
		SetOutput(os.Stderr)
		DebugMode = false
	})
	return &buf
}

func TestDebugOnlyInDebugMode(t *testing.T) {
	buf := captureLog(t)

	DebugMode = false
	Debug("hidden %d", 1)
	assert.Empty(t, buf.String())

	DebugMode = true
	Debug("shown %d", 2)
	assert.Equal(t, "[DEBUG] shown 2\n", buf.String())
}

func TestLevelPrefixes(t *testing.T) {
	buf := captureLog(t)

	Info("a")
	Warn("b")
	Error("c")

	assert.Equal(t, "[INFO] a\n[WARN] b\n[ERROR] c\n", buf.String())
}

func TestRunLoggerPrefixesID(t *testing.T) {
	buf := captureLog(t)

	r := ForRun("abc-123")
	r.Info("prompt %d of %d", 1, 3)

	assert.Equal(t, "[INFO] run=abc-123 prompt 1 of 3\n", buf.String())
}
