package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	Init()
	assert.NotNil(t, log)
}

func TestInfo(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	Info("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	Error("test error")

	assert.Contains(t, buf.String(), "test error")
}

func TestDebug(t *testing.T) {
	var buf bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	log = New(NewJSONHandler(&buf, opts))

	Debug("test debug")

	assert.Contains(t, buf.String(), "test debug")
}

func TestInfof(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	Infof("test %s", "formatted")

	assert.Contains(t, buf.String(), "formatted")
}

func TestErrorf(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	Errorf("test %s", "errorf")

	assert.Contains(t, buf.String(), "errorf")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	WithError(assert.AnError).Info("test with error")

	output := buf.String()
	assert.Contains(t, output, "test with error")
	assert.Contains(t, output, "error")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	WithFields(map[string]any{
		"gateway": "momo",
		"amount":  50000,
	}).Info("callback received")

	output := buf.String()
	assert.Contains(t, output, "callback received")
	assert.Contains(t, output, "gateway")
	assert.Contains(t, output, "momo")
}
