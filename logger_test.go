package gatecache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLineShape(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, false)

	l.Info("hello %s", "world")
	assert.Equal(t, "[RCL] [INFO] hello world\n", buf.String())

	buf.Reset()
	l.Warn("count=%d", 42)
	assert.Equal(t, "[RCL] [WARN] count=42\n", buf.String())

	buf.Reset()
	l.Error("boom")
	assert.Equal(t, "[RCL] [ERROR] boom\n", buf.String())
}

func TestLoggerTraceGatedByVerbose(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, false)

	l.Trace("invisible")
	assert.Empty(t, buf.String())

	l.SetVerbose(true)
	l.Trace("visible")
	assert.Equal(t, "[RCL] [TRACE] visible\n", buf.String())
}

func TestLoggerDebugDirective(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, false)

	l.Info("key is %p", "http://example.org/")
	assert.Equal(t, "[RCL] [INFO] key is \"http://example.org/\"\n", buf.String())

	buf.Reset()
	l.Info("events: %p", EventHit)
	assert.Equal(t, "[RCL] [INFO] events: \"hit\"\n", buf.String())

	buf.Reset()
	l.Info("size: %p", 123)
	assert.Equal(t, "[RCL] [INFO] size: 123\n", buf.String())
}

func TestLoggerMixedDirectives(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, false)

	l.Warn("store failed for %p after %d tries: %p", "some-key", 3, assert.AnError)
	require.Contains(t, buf.String(), `store failed for "some-key" after 3 tries:`)
	require.Contains(t, buf.String(), assert.AnError.Error())
}

func TestLoggerPercentEscape(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, false)

	l.Info("100%% done")
	assert.Equal(t, "[RCL] [INFO] 100% done\n", buf.String())
}
