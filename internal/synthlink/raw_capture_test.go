package synthlink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncateBytes(t *testing.T) {
	input := []byte(`{"a":"0123456789"}`)
	out := truncateBytes(input, 8)
	require.Len(t, out, 8)
	require.Equal(t, string(input[:8]), string(out))

	require.Equal(t, input, truncateBytes(input, 1024))
	require.Nil(t, truncateBytes(input, 0))
}

func TestCaptureRawGating(t *testing.T) {
	enabled := Config{Debug: DebugConfig{CaptureRawEnabled: true, CaptureRawMaxBytes: 64}}

	raw, ok := captureRaw(enabled, []byte(`{"id":"pred-1"}`))
	require.True(t, ok)
	require.JSONEq(t, `{"id":"pred-1"}`, string(raw))

	_, ok = captureRaw(Config{}, []byte(`{"id":"pred-1"}`))
	require.False(t, ok, "capture must stay off unless enabled")

	_, ok = captureRaw(enabled, []byte(`{"id":"`+string(make([]byte, 100))+`"}`))
	require.False(t, ok, "oversized bodies are skipped, not clipped")

	_, ok = captureRaw(enabled, []byte("not json"))
	require.False(t, ok)

	_, ok = captureRaw(enabled, nil)
	require.False(t, ok)
}
