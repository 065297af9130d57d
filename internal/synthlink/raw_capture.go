package synthlink

import (
	"encoding/json"
	"strings"
)

func truncateBytes(input []byte, max int) []byte {
	if max <= 0 {
		return nil
	}
	if len(input) <= max {
		return input
	}
	out := make([]byte, 0, max)
	out = append(out, input[:max]...)
	return out
}

func rawCaptureEnabled(cfg Config) bool {
	return cfg.Debug.CaptureRawEnabled && rawLimit(cfg) > 0
}

func rawLimit(cfg Config) int {
	if cfg.Debug.CaptureRawMaxBytes <= 0 {
		return 0
	}
	return cfg.Debug.CaptureRawMaxBytes
}

// captureRaw decides whether a provider response body is embedded alongside
// a result. Oversized bodies are skipped outright rather than clipped, since
// clipped JSON would poison the enclosing result document.
func captureRaw(cfg Config, raw []byte) (json.RawMessage, bool) {
	if !rawCaptureEnabled(cfg) {
		return nil, false
	}
	if len(raw) == 0 || len(raw) > rawLimit(cfg) {
		return nil, false
	}
	if !json.Valid(raw) {
		return nil, false
	}
	return json.RawMessage(raw), true
}

func safeOneLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
