package encode

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

func DecodeBase64String(value string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(value)
}

func EncodeBase64String(value []byte) string {
	return base64.StdEncoding.EncodeToString(value)
}

// AudioPayload is the JSON envelope synchronous drivers emit for raw audio,
// and the shape consumers decode when writing audio results to disk.
type AudioPayload struct {
	AudioBase64 string `json:"audio_base64"`
	ContentType string `json:"content_type,omitempty"`
}

// EncodeAudioPayload wraps raw audio bytes in the result envelope.
func EncodeAudioPayload(audio []byte, contentType string) ([]byte, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio payload is empty")
	}
	payload := AudioPayload{
		AudioBase64: EncodeBase64String(audio),
		ContentType: strings.TrimSpace(contentType),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode audio payload: %w", err)
	}
	return data, nil
}

// DecodeAudioPayload extracts raw audio bytes and the content type from a
// result envelope. Results without an audio_base64 field are rejected.
func DecodeAudioPayload(raw []byte) ([]byte, string, error) {
	var payload AudioPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, "", fmt.Errorf("decode audio payload: %w", err)
	}
	if strings.TrimSpace(payload.AudioBase64) == "" {
		return nil, "", fmt.Errorf("result carries no audio_base64 field")
	}
	audio, err := DecodeBase64String(payload.AudioBase64)
	if err != nil {
		return nil, "", fmt.Errorf("decode audio bytes: %w", err)
	}
	return audio, payload.ContentType, nil
}
