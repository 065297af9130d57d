package encode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBase64RoundTrip(t *testing.T) {
	original := []byte("hello")
	encoded := EncodeBase64String(original)
	decoded, err := DecodeBase64String(encoded)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestAudioPayloadRoundTrip(t *testing.T) {
	audio := []byte{0x49, 0x44, 0x33, 0x04, 0x00}

	raw, err := EncodeAudioPayload(audio, "audio/mpeg")
	require.NoError(t, err)
	require.Contains(t, string(raw), "audio_base64")

	decoded, contentType, err := DecodeAudioPayload(raw)
	require.NoError(t, err)
	require.Equal(t, audio, decoded)
	require.Equal(t, "audio/mpeg", contentType)
}

func TestEncodeAudioPayloadRejectsEmpty(t *testing.T) {
	_, err := EncodeAudioPayload(nil, "audio/mpeg")
	require.Error(t, err)
}

func TestDecodeAudioPayloadRejectsNonAudioResults(t *testing.T) {
	_, _, err := DecodeAudioPayload([]byte(`{"output":["https://cdn/track.mp3"]}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "audio_base64")
}
