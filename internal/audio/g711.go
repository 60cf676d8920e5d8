package audio

import "github.com/zaf/g711"

// DecodePayload converts a G.711 RTP payload to PCM16 little-endian.
// ulaw selects PCMU, otherwise PCMA. The result is at the codec's native
// 8kHz rate; callers resample as needed.
func DecodePayload(payload []byte, ulaw bool) []byte {
	if ulaw {
		return g711.DecodeUlaw(payload)
	}
	return g711.DecodeAlaw(payload)
}

// EncodePayload converts PCM16 little-endian samples to a G.711 payload.
func EncodePayload(pcm []byte, ulaw bool) []byte {
	if ulaw {
		return g711.EncodeUlaw(pcm)
	}
	return g711.EncodeAlaw(pcm)
}
