// Package audio provides PCM16 helpers for the media path: sample rate
// conversion between the SIP leg and the AI session, G.711 transcoding
// and tone generation.
package audio

import "encoding/binary"

// Sample rates used on the two legs of a call. The SIP leg runs at 48kHz,
// the AI session consumes 16kHz input and produces 24kHz output.
const (
	RateSIP      = 48000
	RateAIInput  = 16000
	RateAIOutput = 24000
)

// Resample converts PCM16 little-endian mono audio from one sample rate to
// another using linear interpolation. The output holds exactly
// floor(inSamples * toRate / fromRate) samples. If the rates are equal the
// input is returned unchanged. A trailing odd byte is ignored.
func Resample(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}

	inSamples := len(pcm) / 2
	if inSamples == 0 {
		return nil
	}

	outSamples := inSamples * toRate / fromRate
	out := make([]byte, outSamples*2)

	step := float64(fromRate) / float64(toRate)
	for i := 0; i < outSamples; i++ {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= inSamples-1 {
			s := sampleAt(pcm, inSamples-1)
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
			continue
		}
		frac := pos - float64(idx)
		s0 := float64(sampleAt(pcm, idx))
		s1 := float64(sampleAt(pcm, idx+1))
		s := int16(s0 + (s1-s0)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ToAIInput downsamples 48kHz SIP audio to the 16kHz the AI session expects.
func ToAIInput(pcm []byte) []byte {
	return Resample(pcm, RateSIP, RateAIInput)
}

// FromAIOutput upsamples 24kHz AI audio to the 48kHz SIP leg rate.
func FromAIOutput(pcm []byte) []byte {
	return Resample(pcm, RateAIOutput, RateSIP)
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}
