package audio

import (
	"encoding/binary"
	"math"
)

// Beep parameters for the wrong-code signal played into the call.
const (
	beepFreqHz   = 800.0
	beepDuration = 0.150 // seconds
	beepVolume   = 0.3
	beepFade     = 0.010 // seconds of linear fade in and out
)

// Beep returns a short confirmation/denial tone as PCM16 little-endian mono
// at the SIP leg rate: 800Hz sine, 150ms, amplitude 0.3, with a 10ms linear
// fade on both ends to avoid clicks.
func Beep() []byte {
	return Tone(beepFreqHz, beepDuration, RateSIP, beepVolume, beepFade)
}

// Tone generates a sine tone as PCM16 little-endian mono samples.
// volume scales the full int16 range; fade is the linear fade in/out length
// in seconds and is clamped to half the duration.
func Tone(freq, duration float64, sampleRate int, volume, fade float64) []byte {
	n := int(duration * float64(sampleRate))
	if n <= 0 {
		return nil
	}
	fadeSamples := int(fade * float64(sampleRate))
	if fadeSamples > n/2 {
		fadeSamples = n / 2
	}

	out := make([]byte, n*2)
	amp := volume * float64(math.MaxInt16)
	for i := 0; i < n; i++ {
		s := amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))

		// Linear fade in/out.
		if fadeSamples > 0 {
			if i < fadeSamples {
				s *= float64(i) / float64(fadeSamples)
			} else if i >= n-fadeSamples {
				s *= float64(n-1-i) / float64(fadeSamples)
			}
		}

		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
