package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcmFromSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func samplesFromPCM(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func TestResample_Identity(t *testing.T) {
	in := pcmFromSamples([]int16{1, 2, 3, 4})
	out := Resample(in, 48000, 48000)
	if len(out) != len(in) {
		t.Fatalf("got %d bytes, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("byte %d changed: got %d, want %d", i, out[i], in[i])
		}
	}
}

func TestResample_OutputLength(t *testing.T) {
	tests := []struct {
		name      string
		inSamples int
		from, to  int
		want      int
	}{
		{"48k to 16k", 960, 48000, 16000, 320},
		{"24k to 48k", 480, 24000, 48000, 960},
		{"16k to 48k", 320, 16000, 48000, 960},
		{"48k to 24k odd", 961, 48000, 24000, 480},
		{"one sample down", 1, 48000, 16000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]byte, tt.inSamples*2)
			out := Resample(in, tt.from, tt.to)
			if len(out)/2 != tt.want {
				t.Errorf("got %d samples, want %d", len(out)/2, tt.want)
			}
		})
	}
}

func TestResample_ConstantSignal(t *testing.T) {
	// A constant signal must stay constant through interpolation.
	in := make([]int16, 480)
	for i := range in {
		in[i] = 1000
	}
	out := samplesFromPCM(Resample(pcmFromSamples(in), 24000, 48000))
	for i, s := range out {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}

func TestResample_PreservesSine(t *testing.T) {
	// Downsample a 400Hz sine from 48kHz to 16kHz and check the waveform
	// still matches the analytic signal closely.
	const freq = 400.0
	in := make([]int16, 960)
	for i := range in {
		in[i] = int16(10000 * math.Sin(2*math.Pi*freq*float64(i)/48000))
	}
	out := samplesFromPCM(Resample(pcmFromSamples(in), 48000, 16000))

	for i, s := range out {
		want := 10000 * math.Sin(2*math.Pi*freq*float64(i)/16000)
		if math.Abs(float64(s)-want) > 200 {
			t.Fatalf("sample %d = %d, want ~%.0f", i, s, want)
		}
	}
}

func TestResample_Empty(t *testing.T) {
	if out := Resample(nil, 48000, 16000); len(out) != 0 {
		t.Errorf("got %d bytes, want 0", len(out))
	}
	// A single stray byte is not a sample.
	if out := Resample([]byte{0x01}, 48000, 16000); len(out) != 0 {
		t.Errorf("got %d bytes for odd input, want 0", len(out))
	}
}

func TestToAIInput_FrameSize(t *testing.T) {
	// One 20ms SIP frame (960 samples @48k) becomes 320 samples @16k.
	in := make([]byte, 1920)
	out := ToAIInput(in)
	if len(out) != 640 {
		t.Errorf("got %d bytes, want 640", len(out))
	}
}

func TestFromAIOutput_FrameSize(t *testing.T) {
	// 20ms of AI output (480 samples @24k) becomes 960 samples @48k.
	in := make([]byte, 960)
	out := FromAIOutput(in)
	if len(out) != 1920 {
		t.Errorf("got %d bytes, want 1920", len(out))
	}
}
