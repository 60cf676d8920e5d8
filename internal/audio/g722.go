package audio

import "encoding/binary"

// G.722 wideband transcoding, 64 kbit/s mode (ITU-T G.722). A QMF splits
// 16kHz PCM16 into two 8kHz sub-bands; each is coded with backward-adaptive
// ADPCM, 6 bits for the lower band and 2 for the upper, packed one byte per
// two input samples. The RTP clock for G.722 stays at 8kHz (RFC 3551), so
// one payload byte equals one clock tick.

// RateG722 is the audio sample rate of the G.722 codec.
const RateG722 = 16000

// Quantizer and adaptation tables from the ITU-T G.722 recommendation.
var (
	g722QMFCoeffs = [12]int{3, -11, 12, 32, -210, 951, 3876, -805, 362, -156, 53, -11}

	g722Q6 = [30]int{
		0, 35, 72, 110, 150, 190, 233, 276, 323, 370,
		422, 473, 530, 587, 650, 714, 786, 858, 940, 1023,
		1121, 1219, 1339, 1458, 1612, 1765, 1980, 2195, 2557, 2919,
	}
	g722ILN = [32]int{
		0, 63, 62, 31, 30, 29, 28, 27, 26, 25, 24, 23, 22, 21, 20, 19,
		18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 0,
	}
	g722ILP = [32]int{
		0, 61, 60, 59, 58, 57, 56, 55, 54, 53, 52, 51, 50, 49, 48, 47,
		46, 45, 44, 43, 42, 41, 40, 39, 38, 37, 36, 35, 34, 33, 32, 0,
	}
	g722WL   = [8]int{-60, -30, 58, 172, 334, 538, 1198, 3042}
	g722RL42 = [16]int{0, 7, 6, 5, 4, 3, 2, 1, 7, 6, 5, 4, 3, 2, 1, 0}
	g722ILB  = [32]int{
		2048, 2093, 2139, 2186, 2233, 2282, 2332, 2383,
		2435, 2489, 2543, 2599, 2656, 2714, 2774, 2834,
		2896, 2960, 3025, 3091, 3158, 3228, 3298, 3371,
		3444, 3520, 3597, 3676, 3756, 3838, 3922, 4008,
	}
	g722QM4 = [16]int{
		0, -20456, -12896, -8968, -6288, -4240, -2584, -1200,
		20456, 12896, 8968, 6288, 4240, 2584, 1200, 0,
	}
	g722QM2 = [4]int{-7408, -1616, 7408, 1616}
	g722QM6 = [64]int{
		-136, -136, -136, -136, -24808, -21904, -19008, -16704,
		-14984, -13512, -12280, -11192, -10232, -9360, -8576, -7856,
		-7192, -6576, -6000, -5456, -4944, -4464, -4008, -3576,
		-3168, -2776, -2400, -2032, -1688, -1360, -1040, -728,
		24808, 21904, 19008, 16704, 14984, 13512, 12280, 11192,
		10232, 9360, 8576, 7856, 7192, 6576, 6000, 5456,
		4944, 4464, 4008, 3576, 3168, 2776, 2400, 2032,
		1688, 1360, 1040, 728, 432, 136, -432, -136,
	}
	g722IHN = [3]int{0, 1, 0}
	g722IHP = [3]int{0, 3, 2}
	g722WH  = [3]int{0, -214, 798}
	g722RH2 = [4]int{2, 1, 2, 1}
)

func sat16(x int) int {
	if x > 32767 {
		return 32767
	}
	if x < -32768 {
		return -32768
	}
	return x
}

// g722Band holds the adaptive predictor state of one sub-band.
type g722Band struct {
	s, sp, sz     int
	r, a, ap, p   [3]int
	d, b, bp, sg  [7]int
	nb, det       int
}

// rescale recomputes the quantizer step from the log scale factor nb.
// shift is 8 for the lower band and 10 for the upper.
func (b *g722Band) rescale(shift int) {
	wd1 := (b.nb >> 6) & 31
	wd2 := shift - (b.nb >> 11)
	var wd3 int
	if wd2 < 0 {
		wd3 = g722ILB[wd1] << -wd2
	} else {
		wd3 = g722ILB[wd1] >> wd2
	}
	b.det = wd3 << 2
}

// update runs the shared pole/zero predictor adaptation on the quantized
// difference signal d.
func (b *g722Band) update(d int) {
	b.d[0] = d
	b.r[0] = sat16(b.s + d)
	b.p[0] = sat16(b.sz + d)

	for i := 0; i < 3; i++ {
		b.sg[i] = b.p[i] >> 15
	}
	wd1 := sat16(b.a[1] << 2)
	wd2 := wd1
	if b.sg[0] == b.sg[1] {
		wd2 = -wd1
	}
	if wd2 > 32767 {
		wd2 = 32767
	}
	wd3 := wd2 >> 7
	if b.sg[0] == b.sg[2] {
		wd3 += 128
	} else {
		wd3 -= 128
	}
	wd3 += (b.a[2] * 32512) >> 15
	if wd3 > 12288 {
		wd3 = 12288
	} else if wd3 < -12288 {
		wd3 = -12288
	}
	b.ap[2] = wd3

	b.sg[0] = b.p[0] >> 15
	b.sg[1] = b.p[1] >> 15
	wd1 = 192
	if b.sg[0] != b.sg[1] {
		wd1 = -192
	}
	wd2 = (b.a[1] * 32640) >> 15
	b.ap[1] = sat16(wd1 + wd2)
	wd3 = sat16(15360 - b.ap[2])
	if b.ap[1] > wd3 {
		b.ap[1] = wd3
	} else if b.ap[1] < -wd3 {
		b.ap[1] = -wd3
	}

	wd1 = 0
	if d != 0 {
		wd1 = 128
	}
	b.sg[0] = d >> 15
	for i := 1; i < 7; i++ {
		b.sg[i] = b.d[i] >> 15
		wd2 := -wd1
		if b.sg[i] == b.sg[0] {
			wd2 = wd1
		}
		wd3 := (b.b[i] * 32640) >> 15
		b.bp[i] = sat16(wd2 + wd3)
	}

	for i := 6; i > 0; i-- {
		b.d[i] = b.d[i-1]
		b.b[i] = b.bp[i]
	}
	for i := 2; i > 0; i-- {
		b.r[i] = b.r[i-1]
		b.p[i] = b.p[i-1]
		b.a[i] = b.ap[i]
	}

	wd1 = sat16(b.r[1] + b.r[1])
	wd1 = (b.a[1] * wd1) >> 15
	wd2 = sat16(b.r[2] + b.r[2])
	wd2 = (b.a[2] * wd2) >> 15
	b.sp = sat16(wd1 + wd2)

	b.sz = 0
	for i := 6; i > 0; i-- {
		wd := sat16(b.d[i] + b.d[i])
		b.sz += (b.b[i] * wd) >> 15
	}
	b.sz = sat16(b.sz)

	b.s = sat16(b.sp + b.sz)
}

// encodeLow quantizes one lower-band sample to 6 bits and adapts.
func (b *g722Band) encodeLow(xlow int) int {
	el := sat16(xlow - b.s)
	wd := el
	if el < 0 {
		wd = -(el + 1)
	}
	i := 1
	for ; i < 30; i++ {
		if wd < (g722Q6[i]*b.det)>>12 {
			break
		}
	}
	ilow := g722ILP[i]
	if el < 0 {
		ilow = g722ILN[i]
	}

	ril := ilow >> 2
	dlow := (b.det * g722QM4[ril]) >> 15
	b.nb = ((b.nb * 127) >> 7) + g722WL[g722RL42[ril]]
	if b.nb < 0 {
		b.nb = 0
	} else if b.nb > 18432 {
		b.nb = 18432
	}
	b.rescale(8)
	b.update(dlow)
	return ilow
}

// encodeHigh quantizes one upper-band sample to 2 bits and adapts.
func (b *g722Band) encodeHigh(xhigh int) int {
	eh := sat16(xhigh - b.s)
	wd := eh
	if eh < 0 {
		wd = -(eh + 1)
	}
	mih := 1
	if wd >= (564*b.det)>>12 {
		mih = 2
	}
	ihigh := g722IHP[mih]
	if eh < 0 {
		ihigh = g722IHN[mih]
	}

	dhigh := (b.det * g722QM2[ihigh]) >> 15
	b.nb = ((b.nb * 127) >> 7) + g722WH[g722RH2[ihigh]]
	if b.nb < 0 {
		b.nb = 0
	} else if b.nb > 22528 {
		b.nb = 22528
	}
	b.rescale(10)
	b.update(dhigh)
	return ihigh
}

// G722Encoder compresses 16kHz PCM16 to G.722 at 64 kbit/s. Stateful; one
// encoder per stream direction.
type G722Encoder struct {
	band [2]g722Band
	x    [24]int
}

// NewG722Encoder creates an encoder with the initial step sizes from the
// recommendation.
func NewG722Encoder() *G722Encoder {
	e := &G722Encoder{}
	e.band[0].det = 32
	e.band[1].det = 8
	return e
}

// Encode compresses PCM16 LE mono at 16kHz, producing one byte per two
// samples. An odd trailing sample is dropped.
func (e *G722Encoder) Encode(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, 0, samples/2)
	for j := 0; j+1 < samples; j += 2 {
		// QMF analysis over the 24-sample history.
		copy(e.x[:22], e.x[2:])
		e.x[22] = int(int16(binary.LittleEndian.Uint16(pcm[j*2:])))
		e.x[23] = int(int16(binary.LittleEndian.Uint16(pcm[j*2+2:])))
		sumodd, sumeven := 0, 0
		for i := 0; i < 12; i++ {
			sumodd += e.x[2*i] * g722QMFCoeffs[i]
			sumeven += e.x[2*i+1] * g722QMFCoeffs[11-i]
		}
		xlow := (sumeven + sumodd) >> 14
		xhigh := (sumeven - sumodd) >> 14

		ilow := e.band[0].encodeLow(xlow)
		ihigh := e.band[1].encodeHigh(xhigh)
		out = append(out, byte((ihigh<<6)|ilow))
	}
	return out
}

// G722Decoder expands G.722 at 64 kbit/s to 16kHz PCM16. Stateful; one
// decoder per stream direction.
type G722Decoder struct {
	band [2]g722Band
	x    [24]int
}

// NewG722Decoder creates a decoder with the initial step sizes from the
// recommendation.
func NewG722Decoder() *G722Decoder {
	d := &G722Decoder{}
	d.band[0].det = 32
	d.band[1].det = 8
	return d
}

// Decode expands G.722 bytes to PCM16 LE mono at 16kHz, two samples per
// input byte.
func (d *G722Decoder) Decode(data []byte) []byte {
	out := make([]byte, 0, len(data)*4)
	var buf [4]byte
	for _, code := range data {
		ilow := int(code) & 0x3f
		ihigh := (int(code) >> 6) & 0x03

		lo := &d.band[0]
		rlow := lo.s + (lo.det*g722QM6[ilow])>>15
		if rlow > 16383 {
			rlow = 16383
		} else if rlow < -16384 {
			rlow = -16384
		}
		ril := ilow >> 2
		dlowt := (lo.det * g722QM4[ril]) >> 15
		lo.nb = ((lo.nb * 127) >> 7) + g722WL[g722RL42[ril]]
		if lo.nb < 0 {
			lo.nb = 0
		} else if lo.nb > 18432 {
			lo.nb = 18432
		}
		lo.rescale(8)
		lo.update(dlowt)

		hi := &d.band[1]
		dhigh := (hi.det * g722QM2[ihigh]) >> 15
		rhigh := dhigh + hi.s
		if rhigh > 16383 {
			rhigh = 16383
		} else if rhigh < -16384 {
			rhigh = -16384
		}
		hi.nb = ((hi.nb * 127) >> 7) + g722WH[g722RH2[ihigh]]
		if hi.nb < 0 {
			hi.nb = 0
		} else if hi.nb > 22528 {
			hi.nb = 22528
		}
		hi.rescale(10)
		hi.update(dhigh)

		// QMF synthesis back to 16kHz.
		copy(d.x[:22], d.x[2:])
		d.x[22] = rlow + rhigh
		d.x[23] = rlow - rhigh
		xout1, xout2 := 0, 0
		for i := 0; i < 12; i++ {
			xout2 += d.x[2*i] * g722QMFCoeffs[i]
			xout1 += d.x[2*i+1] * g722QMFCoeffs[11-i]
		}
		binary.LittleEndian.PutUint16(buf[0:], uint16(int16(sat16(xout1>>11))))
		binary.LittleEndian.PutUint16(buf[2:], uint16(int16(sat16(xout2>>11))))
		out = append(out, buf[:]...)
	}
	return out
}
