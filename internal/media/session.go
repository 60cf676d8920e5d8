package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"gopkg.in/hraban/opus.v2"

	"github.com/voicegate/voicegate/internal/audio"
)

// frameInterval is the RTP packet cadence on the SIP leg.
const frameInterval = 20 * time.Millisecond

// readDeadline bounds each blocking read so the loop can observe stop
// signals and deadline-free peers.
const readDeadline = 100 * time.Millisecond

// defaultMediaTimeout is how long the inbound stream may stay silent before
// the session reports it as dropped. Callers hang up mid-call, providers
// reroute, NATs expire; without packets the call is dead air.
const defaultMediaTimeout = 10 * time.Second

// SessionConfig carries everything needed to run an RTP session for one call.
type SessionConfig struct {
	CallID     string
	Codec      Codec
	Sockets    *SocketPair
	RemoteAddr *net.UDPAddr // media address from the SDP offer
	// OnAudio receives decoded inbound audio as PCM16 LE mono at 48kHz,
	// one 20ms burst per received packet. Called from the read goroutine.
	OnAudio func(pcm []byte)
	// OnTimeout fires once, from its own goroutine, when no RTP arrives
	// for Timeout. The owner is expected to tear the call down.
	OnTimeout func()
	// Timeout overrides defaultMediaTimeout when positive.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Session is the RTP media session for a single call. It decodes inbound
// packets to PCM16 at the 48kHz leg rate and feeds them to OnAudio, and
// drains a PlayoutQueue at a fixed 20ms cadence on the way out, substituting
// silence on underrun so the stream never starves.
//
// The remote address is learned symmetrically: the first packet received
// re-points the send destination, which keeps audio flowing through NATs
// whose source port differs from the SDP offer.
type Session struct {
	callID  string
	codec   Codec
	sockets *SocketPair
	logger  *slog.Logger

	queue  *PlayoutQueue
	remote atomic.Pointer[net.UDPAddr]

	onAudio   func(pcm []byte)
	onTimeout func()
	timeout   time.Duration

	opusEnc *opus.Encoder
	opusDec *opus.Decoder

	g722Enc *audio.G722Encoder
	g722Dec *audio.G722Decoder

	ssrc uint32
	seq  uint16
	ts   uint32

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewSession creates an RTP session for the negotiated codec. For Opus the
// encoder/decoder pair is initialized at 48kHz mono; G.711 variants transcode
// through the audio package.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Sockets == nil {
		return nil, fmt.Errorf("rtp session requires a socket pair")
	}

	s := &Session{
		callID:  cfg.CallID,
		codec:   cfg.Codec,
		sockets: cfg.Sockets,
		logger:  cfg.Logger.With("subsystem", "rtp-session", "call_id", cfg.CallID),
		queue:     NewPlayoutQueue(),
		onAudio:   cfg.OnAudio,
		onTimeout: cfg.OnTimeout,
		timeout:   cfg.Timeout,
		ssrc:      rand.Uint32(),
		seq:       uint16(rand.Uint32()),
		ts:        rand.Uint32(),
	}
	if s.timeout <= 0 {
		s.timeout = defaultMediaTimeout
	}
	s.remote.Store(cfg.RemoteAddr)

	if cfg.Codec.IsOpus() {
		enc, err := opus.NewEncoder(audio.RateSIP, 1, opus.AppVoIP)
		if err != nil {
			return nil, fmt.Errorf("creating opus encoder: %w", err)
		}
		dec, err := opus.NewDecoder(audio.RateSIP, 1)
		if err != nil {
			return nil, fmt.Errorf("creating opus decoder: %w", err)
		}
		s.opusEnc = enc
		s.opusDec = dec
	}
	if cfg.Codec.IsG722() {
		s.g722Enc = audio.NewG722Encoder()
		s.g722Dec = audio.NewG722Decoder()
	}

	return s, nil
}

// Start launches the read and write loops.
func (s *Session) Start() {
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	s.logger.Info("rtp session started",
		"codec", s.codec.Name,
		"clock_rate", s.codec.ClockRate,
		"local_port", s.sockets.Ports.RTP,
	)
}

// Stop signals both loops to exit and waits for them. The socket pair is
// not closed here; the owner releases it back to the pool.
func (s *Session) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.wg.Wait()

	dropped, underruns := s.queue.Stats()
	s.logger.Info("rtp session stopped",
		"dropped_frames", dropped,
		"underruns", underruns,
	)
}

// Enqueue adds outgoing PCM16 audio at 48kHz to the playout queue and
// returns the number of frames dropped to overflow.
func (s *Session) Enqueue(pcm []byte) int {
	return s.queue.Push(pcm)
}

// ClearPlayout drops all pending outgoing audio (barge-in) and returns the
// number of frames discarded.
func (s *Session) ClearPlayout() int {
	return s.queue.Clear()
}

// Stats returns the cumulative dropped-frame and underrun counters of the
// playout queue.
func (s *Session) Stats() (dropped, underruns uint64) {
	return s.queue.Stats()
}

// QueuedFrames returns the current playout queue depth.
func (s *Session) QueuedFrames() int {
	return s.queue.Len()
}

// readLoop receives RTP packets, learns the symmetric remote address, and
// delivers decoded PCM to the audio callback. A stream that stays silent
// past the timeout is reported exactly once via the timeout callback.
func (s *Session) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, 1500)
	lastPacket := time.Now()
	timeoutFired := false
	for !s.stopped.Load() {
		s.sockets.RTPConn.SetReadDeadline(time.Now().Add(readDeadline))
		n, addr, err := s.sockets.RTPConn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if !timeoutFired && time.Since(lastPacket) > s.timeout {
					timeoutFired = true
					s.logger.Warn("rtp stream silent past timeout",
						"timeout", s.timeout.String(),
					)
					if s.onTimeout != nil {
						// The owner's teardown calls Stop, which waits for
						// this loop; it must run elsewhere.
						go s.onTimeout()
					}
				}
				continue
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
				return
			}
			s.logger.Debug("rtp read error", "error", err)
			continue
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		lastPacket = time.Now()
		if pkt.PayloadType != uint8(s.codec.PayloadType) {
			// Comfort noise or DTMF events; not part of the audio path.
			continue
		}

		// Symmetric RTP: lock sends onto the observed source address.
		if cur := s.remote.Load(); cur == nil || !cur.IP.Equal(addr.IP) || cur.Port != addr.Port {
			s.remote.Store(addr)
			s.logger.Debug("learned remote rtp address", "addr", addr.String())
		}

		pcm := s.decode(pkt.Payload)
		if len(pcm) > 0 && s.onAudio != nil {
			s.onAudio(pcm)
		}
	}
}

// writeLoop sends one frame every 20ms, pulling from the playout queue and
// falling back to silence when it is empty.
func (s *Session) writeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for range ticker.C {
		if s.stopped.Load() {
			return
		}

		remote := s.remote.Load()
		if remote == nil {
			continue
		}

		frame, _ := s.queue.Pop()
		payload, samples := s.encode(frame)
		if payload == nil {
			continue
		}

		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    uint8(s.codec.PayloadType),
				SequenceNumber: s.seq,
				Timestamp:      s.ts,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		}
		s.seq++
		s.ts += samples

		out, err := pkt.Marshal()
		if err != nil {
			s.logger.Debug("rtp marshal error", "error", err)
			continue
		}
		if _, err := s.sockets.RTPConn.WriteToUDP(out, remote); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Debug("rtp write error", "error", err)
		}
	}
}

// decode converts an inbound payload to PCM16 at the 48kHz leg rate.
func (s *Session) decode(payload []byte) []byte {
	switch {
	case s.codec.IsOpus():
		pcm := make([]int16, 5760) // max opus frame: 120ms at 48kHz
		n, err := s.opusDec.Decode(payload, pcm)
		if err != nil {
			s.logger.Debug("opus decode error", "error", err)
			return nil
		}
		return int16ToBytes(pcm[:n])
	case s.codec.IsG722():
		pcm16k := s.g722Dec.Decode(payload)
		return audio.Resample(pcm16k, audio.RateG722, audio.RateSIP)
	default:
		pcm8k := audio.DecodePayload(payload, s.codec.IsPCMU())
		return audio.Resample(pcm8k, s.codec.ClockRate, audio.RateSIP)
	}
}

// encode converts one 48kHz PCM16 frame to the wire codec. Returns the
// payload and the RTP timestamp advance in codec clock units.
func (s *Session) encode(frame []byte) ([]byte, uint32) {
	switch {
	case s.codec.IsOpus():
		pcm := bytesToInt16(frame)
		out := make([]byte, 1500)
		n, err := s.opusEnc.Encode(pcm, out)
		if err != nil {
			s.logger.Debug("opus encode error", "error", err)
			return nil, 0
		}
		return out[:n], FrameSamples
	case s.codec.IsG722():
		pcm16k := audio.Resample(frame, audio.RateSIP, audio.RateG722)
		payload := s.g722Enc.Encode(pcm16k)
		// 8kHz wire clock: one byte per tick despite the 16kHz audio.
		return payload, uint32(len(payload))
	default:
		pcm8k := audio.Resample(frame, audio.RateSIP, s.codec.ClockRate)
		payload := audio.EncodePayload(pcm8k, s.codec.IsPCMU())
		return payload, uint32(len(payload))
	}
}

func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func bytesToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
