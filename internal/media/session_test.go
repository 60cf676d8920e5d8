package media

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
)

func sessionTestPair(t *testing.T) *SocketPair {
	t.Helper()
	pool, err := NewPortPool(42000, 42040, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewPortPool: %v", err)
	}
	pair, err := pool.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	t.Cleanup(func() { pool.Release(pair) })
	return pair
}

func pcmaCodec() Codec {
	return Codec{PayloadType: PayloadTypePCMA, Name: "PCMA", ClockRate: 8000}
}

func TestSessionReportsSilentStream(t *testing.T) {
	pair := sessionTestPair(t)

	fired := make(chan struct{}, 1)
	s, err := NewSession(SessionConfig{
		CallID:    "c1",
		Codec:     pcmaCodec(),
		Sockets:   pair,
		OnTimeout: func() { fired <- struct{}{} },
		Timeout:   200 * time.Millisecond,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Start()
	t.Cleanup(s.Stop)

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout callback never fired for a silent stream")
	}

	// The callback reports once; the loop keeps running until Stop.
	select {
	case <-fired:
		t.Error("timeout callback fired more than once")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestSessionInboundPacketsDeferTimeout(t *testing.T) {
	pair := sessionTestPair(t)

	fired := make(chan struct{}, 1)
	audio := make(chan int, 64)
	s, err := NewSession(SessionConfig{
		CallID:    "c1",
		Codec:     pcmaCodec(),
		Sockets:   pair,
		OnAudio:   func(pcm []byte) { audio <- len(pcm) },
		OnTimeout: func() { fired <- struct{}{} },
		Timeout:   400 * time.Millisecond,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Start()
	t.Cleanup(s.Stop)

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: pair.Ports.RTP,
	})
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:     2,
			PayloadType: PayloadTypePCMA,
			SSRC:        0x1234,
		},
		Payload: make([]byte, 160), // 20ms of A-law
	}

	// Feed packets well within the timeout for a second.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		out, err := pkt.Marshal()
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if _, err := conn.Write(out); err != nil {
			t.Fatalf("Write: %v", err)
		}
		pkt.SequenceNumber++
		pkt.Timestamp += 160

		select {
		case <-fired:
			t.Fatal("timeout fired while packets were flowing")
		case <-time.After(100 * time.Millisecond):
		}
	}

	select {
	case n := <-audio:
		if n == 0 {
			t.Error("empty audio burst delivered")
		}
	default:
		t.Error("no audio delivered for inbound packets")
	}
}
