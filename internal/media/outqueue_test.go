package media

import (
	"bytes"
	"testing"
)

func TestPlayoutQueue_FramesAndResidual(t *testing.T) {
	q := NewPlayoutQueue()

	// 2.5 frames worth of audio: two full frames queued, half a frame residual.
	in := make([]byte, FrameBytes*2+FrameBytes/2)
	for i := range in {
		in[i] = byte(i)
	}
	if dropped := q.Push(in); dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}

	// Pushing the other half completes the third frame.
	q.Push(make([]byte, FrameBytes/2))
	if q.Len() != 3 {
		t.Fatalf("Len() after completing residual = %d, want 3", q.Len())
	}
}

func TestPlayoutQueue_PreservesByteOrder(t *testing.T) {
	q := NewPlayoutQueue()
	in := make([]byte, FrameBytes*2)
	for i := range in {
		in[i] = byte(i % 251)
	}
	q.Push(in)

	first, ok := q.Pop()
	if !ok {
		t.Fatal("Pop() reported underrun on a filled queue")
	}
	if !bytes.Equal(first, in[:FrameBytes]) {
		t.Error("first frame does not match pushed bytes")
	}
	second, _ := q.Pop()
	if !bytes.Equal(second, in[FrameBytes:]) {
		t.Error("second frame does not match pushed bytes")
	}
}

func TestPlayoutQueue_SilenceOnUnderrun(t *testing.T) {
	q := NewPlayoutQueue()

	frame, ok := q.Pop()
	if ok {
		t.Error("Pop() on empty queue reported real audio")
	}
	if len(frame) != FrameBytes {
		t.Fatalf("silence frame is %d bytes, want %d", len(frame), FrameBytes)
	}
	for i, b := range frame {
		if b != 0 {
			t.Fatalf("silence frame byte %d = %d, want 0", i, b)
		}
	}

	_, underruns := q.Stats()
	if underruns != 1 {
		t.Errorf("underruns = %d, want 1", underruns)
	}
}

func TestPlayoutQueue_DropOldestOnOverflow(t *testing.T) {
	q := NewPlayoutQueue()

	// Fill to the bound, marking each frame with its index.
	for i := 0; i < maxQueuedFrames; i++ {
		frame := make([]byte, FrameBytes)
		frame[0] = byte(i)
		q.Push(frame)
	}
	if q.Len() != maxQueuedFrames {
		t.Fatalf("Len() = %d, want %d", q.Len(), maxQueuedFrames)
	}

	// Two more frames must evict the two oldest.
	over := make([]byte, FrameBytes*2)
	if dropped := q.Push(over); dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	if q.Len() != maxQueuedFrames {
		t.Fatalf("Len() after overflow = %d, want %d", q.Len(), maxQueuedFrames)
	}

	head, _ := q.Pop()
	if head[0] != 2 {
		t.Errorf("head frame marker = %d, want 2 (oldest two dropped)", head[0])
	}

	dropped, _ := q.Stats()
	if dropped != 2 {
		t.Errorf("Stats dropped = %d, want 2", dropped)
	}
}

func TestPlayoutQueue_ClearDropsResidualToo(t *testing.T) {
	q := NewPlayoutQueue()
	q.Push(make([]byte, FrameBytes*3+10))

	if n := q.Clear(); n != 3 {
		t.Fatalf("Clear() = %d, want 3", n)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after clear = %d, want 0", q.Len())
	}

	// The 10 residual bytes must be gone: a half frame now leaves
	// nothing queued.
	q.Push(make([]byte, FrameBytes-10))
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (residual should have been cleared)", q.Len())
	}
}

func TestPlayoutQueue_PushEmpty(t *testing.T) {
	q := NewPlayoutQueue()
	if dropped := q.Push(nil); dropped != 0 {
		t.Errorf("Push(nil) dropped = %d, want 0", dropped)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}
