package media

import "sync"

// Frame geometry for the SIP leg: 20ms of PCM16 mono at 48kHz.
const (
	FrameSamples = 960
	FrameBytes   = FrameSamples * 2
	// maxQueuedFrames bounds the playout queue at 20 seconds of audio.
	// When the AI bursts faster than realtime, the oldest frames are dropped.
	maxQueuedFrames = 1000
)

// PlayoutQueue buffers outgoing PCM16 audio between the AI session (which
// delivers audio in arbitrary-sized bursts) and the RTP write loop (which
// consumes exactly one 20ms frame per tick). Partial frames are carried in a
// residual buffer until enough bytes arrive to fill the next frame.
//
// All methods are safe for concurrent use.
type PlayoutQueue struct {
	mu       sync.Mutex
	frames   [][]byte
	residual []byte

	dropped   uint64 // frames dropped due to overflow
	underruns uint64 // pops that had to substitute silence
}

// NewPlayoutQueue creates an empty playout queue.
func NewPlayoutQueue() *PlayoutQueue {
	return &PlayoutQueue{}
}

// Push appends PCM16 audio to the queue, slicing it into full frames.
// Bytes that do not fill a complete frame remain in the residual buffer for
// the next push. Returns the number of frames dropped to stay within the
// queue bound.
func (q *PlayoutQueue) Push(pcm []byte) int {
	if len(pcm) == 0 {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	data := append(q.residual, pcm...)
	for len(data) >= FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, data[:FrameBytes])
		q.frames = append(q.frames, frame)
		data = data[FrameBytes:]
	}
	q.residual = append([]byte(nil), data...)

	dropped := 0
	if over := len(q.frames) - maxQueuedFrames; over > 0 {
		q.frames = q.frames[over:]
		dropped = over
		q.dropped += uint64(over)
	}
	return dropped
}

// Pop returns the next 20ms frame, or a silence frame if the queue is empty.
// The second return value reports whether real audio was available.
func (q *PlayoutQueue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		q.underruns++
		return make([]byte, FrameBytes), false
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}

// Clear atomically drops all queued frames and the residual buffer.
// Returns the number of full frames discarded. Used for barge-in: when the
// caller starts speaking, pending assistant audio must not keep playing.
func (q *PlayoutQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.frames)
	q.frames = nil
	q.residual = nil
	return n
}

// Len returns the number of complete frames currently queued.
func (q *PlayoutQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Stats returns the cumulative dropped-frame and underrun counters.
func (q *PlayoutQueue) Stats() (dropped, underruns uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped, q.underruns
}
