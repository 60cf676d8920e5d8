package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emiago/sipgo"

	"github.com/voicegate/voicegate/internal/agent"
	"github.com/voicegate/voicegate/internal/audio"
	"github.com/voicegate/voicegate/internal/media"
	"github.com/voicegate/voicegate/internal/realtime"
)

// Call is one active phone call: the SIP dialog, the RTP leg, the model
// session and the agent state bound together. It implements
// realtime.SessionObserver, so all model events land here.
type Call struct {
	ID          string
	CallerID    string
	StartedAt   time.Time
	Whitelisted bool

	gw *Gateway

	dialog  *sipgo.DialogServerSession
	sockets *media.SocketPair
	rtp     *media.Session
	codec   media.Codec

	session  *realtime.Session
	manager  *agent.Manager
	gate     *callGate
	agentCtx *agent.CallContext

	// muted drops assistant audio on the way to the caller. After a beep
	// the mute is lifted when the running response finishes.
	muted               atomic.Bool
	unmuteAfterResponse atomic.Bool

	// toolMu serializes tool execution; the manager is not safe for
	// concurrent use.
	toolMu sync.Mutex

	modelMu   sync.Mutex
	userModel string // model key the caller picked, "" until chosen

	agentsMu   sync.Mutex
	agentsUsed []string

	timerMu   sync.Mutex
	gateTimer *time.Timer

	ended atomic.Bool
}

// onCallerAudio receives decoded caller audio at the SIP leg rate and
// forwards it to the model at its input rate. Called from the RTP read loop.
func (c *Call) onCallerAudio(pcm []byte) {
	if c.session == nil {
		return
	}
	if err := c.session.SendAudio(audio.ToAIInput(pcm)); err != nil {
		c.gw.logger.Debug("dropping caller audio", "call_id", c.ID, "error", err)
	}
}

func (c *Call) recordAgent(name string) {
	c.agentsMu.Lock()
	defer c.agentsMu.Unlock()
	if n := len(c.agentsUsed); n > 0 && c.agentsUsed[n-1] == name {
		return
	}
	c.agentsUsed = append(c.agentsUsed, name)
}

func (c *Call) agentsJSON() string {
	c.agentsMu.Lock()
	defer c.agentsMu.Unlock()
	if len(c.agentsUsed) == 0 {
		return "[]"
	}
	b, err := json.Marshal(c.agentsUsed)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// armGateTimer (re)starts the unlock inactivity timer. A locked call that
// stays silent past the timeout is treated as a failed unlock attempt.
func (c *Call) armGateTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.gateTimer != nil {
		c.gateTimer.Stop()
	}
	c.gateTimer = time.AfterFunc(gateTimeout, func() { c.gw.gateTimedOut(c) })
}

func (c *Call) stopGateTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.gateTimer != nil {
		c.gateTimer.Stop()
		c.gateTimer = nil
	}
}

// SessionObserver implementation. All callbacks run on the model session's
// read pump, except OnClosed which may fire from anywhere.

func (c *Call) OnStateChange(_, next realtime.State) {
	if next == realtime.StateListening && c.unmuteAfterResponse.CompareAndSwap(true, false) {
		c.muted.Store(false)
	}
	c.gw.broadcast.Broadcast(EventAIState, map[string]any{
		"call_id": c.ID,
		"state":   string(next),
	})
}

func (c *Call) OnUserTranscript(text string) {
	if c.agentCtx.Locked() {
		c.armGateTimer()
	} else {
		go c.gw.routeByIntent(c, text)
	}
	c.gw.broadcast.Broadcast(EventTranscript, map[string]any{
		"call_id": c.ID,
		"role":    "caller",
		"text":    text,
		"final":   true,
	})
}

func (c *Call) OnAssistantTranscript(text string, final bool) {
	c.gw.broadcast.Broadcast(EventTranscript, map[string]any{
		"call_id": c.ID,
		"role":    "assistant",
		"text":    text,
		"final":   final,
	})
}

func (c *Call) OnAudio(pcm []byte) {
	if c.muted.Load() || c.rtp == nil {
		return
	}
	if dropped := c.rtp.Enqueue(audio.FromAIOutput(pcm)); dropped > 0 {
		c.gw.logger.Debug("playout overflow", "call_id", c.ID, "dropped_frames", dropped)
	}
}

func (c *Call) OnFunctionCall(name, callID string, args json.RawMessage) {
	c.gw.broadcast.Broadcast(EventFunctionCall, map[string]any{
		"call_id":   c.ID,
		"tool":      name,
		"arguments": json.RawMessage(args),
	})
	go c.gw.runTool(c, name, callID, args)
}

// OnSpeechStarted is the barge-in point: the caller started talking, so any
// assistant audio still queued must not keep playing.
func (c *Call) OnSpeechStarted() {
	if c.rtp == nil {
		return
	}
	if dropped := c.rtp.ClearPlayout(); dropped > 0 {
		c.gw.logger.Debug("barge-in, cleared playout", "call_id", c.ID, "dropped_frames", dropped)
	}
}

func (c *Call) OnUsage(delta realtime.Usage, costDelta float64) {
	usage, cost := c.session.Totals()
	c.gw.broadcast.Broadcast(EventCallCost, map[string]any{
		"call_id":             c.ID,
		"model":               c.session.ModelKey(),
		"input_text_tokens":   usage.InputTextTokens,
		"input_audio_tokens":  usage.InputAudioTokens,
		"output_text_tokens":  usage.OutputTextTokens,
		"output_audio_tokens": usage.OutputAudioTokens,
		"cost_delta_usd":      costDelta,
		"cost_usd":            cost,
	})
	_ = delta
}

func (c *Call) OnClosed(err error) {
	c.gw.logger.Warn("model session lost", "call_id", c.ID, "error", err)
	c.gw.endCall(c, OutcomeError, true)
}
