package gateway

import (
	"context"
	"time"
)

// CallInfo is the dashboard snapshot of the active call.
type CallInfo struct {
	ID              string    `json:"id"`
	CallerID        string    `json:"caller_id"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int       `json:"duration_seconds"`
	Agent           string    `json:"agent"`
	Model           string    `json:"model"`
	State           string    `json:"state"`
	Codec           string    `json:"codec"`
	Unlocked        bool      `json:"unlocked"`
	Muted           bool      `json:"muted"`
	CostUSD         float64   `json:"cost_usd"`
}

// ActiveCallInfo returns a snapshot of the running call, if any.
func (gw *Gateway) ActiveCallInfo() (CallInfo, bool) {
	c := gw.activeCall()
	if c == nil {
		return CallInfo{}, false
	}
	_, cost := c.session.Totals()
	return CallInfo{
		ID:              c.ID,
		CallerID:        c.CallerID,
		StartedAt:       c.StartedAt,
		DurationSeconds: int(time.Since(c.StartedAt).Seconds()),
		Agent:           c.manager.Active().Name(),
		Model:           c.session.ModelKey(),
		State:           string(c.session.State()),
		Codec:           c.codec.Name,
		Unlocked:        c.gate.Unlocked(),
		Muted:           c.muted.Load(),
		CostUSD:         cost,
	}, true
}

// HangupActive terminates the running call from the dashboard.
func (gw *Gateway) HangupActive() error {
	c := gw.activeCall()
	if c == nil {
		return ErrNoActiveCall
	}
	gw.logger.Info("hangup requested via api", "call_id", c.ID)
	gw.endCall(c, OutcomeCompleted, true)
	return nil
}

// SetAIMuted toggles assistant audio towards the caller. A manual mute is
// not lifted by the response lifecycle.
func (gw *Gateway) SetAIMuted(muted bool) error {
	c := gw.activeCall()
	if c == nil {
		return ErrNoActiveCall
	}
	c.unmuteAfterResponse.Store(false)
	c.muted.Store(muted)
	if muted && c.rtp != nil {
		c.rtp.ClearPlayout()
	}
	gw.logger.Info("ai mute changed via api", "call_id", c.ID, "muted", muted)
	return nil
}

// SwitchActiveAgent hands the running call to another agent from the
// dashboard. The security agent cannot be targeted this way.
func (gw *Gateway) SwitchActiveAgent(target string) error {
	c := gw.activeCall()
	if c == nil {
		return ErrNoActiveCall
	}

	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	c.toolMu.Lock()
	defer c.toolMu.Unlock()
	gw.switchAgent(ctx, c, "", target)
	return nil
}

// Metrics providers.

// ActiveCallCount reports the number of running calls (0 or 1).
func (gw *Gateway) ActiveCallCount() int {
	if gw.activeCall() != nil {
		return 1
	}
	return 0
}

// ActiveSessionCount reports running RTP sessions.
func (gw *Gateway) ActiveSessionCount() int {
	c := gw.activeCall()
	if c != nil && c.rtp != nil {
		return 1
	}
	return 0
}

// AggregateFramesDropped sums playout drops over finished and live calls.
func (gw *Gateway) AggregateFramesDropped() uint64 {
	total := gw.framesDropped.Load()
	if c := gw.activeCall(); c != nil && c.rtp != nil {
		d, _ := c.rtp.Stats()
		total += d
	}
	return total
}

// AggregateUnderruns sums playout underruns over finished and live calls.
func (gw *Gateway) AggregateUnderruns() uint64 {
	total := gw.underruns.Load()
	if c := gw.activeCall(); c != nil && c.rtp != nil {
		_, u := c.rtp.Stats()
		total += u
	}
	return total
}
