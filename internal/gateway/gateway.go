// Package gateway orchestrates one phone call end to end: it accepts the
// SIP leg, bridges RTP audio to the realtime model, routes agent tool
// results back onto the call and enforces the caller screening rules.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	sipapi "github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/voicegate/voicegate/internal/agent"
	"github.com/voicegate/voicegate/internal/audio"
	"github.com/voicegate/voicegate/internal/config"
	"github.com/voicegate/voicegate/internal/database"
	"github.com/voicegate/voicegate/internal/database/models"
	"github.com/voicegate/voicegate/internal/media"
	"github.com/voicegate/voicegate/internal/realtime"
	"github.com/voicegate/voicegate/internal/sip"
)

const (
	// greetingDelay gives the SIP leg time to settle before the assistant
	// starts talking into the fresh RTP stream.
	greetingDelay = 200 * time.Millisecond

	// farewellGrace lets the model speak its goodbye before the BYE goes out.
	farewellGrace = 4 * time.Second

	connectTimeout = 10 * time.Second
	dbTimeout      = 5 * time.Second
	toolTimeout    = 30 * time.Second
)

// ErrNoActiveCall is returned by call control methods when no call is up.
var ErrNoActiveCall = errors.New("no active call")

// Call outcomes recorded in the history.
const (
	OutcomeCompleted       = "completed"
	OutcomeError           = "error"
	OutcomeMediaTimeout    = "media_timeout"
	OutcomeSecurityHangup  = "security_hangup"
	OutcomeSecurityTimeout = "security_timeout"
)

// Gateway owns the call lifecycle. It implements sip.CallHandler and feeds
// the metrics collector and the dashboard API.
type Gateway struct {
	cfg       *config.Config
	sipSrv    *sip.Server
	firewall  *sip.TrunkFirewall
	ports     *media.PortPool
	registry  *agent.Registry
	calls     database.CallRepository
	screening database.ScreeningRepository
	broadcast Broadcaster
	logger    *slog.Logger

	mu       sync.Mutex
	reserved bool
	active   *Call

	// Playout stats of finished calls; live calls are added at read time.
	framesDropped atomic.Uint64
	underruns     atomic.Uint64
}

// New wires the gateway. The broadcaster may be nil.
func New(cfg *config.Config, sipSrv *sip.Server, firewall *sip.TrunkFirewall,
	ports *media.PortPool, registry *agent.Registry,
	calls database.CallRepository, screening database.ScreeningRepository,
	b Broadcaster) *Gateway {

	if b == nil {
		b = NopBroadcaster{}
	}
	return &Gateway{
		cfg:       cfg,
		sipSrv:    sipSrv,
		firewall:  firewall,
		ports:     ports,
		registry:  registry,
		calls:     calls,
		screening: screening,
		broadcast: b,
		logger:    slog.Default().With("component", "gateway"),
	}
}

// SetBroadcaster replaces the event sink. Call before the SIP server starts.
func (gw *Gateway) SetBroadcaster(b Broadcaster) {
	if b != nil {
		gw.broadcast = b
	}
}

// OnInvite handles an incoming call: screening, codec negotiation, media
// setup, the 200 OK answer and the model session.
func (gw *Gateway) OnInvite(req *sipapi.Request, tx sipapi.ServerTransaction) {
	caller := req.From().Address.User
	source := req.Source()
	log := gw.logger.With("caller", caller, "source", source)
	log.Info("incoming invite")

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if blocked, err := gw.screening.IsBlacklisted(ctx, caller); err != nil {
		log.Error("blacklist lookup failed", "error", err)
	} else if blocked {
		log.Warn("rejecting blacklisted caller")
		gw.reject(req, tx, sipapi.StatusCode(603), "Decline")
		gw.broadcast.Broadcast(EventCallRejected, map[string]any{
			"caller": caller, "reason": "blacklisted",
		})
		return
	}

	if !gw.firewall.Allow(source, req.From().Address.String()) {
		log.Warn("rejecting invite outside trunk networks")
		gw.reject(req, tx, sipapi.StatusForbidden, "Forbidden")
		gw.broadcast.Broadcast(EventCallRejected, map[string]any{
			"caller": caller, "reason": "firewall",
		})
		return
	}

	if !gw.reserve() {
		log.Info("rejecting invite, line busy")
		gw.reject(req, tx, sipapi.StatusBusyHere, "Busy Here")
		gw.broadcast.Broadcast(EventCallRejected, map[string]any{
			"caller": caller, "reason": "busy",
		})
		return
	}

	gw.broadcast.Broadcast(EventCallIncoming, map[string]any{"caller": caller})

	whitelisted, err := gw.screening.IsWhitelisted(ctx, caller)
	if err != nil {
		log.Error("whitelist lookup failed", "error", err)
	}

	dialog, err := gw.sipSrv.Dialogs().ReadInvite(req, tx)
	if err != nil {
		log.Error("reading invite dialog", "error", err)
		gw.release(nil)
		gw.reject(req, tx, sipapi.StatusBadRequest, "Bad Request")
		return
	}

	if err := dialog.Respond(sipapi.StatusRinging, "Ringing", nil); err != nil {
		log.Warn("sending 180 failed", "error", err)
	}

	codec, remote, err := negotiateMedia(req.Body())
	if err != nil {
		log.Warn("no usable media in offer", "error", err)
		dialog.Respond(sipapi.StatusNotAcceptableHere, "Not Acceptable Here", nil)
		dialog.Close()
		gw.release(nil)
		gw.broadcast.Broadcast(EventCallRejected, map[string]any{
			"caller": caller, "reason": "codec",
		})
		return
	}

	sockets, err := gw.ports.Allocate()
	if err != nil {
		log.Error("rtp port allocation failed", "error", err)
		dialog.Respond(sipapi.StatusServiceUnavailable, "Service Unavailable", nil)
		dialog.Close()
		gw.release(nil)
		return
	}

	c := &Call{
		ID:          uuid.NewString(),
		CallerID:    caller,
		StartedAt:   time.Now().UTC(),
		Whitelisted: whitelisted,
		gw:          gw,
		dialog:      dialog,
		sockets:     sockets,
		codec:       codec,
		gate:        newCallGate(whitelisted),
	}
	c.agentCtx = &agent.CallContext{CallID: c.ID, CallerID: caller, Gate: c.gate}
	c.manager = agent.NewManager(gw.registry, gw.logger)

	rtp, err := media.NewSession(media.SessionConfig{
		CallID:     c.ID,
		Codec:      codec,
		Sockets:    sockets,
		RemoteAddr: remote,
		OnAudio:    c.onCallerAudio,
		OnTimeout:  func() { gw.mediaTimedOut(c) },
		Logger:     gw.logger,
	})
	if err != nil {
		log.Error("creating rtp session", "error", err)
		dialog.Respond(sipapi.StatusInternalServerError, "Server Internal Error", nil)
		dialog.Close()
		gw.ports.Release(sockets)
		gw.release(nil)
		return
	}
	c.rtp = rtp

	answer := media.BuildAnswer(codec, gw.cfg.MediaIP(), sockets.Ports.RTP,
		strconv.FormatInt(time.Now().Unix(), 10))
	err = dialog.Respond(sipapi.StatusOK, "OK", answer.Marshal(),
		sipapi.NewHeader("Content-Type", "application/sdp"))
	if err != nil {
		log.Error("answering invite", "error", err)
		dialog.Close()
		gw.ports.Release(sockets)
		gw.release(nil)
		return
	}

	rtp.Start()
	gw.setActive(c)

	if err := gw.calls.Create(ctx, &models.Call{
		ID:         c.ID,
		CallerID:   caller,
		StartedAt:  c.StartedAt,
		AgentsUsed: "[]",
		Outcome:    "in_progress",
	}); err != nil {
		log.Error("recording call start", "error", err)
	}

	if err := gw.startModelSession(c); err != nil {
		log.Error("starting model session", "error", err)
		gw.endCall(c, OutcomeError, true)
		return
	}

	gw.broadcast.Broadcast(EventCallActive, map[string]any{
		"call_id": c.ID,
		"caller":  caller,
		"agent":   c.manager.Active().Name(),
		"model":   c.session.ModelKey(),
		"codec":   codec.Name,
	})
	log.Info("call established",
		"call_id", c.ID,
		"codec", codec.Name,
		"agent", c.manager.Active().Name(),
		"locked", c.agentCtx.Locked(),
	)

	if c.agentCtx.Locked() {
		c.armGateTimer()
		return
	}
	time.AfterFunc(greetingDelay, func() {
		if !c.ended.Load() {
			c.session.CreateResponse()
		}
	})
}

// startModelSession activates the initial agent and connects the model.
// Locked calls get the security agent in text-only mode; whitelisted callers
// go straight to the central agent.
func (gw *Gateway) startModelSession(c *Call) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	initial := "security"
	if !c.agentCtx.Locked() {
		initial = "central"
	}
	if err := c.manager.Start(ctx, c.agentCtx, initial); err != nil {
		return fmt.Errorf("activating agent %s: %w", initial, err)
	}
	c.recordAgent(initial)

	key := gw.modelKeyFor(c, c.manager.Active())
	c.session = realtime.NewSession(realtime.Config{
		APIKey:       gw.cfg.AIAPIKey,
		Host:         gw.cfg.AIHost,
		ModelKey:     key,
		ModelID:      gw.cfg.ModelID(key),
		Instructions: gw.sessionInstructions(c),
		Tools:        toRealtimeTools(c.manager.Tools()),
		TextOnly:     c.agentCtx.Locked(),
	}, c, gw.logger)

	if err := c.session.Connect(ctx); err != nil {
		return fmt.Errorf("connecting model: %w", err)
	}
	return nil
}

// OnAck confirms the dialog.
func (gw *Gateway) OnAck(req *sipapi.Request, tx sipapi.ServerTransaction) {
	if err := gw.sipSrv.Dialogs().ReadAck(req, tx); err != nil {
		gw.logger.Debug("stray ack", "source", req.Source(), "error", err)
	}
}

// OnBye is the caller hanging up.
func (gw *Gateway) OnBye(req *sipapi.Request, tx sipapi.ServerTransaction) {
	if err := gw.sipSrv.Dialogs().ReadBye(req, tx); err != nil {
		gw.logger.Debug("stray bye", "source", req.Source(), "error", err)
	}
	if c := gw.activeCall(); c != nil {
		gw.logger.Info("caller hung up", "call_id", c.ID)
		gw.endCall(c, OutcomeCompleted, false)
	}
}

// OnCancel aborts a not-yet-answered call. The gateway answers almost
// immediately, so this is a narrow race; the transaction layer sends the 487.
func (gw *Gateway) OnCancel(req *sipapi.Request, tx sipapi.ServerTransaction) {
	gw.logger.Info("invite cancelled", "source", req.Source())
	res := sipapi.NewResponseFromRequest(req, sipapi.StatusOK, "OK", nil)
	if err := tx.Respond(res); err != nil {
		gw.logger.Debug("responding to cancel", "error", err)
	}
}

// runTool executes one model tool call and applies the result to the call.
func (gw *Gateway) runTool(c *Call, name, callID string, args json.RawMessage) {
	c.toolMu.Lock()
	defer c.toolMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	result := c.manager.ExecuteTool(ctx, c.agentCtx, name, args)
	gw.applyToolResult(ctx, c, name, callID, result)
}

func (gw *Gateway) applyToolResult(ctx context.Context, c *Call, name, callID string, result agent.ToolResult) {
	switch v := result.(type) {
	case agent.Text:
		gw.broadcast.Broadcast(EventFunctionResult, map[string]any{
			"call_id": c.ID, "tool": name, "output": v.Message,
		})
		gw.sendFunctionResult(ctx, c, callID, v.Message)

	case agent.SwitchAgent:
		gw.switchAgent(ctx, c, callID, v.Target)

	case agent.Hangup:
		gw.broadcast.Broadcast(EventFunctionResult, map[string]any{
			"call_id": c.ID, "tool": name, "output": "hangup",
		})
		gw.logger.Warn("security hangup", "call_id", c.ID, "caller", c.CallerID)
		gw.endCall(c, OutcomeSecurityHangup, true)

	case agent.HangupUser:
		gw.sendFunctionResult(ctx, c, callID, agent.ModelOutput(v))
		time.AfterFunc(farewellGrace, func() {
			gw.endCall(c, OutcomeCompleted, true)
		})

	case agent.Beep:
		gw.playBeep(c)
		gw.sendFunctionResult(ctx, c, callID, agent.ModelOutput(v))

	case agent.BeepQuiet:
		gw.playBeep(c)
		gw.sendFunctionResultQuiet(c, callID, v.Message)

	case agent.ModelSwitch:
		gw.switchModel(ctx, c, callID, v.Key)

	case agent.ModelSwitched:
		gw.sendFunctionResult(ctx, c, callID, agent.ModelOutput(v))
	}
}

func (gw *Gateway) sendFunctionResult(ctx context.Context, c *Call, callID, output string) {
	if callID == "" {
		return
	}
	if err := c.session.SendFunctionResult(ctx, callID, output); err != nil {
		gw.logger.Warn("sending function result", "call_id", c.ID, "error", err)
	}
}

// sendFunctionResultQuiet delivers a tool output that must not trigger a
// spoken reply, e.g. the wrong-code message while the caller hears the beep.
func (gw *Gateway) sendFunctionResultQuiet(c *Call, callID, output string) {
	if callID == "" {
		return
	}
	if err := c.session.SendFunctionResultQuiet(callID, output); err != nil {
		gw.logger.Warn("sending quiet function result", "call_id", c.ID, "error", err)
	}
}

// playBeep queues the alert tone and mutes assistant audio until the
// current response finishes, so the model cannot talk over it.
func (gw *Gateway) playBeep(c *Call) {
	c.muted.Store(true)
	c.unmuteAfterResponse.Store(true)
	if c.rtp != nil {
		c.rtp.ClearPlayout()
		c.rtp.Enqueue(audio.Beep())
	}
}

// switchAgent hands the call to another agent, unlocking the gate when the
// target is past the security layer. An empty callID means the switch was
// requested from the dashboard rather than by the model.
func (gw *Gateway) switchAgent(ctx context.Context, c *Call, callID, target string) {
	next, err := c.manager.Switch(ctx, c.agentCtx, target)
	if err != nil {
		gw.logger.Warn("agent switch failed", "call_id", c.ID, "target", target, "error", err)
		gw.sendFunctionResult(ctx, c, callID, "Fehler: unbekannter Agent "+target)
		return
	}

	if target != "security" && !c.gate.Unlocked() {
		c.gate.Unlock()
	}
	if c.gate.Unlocked() {
		c.stopGateTimer()
	}
	c.recordAgent(target)

	key := gw.modelKeyFor(c, next)
	switched := false
	if key != c.session.ModelKey() {
		if err := c.session.SwitchModel(ctx, key, gw.cfg.ModelID(key)); err != nil {
			gw.logger.Error("model switch during agent switch failed",
				"call_id", c.ID, "model", key, "error", err)
		} else {
			switched = true
			gw.broadcast.Broadcast(EventModelChanged, map[string]any{
				"call_id": c.ID, "model": key,
			})
		}
	}

	if err := c.session.Update(gw.sessionInstructions(c), toRealtimeTools(c.manager.Tools()), false); err != nil {
		gw.logger.Warn("updating session after agent switch", "call_id", c.ID, "error", err)
	}

	gw.broadcast.Broadcast(EventAgentChanged, map[string]any{
		"call_id": c.ID,
		"agent":   next.Name(),
		"display": next.DisplayName(),
	})
	gw.logger.Info("agent switched", "call_id", c.ID, "agent", target, "model_switched", switched)

	// A reconnect starts a fresh conversation; the old function call item
	// no longer exists there.
	if switched || callID == "" {
		c.session.CreateResponse()
		return
	}
	gw.sendFunctionResult(ctx, c, callID, "Du bist jetzt verbunden mit: "+next.DisplayName())
}

// intentRouteThreshold is the minimum keyword score before an utterance
// pulls the call over to a specialist.
const intentRouteThreshold = 0.3

// routeTargetFor picks the specialist a caller utterance should route to,
// or "" when the call stays with the active agent. Locked calls never route.
// Callers must hold c.toolMu; the manager is read here.
func (gw *Gateway) routeTargetFor(c *Call, text string) string {
	if c.ended.Load() || c.agentCtx.Locked() {
		return ""
	}
	best, score := gw.registry.Match(text)
	if best == nil || score < intentRouteThreshold {
		return ""
	}
	if active := c.manager.Active(); active != nil && active.Name() == best.Name() {
		return ""
	}
	return best.Name()
}

// routeByIntent hands the call to the specialist whose keywords match the
// caller's utterance. Runs off the session read pump so the switch does not
// block transcript delivery.
func (gw *Gateway) routeByIntent(c *Call, text string) {
	c.toolMu.Lock()
	defer c.toolMu.Unlock()

	target := gw.routeTargetFor(c, text)
	if target == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()
	gw.logger.Info("routing call by intent", "call_id", c.ID, "agent", target)
	gw.switchAgent(ctx, c, "", target)
}

// switchModel applies the caller's model choice. The choice sticks for the
// rest of the call except while an agent pins its own model.
func (gw *Gateway) switchModel(ctx context.Context, c *Call, callID, key string) {
	if pinned := c.manager.Active().PinnedModel(); pinned != "" && pinned != key {
		gw.sendFunctionResult(ctx, c, callID,
			"Fehler: dieser Agent benoetigt das "+pinned+"-Modell.")
		return
	}

	c.modelMu.Lock()
	c.userModel = key
	c.modelMu.Unlock()

	if key == c.session.ModelKey() {
		gw.sendFunctionResult(ctx, c, callID, agent.ModelOutput(agent.ModelSwitched{}))
		return
	}
	if err := c.session.SwitchModel(ctx, key, gw.cfg.ModelID(key)); err != nil {
		gw.logger.Error("model switch failed", "call_id", c.ID, "model", key, "error", err)
		gw.sendFunctionResult(ctx, c, callID, "Fehler: Modellwechsel fehlgeschlagen.")
		return
	}
	gw.broadcast.Broadcast(EventModelChanged, map[string]any{
		"call_id": c.ID, "model": key,
	})
	gw.logger.Info("model switched", "call_id", c.ID, "model", key)
	c.session.CreateResponse()
}

// modelKeyFor resolves which model a call should run: the agent's pinned
// model wins, then the caller's sticky choice, then the configured default.
func (gw *Gateway) modelKeyFor(c *Call, a agent.Agent) string {
	if pinned := a.PinnedModel(); pinned != "" {
		return pinned
	}
	c.modelMu.Lock()
	defer c.modelMu.Unlock()
	if c.userModel != "" {
		return c.userModel
	}
	return gw.cfg.DefaultModel
}

// sessionInstructions composes the active agent's instructions with its
// greeting directive.
func (gw *Gateway) sessionInstructions(c *Call) string {
	instr := c.manager.Instructions()
	if g := c.manager.Active().Greeting(); g != "" {
		instr += "\n\nBegruesse den Anrufer zu Beginn mit: \"" + g + "\""
	}
	return instr
}

// mediaTimedOut fires when the caller's RTP stream dropped without a BYE.
func (gw *Gateway) mediaTimedOut(c *Call) {
	if c.ended.Load() {
		return
	}
	gw.logger.Warn("rtp stream lost", "call_id", c.ID, "caller", c.CallerID)
	gw.endCall(c, OutcomeMediaTimeout, true)
}

// gateTimedOut fires when a locked call went silent past the unlock window.
func (gw *Gateway) gateTimedOut(c *Call) {
	if c.gate.Unlocked() || c.ended.Load() {
		return
	}
	gw.logger.Warn("unlock window expired", "call_id", c.ID, "caller", c.CallerID)
	gw.endCall(c, OutcomeSecurityTimeout, true)
}

// endCall tears the call down exactly once: dialog, model session, media,
// screening bookkeeping and the history record.
func (gw *Gateway) endCall(c *Call, outcome string, sendBye bool) {
	if !c.ended.CompareAndSwap(false, true) {
		return
	}
	c.stopGateTimer()

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	c.manager.End(ctx, c.agentCtx)

	if sendBye {
		if err := c.dialog.Bye(ctx); err != nil {
			gw.logger.Debug("sending bye", "call_id", c.ID, "error", err)
		}
	}
	c.dialog.Close()

	var usage realtime.Usage
	var cost float64
	if c.session != nil {
		usage, cost = c.session.Totals()
		c.session.Close()
	}

	if c.rtp != nil {
		c.rtp.Stop()
		dropped, underruns := c.rtp.Stats()
		gw.framesDropped.Add(dropped)
		gw.underruns.Add(underruns)
	}
	gw.ports.Release(c.sockets)

	// Ending a call that never got past the gate counts as a failed unlock.
	autoBlacklisted := false
	if c.agentCtx.Locked() {
		if err := gw.screening.RecordFailedCall(ctx, c.CallerID); err != nil {
			gw.logger.Error("recording failed unlock", "caller", c.CallerID, "error", err)
		} else {
			var err error
			autoBlacklisted, err = gw.screening.CheckAndAutoBlacklist(ctx, c.CallerID)
			if err != nil {
				gw.logger.Error("auto-blacklist check failed", "caller", c.CallerID, "error", err)
			}
		}
	}

	ended := time.Now().UTC()
	duration := int(ended.Sub(c.StartedAt).Seconds())
	if err := gw.calls.Finish(ctx, &models.Call{
		ID:              c.ID,
		CallerID:        c.CallerID,
		StartedAt:       c.StartedAt,
		EndedAt:         &ended,
		DurationSeconds: duration,
		AgentsUsed:      c.agentsJSON(),
		Outcome:         outcome,
		CostUSD:         cost,
	}); err != nil {
		gw.logger.Error("recording call end", "call_id", c.ID, "error", err)
	}

	gw.release(c)

	gw.broadcast.Broadcast(EventCallEnded, map[string]any{
		"call_id":          c.ID,
		"caller":           c.CallerID,
		"outcome":          outcome,
		"duration_seconds": duration,
		"cost_usd":         cost,
	})
	if autoBlacklisted {
		gw.broadcast.Broadcast(EventBlacklistUpdated, map[string]any{
			"caller": c.CallerID, "action": "auto_blacklisted",
		})
	}

	gw.logger.Info("call ended",
		"call_id", c.ID,
		"caller", c.CallerID,
		"outcome", outcome,
		"duration_seconds", duration,
		"cost_usd", cost,
		"input_audio_tokens", usage.InputAudioTokens,
		"output_audio_tokens", usage.OutputAudioTokens,
	)
}

// reject answers a request outside any dialog.
func (gw *Gateway) reject(req *sipapi.Request, tx sipapi.ServerTransaction, code sipapi.StatusCode, reason string) {
	res := sipapi.NewResponseFromRequest(req, code, reason, nil)
	if err := tx.Respond(res); err != nil {
		gw.logger.Error("rejecting invite", "code", int(code), "error", err)
	}
}

// reserve claims the single call slot.
func (gw *Gateway) reserve() bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.reserved {
		return false
	}
	gw.reserved = true
	return true
}

func (gw *Gateway) setActive(c *Call) {
	gw.mu.Lock()
	gw.active = c
	gw.mu.Unlock()
}

// release frees the call slot. Passing nil releases a reservation that never
// became a call.
func (gw *Gateway) release(c *Call) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if c == nil || gw.active == c {
		gw.active = nil
		gw.reserved = false
	}
}

func (gw *Gateway) activeCall() *Call {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.active
}

// negotiateMedia parses the SDP offer and picks codec and remote address.
func negotiateMedia(body []byte) (media.Codec, *net.UDPAddr, error) {
	sd, err := media.ParseSDP(body)
	if err != nil {
		return media.Codec{}, nil, fmt.Errorf("parsing sdp offer: %w", err)
	}
	audioMedia := sd.AudioMedia()
	if audioMedia == nil {
		return media.Codec{}, nil, fmt.Errorf("offer has no audio section")
	}
	codec, err := media.SelectCodec(audioMedia)
	if err != nil {
		return media.Codec{}, nil, err
	}
	addr := sd.ConnectionAddress(audioMedia)
	ip := net.ParseIP(addr)
	if ip == nil {
		return media.Codec{}, nil, fmt.Errorf("offer has no usable connection address %q", addr)
	}
	return codec, &net.UDPAddr{IP: ip, Port: audioMedia.Port}, nil
}

// toRealtimeTools converts agent tool definitions to the wire form.
func toRealtimeTools(defs []agent.ToolDef) []realtime.Tool {
	tools := make([]realtime.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, realtime.Tool{
			Type:        "function",
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return tools
}
