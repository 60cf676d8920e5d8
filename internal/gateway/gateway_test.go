package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/voicegate/voicegate/internal/agent"
	"github.com/voicegate/voicegate/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const pcmaOffer = "v=0\r\n" +
	"o=caller 123 456 IN IP4 192.168.1.20\r\n" +
	"s=call\r\n" +
	"c=IN IP4 192.168.1.20\r\n" +
	"t=0 0\r\n" +
	"m=audio 5004 RTP/AVP 8 0\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n"

func TestNegotiateMedia(t *testing.T) {
	codec, remote, err := negotiateMedia([]byte(pcmaOffer))
	if err != nil {
		t.Fatalf("negotiateMedia: %v", err)
	}
	if codec.Name != "PCMA" {
		t.Errorf("codec = %s, want PCMA", codec.Name)
	}
	if remote.IP.String() != "192.168.1.20" || remote.Port != 5004 {
		t.Errorf("remote = %v, want 192.168.1.20:5004", remote)
	}
}

func TestNegotiateMediaPrefersOpus(t *testing.T) {
	offer := "v=0\r\n" +
		"o=caller 1 1 IN IP4 10.0.0.2\r\n" +
		"s=call\r\n" +
		"c=IN IP4 10.0.0.2\r\n" +
		"t=0 0\r\n" +
		"m=audio 6000 RTP/AVP 111 8\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"a=rtpmap:8 PCMA/8000\r\n"
	codec, _, err := negotiateMedia([]byte(offer))
	if err != nil {
		t.Fatalf("negotiateMedia: %v", err)
	}
	if !codec.IsOpus() {
		t.Errorf("codec = %s, want opus", codec.Name)
	}
}

func TestNegotiateMediaErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"no audio section", "v=0\r\no=a 1 1 IN IP4 1.2.3.4\r\ns=x\r\nc=IN IP4 1.2.3.4\r\nt=0 0\r\nm=video 5000 RTP/AVP 96\r\n"},
		{"no supported codec", "v=0\r\no=a 1 1 IN IP4 1.2.3.4\r\ns=x\r\nc=IN IP4 1.2.3.4\r\nt=0 0\r\nm=audio 5000 RTP/AVP 96\r\na=rtpmap:96 speex/16000\r\n"},
		{"no connection address", "v=0\r\no=a 1 1 IN IP4 1.2.3.4\r\ns=x\r\nt=0 0\r\nm=audio 5000 RTP/AVP 8\r\na=rtpmap:8 PCMA/8000\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := negotiateMedia([]byte(tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestToRealtimeTools(t *testing.T) {
	defs := []agent.ToolDef{
		{Name: "a", Description: "d", Parameters: json.RawMessage(`{"type":"object"}`)},
		{Name: "b"},
	}
	tools := toRealtimeTools(defs)
	if len(tools) != 2 {
		t.Fatalf("len = %d, want 2", len(tools))
	}
	for i, tool := range tools {
		if tool.Type != "function" {
			t.Errorf("tool %d type = %q, want function", i, tool.Type)
		}
	}
	if tools[0].Name != "a" || tools[1].Name != "b" {
		t.Errorf("names = %s, %s", tools[0].Name, tools[1].Name)
	}
}

func TestReserveSingleSlot(t *testing.T) {
	gw := &Gateway{}
	if !gw.reserve() {
		t.Fatal("first reserve should succeed")
	}
	if gw.reserve() {
		t.Fatal("second reserve should fail while slot is held")
	}
	gw.release(nil)
	if !gw.reserve() {
		t.Fatal("reserve after release should succeed")
	}
}

func TestReserveConcurrent(t *testing.T) {
	gw := &Gateway{}
	var wg sync.WaitGroup
	wins := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gw.reserve() {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("%d goroutines reserved the slot, want 1", n)
	}
}

func TestReleaseIgnoresStaleCall(t *testing.T) {
	gw := &Gateway{}
	gw.reserve()
	current := &Call{ID: "current"}
	gw.setActive(current)

	gw.release(&Call{ID: "stale"})
	if gw.activeCall() != current {
		t.Fatal("releasing a stale call must not clear the active one")
	}

	gw.release(current)
	if gw.activeCall() != nil {
		t.Fatal("active call not cleared")
	}
}

func TestRecordAgentDeduplicatesRuns(t *testing.T) {
	c := &Call{}
	c.recordAgent("security")
	c.recordAgent("security")
	c.recordAgent("central")
	c.recordAgent("ideas")
	c.recordAgent("ideas")

	got := c.agentsJSON()
	want := `["security","central","ideas"]`
	if got != want {
		t.Errorf("agentsJSON = %s, want %s", got, want)
	}
}

func TestAgentsJSONEmpty(t *testing.T) {
	c := &Call{}
	if got := c.agentsJSON(); got != "[]" {
		t.Errorf("agentsJSON = %s, want []", got)
	}
}

type pinnedAgent struct {
	agent.BaseAgent
}

func (p *pinnedAgent) Instructions() string { return "x" }
func (p *pinnedAgent) Tools() []agent.ToolDef {
	return nil
}
func (p *pinnedAgent) ExecuteTool(context.Context, *agent.CallContext, string, json.RawMessage) (agent.ToolResult, error) {
	return agent.Text{Message: "ok"}, nil
}

func TestModelKeyResolution(t *testing.T) {
	gw := &Gateway{cfg: &config.Config{DefaultModel: "mini"}}

	free := &pinnedAgent{agent.BaseAgent{AgentName: "free"}}
	pinned := &pinnedAgent{agent.BaseAgent{AgentName: "pinned", AgentModel: "premium"}}

	c := &Call{}
	if got := gw.modelKeyFor(c, free); got != "mini" {
		t.Errorf("default key = %s, want mini", got)
	}

	c.userModel = "premium"
	if got := gw.modelKeyFor(c, free); got != "premium" {
		t.Errorf("user choice key = %s, want premium", got)
	}

	c.userModel = "mini"
	if got := gw.modelKeyFor(c, pinned); got != "premium" {
		t.Errorf("pinned key = %s, want premium", got)
	}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingBroadcaster) Broadcast(event string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingBroadcaster) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestNopBroadcasterDefault(t *testing.T) {
	gw := New(&config.Config{DefaultModel: "mini"}, nil, nil, nil, nil, nil, nil, nil)
	if gw.broadcast == nil {
		t.Fatal("broadcast sink must never be nil")
	}
	// Must not panic.
	gw.broadcast.Broadcast(EventStatus, nil)

	rec := &recordingBroadcaster{}
	gw.SetBroadcaster(rec)
	gw.broadcast.Broadcast(EventCallIncoming, nil)
	if !rec.has(EventCallIncoming) {
		t.Error("replaced broadcaster not used")
	}
}

func TestControlWithoutActiveCall(t *testing.T) {
	gw := New(&config.Config{DefaultModel: "mini"}, nil, nil, nil, nil, nil, nil, nil)

	if _, ok := gw.ActiveCallInfo(); ok {
		t.Error("ActiveCallInfo reported a call")
	}
	if err := gw.HangupActive(); err != ErrNoActiveCall {
		t.Errorf("HangupActive err = %v, want ErrNoActiveCall", err)
	}
	if err := gw.SetAIMuted(true); err != ErrNoActiveCall {
		t.Errorf("SetAIMuted err = %v, want ErrNoActiveCall", err)
	}
	if err := gw.SwitchActiveAgent("central"); err != ErrNoActiveCall {
		t.Errorf("SwitchActiveAgent err = %v, want ErrNoActiveCall", err)
	}
	if gw.ActiveCallCount() != 0 || gw.ActiveSessionCount() != 0 {
		t.Error("counters nonzero without a call")
	}
}

func TestRouteTargetFollowsIntent(t *testing.T) {
	reg := agent.NewRegistry()
	for _, a := range []*pinnedAgent{
		{agent.BaseAgent{AgentName: "central"}},
		{agent.BaseAgent{AgentName: "ideas", AgentKeywords: []string{"idee", "einfall"}}},
		{agent.BaseAgent{AgentName: "code", AgentKeywords: []string{"code", "programmieren"}}},
	} {
		if err := reg.Register(a); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	gw := &Gateway{cfg: &config.Config{DefaultModel: "mini"}, registry: reg}

	newCall := func(locked bool) *Call {
		c := &Call{gw: gw, manager: agent.NewManager(reg, discardLogger())}
		c.gate = newCallGate(!locked)
		c.agentCtx = &agent.CallContext{CallID: "t", Gate: c.gate}
		if err := c.manager.Start(context.Background(), c.agentCtx, "central"); err != nil {
			t.Fatalf("Start: %v", err)
		}
		return c
	}

	c := newCall(false)
	if got := gw.routeTargetFor(c, "ich habe eine Idee fuer ein Projekt"); got != "ideas" {
		t.Errorf("target = %q, want ideas", got)
	}
	if got := gw.routeTargetFor(c, "wie ist das Wetter heute"); got != "" {
		t.Errorf("target = %q for unmatched utterance, want none", got)
	}

	// The active specialist keeps the call for its own topics.
	if _, err := c.manager.Switch(context.Background(), c.agentCtx, "ideas"); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if got := gw.routeTargetFor(c, "noch eine Idee dazu"); got != "" {
		t.Errorf("target = %q while ideas is active, want none", got)
	}
	if got := gw.routeTargetFor(c, "da ist ein Fehler im Code"); got != "code" {
		t.Errorf("target = %q, want code", got)
	}

	// Locked calls stay behind the gate no matter what the caller says.
	locked := newCall(true)
	if got := gw.routeTargetFor(locked, "ich habe eine Idee"); got != "" {
		t.Errorf("target = %q for locked call, want none", got)
	}
}

func TestSessionInstructionsIncludeGreeting(t *testing.T) {
	gw := &Gateway{cfg: &config.Config{DefaultModel: "mini"}}

	reg := agent.NewRegistry()
	a := &pinnedAgent{agent.BaseAgent{
		AgentName:     "central",
		AgentGreeting: "Hallo, Sie sind in der Zentrale.",
	}}
	if err := reg.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}

	c := &Call{manager: agent.NewManager(reg, discardLogger())}
	c.agentCtx = &agent.CallContext{CallID: "t", Gate: newCallGate(true)}
	if err := c.manager.Start(context.Background(), c.agentCtx, "central"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	instr := gw.sessionInstructions(c)
	if !strings.Contains(instr, "Hallo, Sie sind in der Zentrale.") {
		t.Errorf("instructions missing greeting: %q", instr)
	}
}
