package agents

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/voicegate/voicegate/internal/agent"
)

type fakeGate struct {
	unlocked bool
	strikes  int
	max      int
}

func (g *fakeGate) Unlocked() bool { return g.unlocked }
func (g *fakeGate) Unlock()        { g.unlocked = true }
func (g *fakeGate) RegisterFailure() int {
	g.strikes++
	return g.strikes
}
func (g *fakeGate) MaxStrikes() int { return g.max }

func unlockArgs(code string) json.RawMessage {
	args, _ := json.Marshal(map[string]string{"code": code})
	return args
}

func TestSecurityAgentCorrectCode(t *testing.T) {
	a := NewSecurityAgent("7234")
	gate := &fakeGate{max: 3}
	call := &agent.CallContext{CallID: "c1", CallerID: "+49151", Gate: gate}

	res, err := a.ExecuteTool(context.Background(), call, "unlock", unlockArgs("7234"))
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	sw, ok := res.(agent.SwitchAgent)
	if !ok || sw.Target != "central" {
		t.Errorf("result = %#v, want switch to central", res)
	}
	if !gate.unlocked {
		t.Error("gate should be unlocked")
	}
	if gate.strikes != 0 {
		t.Errorf("strikes = %d, want 0", gate.strikes)
	}
}

func TestSecurityAgentWrongCode(t *testing.T) {
	a := NewSecurityAgent("7234")
	gate := &fakeGate{max: 3}
	call := &agent.CallContext{CallID: "c1", Gate: gate}

	for attempt := 1; attempt <= 2; attempt++ {
		res, err := a.ExecuteTool(context.Background(), call, "unlock", unlockArgs("0000"))
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		bq, ok := res.(agent.BeepQuiet)
		if !ok {
			t.Fatalf("attempt %d: result = %#v, want BeepQuiet", attempt, res)
		}
		if !strings.Contains(bq.Message, "Falscher Code") {
			t.Errorf("message = %q", bq.Message)
		}
	}

	res, err := a.ExecuteTool(context.Background(), call, "unlock", unlockArgs("1111"))
	if err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	if _, ok := res.(agent.Hangup); !ok {
		t.Errorf("third strike = %#v, want Hangup", res)
	}
	if gate.unlocked {
		t.Error("gate must stay locked")
	}
}

func TestSecurityAgentSpokenCodeUnlocks(t *testing.T) {
	a := NewSecurityAgent("7234")

	// Transcribed speech arrives in all sorts of shapes; only digits count.
	for _, code := range []string{"7 2 3 4", "72-34", "sieben 7234", "7.2.3.4"} {
		gate := &fakeGate{max: 3}
		call := &agent.CallContext{CallID: "c1", Gate: gate}

		res, err := a.ExecuteTool(context.Background(), call, "unlock", unlockArgs(code))
		if err != nil {
			t.Fatalf("code %q: %v", code, err)
		}
		sw, ok := res.(agent.SwitchAgent)
		if !ok || sw.Target != "central" {
			t.Errorf("code %q: result = %#v, want switch to central", code, res)
		}
		if !gate.unlocked {
			t.Errorf("code %q: gate should be unlocked", code)
		}
	}
}

func TestSecurityAgentEmptyCodeIsNoStrike(t *testing.T) {
	a := NewSecurityAgent("7234")
	gate := &fakeGate{max: 3}
	call := &agent.CallContext{CallID: "c1", Gate: gate}

	// Empty and digit-free codes are transcription noise, not attempts.
	for _, args := range []json.RawMessage{
		json.RawMessage(`{}`),
		unlockArgs(""),
		unlockArgs("aehm"),
	} {
		res, err := a.ExecuteTool(context.Background(), call, "unlock", args)
		if err != nil {
			t.Fatalf("ExecuteTool(%s): %v", args, err)
		}
		if _, ok := res.(agent.BeepQuiet); !ok {
			t.Errorf("args %s: result = %#v, want BeepQuiet", args, res)
		}
	}
	if gate.strikes != 0 {
		t.Errorf("strikes = %d, want 0", gate.strikes)
	}
	if gate.unlocked {
		t.Error("gate must stay locked")
	}
}

func TestSecurityAgentInstructionsNeverContainCode(t *testing.T) {
	code := "98761"
	a := NewSecurityAgent(code)
	if strings.Contains(a.Instructions(), code) {
		t.Error("instructions leak the access code")
	}
	if strings.Contains(a.Greeting(), code) {
		t.Error("greeting leaks the access code")
	}
	for _, tool := range a.Tools() {
		if strings.Contains(tool.Description, code) || strings.Contains(string(tool.Parameters), code) {
			t.Errorf("tool %s leaks the access code", tool.Name)
		}
	}
}

func TestSecurityAgentUnknownTool(t *testing.T) {
	a := NewSecurityAgent("7234")
	call := &agent.CallContext{Gate: &fakeGate{max: 3}}
	if _, err := a.ExecuteTool(context.Background(), call, "other", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}
