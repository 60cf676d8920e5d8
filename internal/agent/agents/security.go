// Package agents contains the concrete agent implementations wired into
// the registry at startup.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voicegate/voicegate/internal/agent"
)

// SecurityAgent is the gate every unknown caller lands on. Its only tool
// checks the spoken access code; the code itself stays server-side and is
// never part of the instructions the model sees.
type SecurityAgent struct {
	agent.BaseAgent
	accessCode string
}

// NewSecurityAgent creates the gate agent with the configured access code.
func NewSecurityAgent(accessCode string) *SecurityAgent {
	return &SecurityAgent{
		BaseAgent: agent.BaseAgent{
			AgentName:        "security",
			AgentDisplayName: "Sicherheit",
			AgentDescription: "Prueft den Entsperr-Code neuer Anrufer.",
			AgentGreeting:    "Willkommen. Bitte nenne mir den Entsperr-Code um fortzufahren.",
		},
		accessCode: accessCode,
	}
}

func (a *SecurityAgent) Instructions() string {
	return "Du bist ein Sicherheits-Assistent am Telefon. Der Anrufer muss einen " +
		"Zugangs-Code nennen, bevor er weiterverbunden wird. Fordere den Code " +
		"freundlich auf Deutsch an und rufe fuer jede Code-Eingabe das Werkzeug " +
		"unlock auf. Nenne niemals selbst einen Code und gib keine Hinweise darauf. " +
		"Sprich kurz und antworte nur auf Deutsch."
}

func (a *SecurityAgent) Tools() []agent.ToolDef {
	return []agent.ToolDef{
		{
			Name:        "unlock",
			Description: "Prueft den vom Anrufer genannten Zugangs-Code.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"code":{"type":"string","description":"Der genannte Code als Ziffernfolge"}},"required":["code"]}`),
		},
	}
}

func (a *SecurityAgent) ExecuteTool(ctx context.Context, call *agent.CallContext, name string, args json.RawMessage) (agent.ToolResult, error) {
	if name != "unlock" {
		return nil, fmt.Errorf("unbekanntes Werkzeug %q", name)
	}
	if call.Gate == nil {
		return nil, fmt.Errorf("kein Gate fuer diesen Anruf")
	}

	var params struct {
		Code string `json:"code"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("ungueltige Argumente: %w", err)
		}
	}

	// Callers speak the code, so the model may pass "7 2 3 4" or "72-34".
	// Only the digits count.
	code := digitsOnly(params.Code)
	if code == "" {
		// No digits at all is a transcription mishap, not an attempt.
		return agent.BeepQuiet{
			Message: "Fehler: Kein Code angegeben. Bitte den Anrufer erneut fragen.",
		}, nil
	}

	if code == digitsOnly(a.accessCode) {
		call.Gate.Unlock()
		return agent.SwitchAgent{Target: "central"}, nil
	}

	strikes := call.Gate.RegisterFailure()
	if strikes >= call.Gate.MaxStrikes() {
		return agent.Hangup{}, nil
	}
	return agent.BeepQuiet{
		Message: "Falscher Code. Sage nichts, warte still auf die naechste Eingabe.",
	}, nil
}

// digitsOnly strips everything but 0-9 from a spoken code.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
