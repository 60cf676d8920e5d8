package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voicegate/voicegate/internal/agent"
)

// CentralAgent is the dispatcher callers reach after unlocking. It knows
// the registered specialists and hands the call over on request.
type CentralAgent struct {
	agent.BaseAgent
	registry *agent.Registry
}

// NewCentralAgent creates the dispatcher. It needs the registry to
// enumerate the specialists it can switch to.
func NewCentralAgent(registry *agent.Registry) *CentralAgent {
	return &CentralAgent{
		BaseAgent: agent.BaseAgent{
			AgentName:        "central",
			AgentDisplayName: "Zentrale",
			AgentDescription: "Vermittelt Anrufer an den passenden Spezialisten.",
			AgentGreeting:    "Hallo, Sie sind in der Zentrale.",
		},
		registry: registry,
	}
}

func (a *CentralAgent) Instructions() string {
	var b strings.Builder
	b.WriteString("Du bist die Zentrale einer Telefonanlage. Begruesse den Anrufer kurz, ")
	b.WriteString("finde heraus was er moechte und verbinde ihn mit dem passenden ")
	b.WriteString("Spezialisten ueber das Werkzeug wechsel_zu_agent. Mit zeige_optionen ")
	b.WriteString("kannst du die verfuegbaren Spezialisten aufzaehlen. Sprich nur Deutsch ")
	b.WriteString("und halte dich kurz.\n\nVerfuegbare Spezialisten:\n")
	for _, s := range a.registry.Specialists() {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name(), s.Description())
	}
	return b.String()
}

func (a *CentralAgent) Tools() []agent.ToolDef {
	names := make([]string, 0)
	for _, s := range a.registry.Specialists() {
		names = append(names, `"`+s.Name()+`"`)
	}
	enum := "[" + strings.Join(names, ",") + "]"
	return []agent.ToolDef{
		{
			Name:        "wechsel_zu_agent",
			Description: "Verbindet den Anrufer mit einem Spezialisten.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"agent":{"type":"string","enum":` + enum + `}},"required":["agent"]}`),
		},
		{
			Name:        "zeige_optionen",
			Description: "Zaehlt die verfuegbaren Spezialisten auf.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func (a *CentralAgent) ExecuteTool(ctx context.Context, call *agent.CallContext, name string, args json.RawMessage) (agent.ToolResult, error) {
	switch name {
	case "wechsel_zu_agent":
		var params struct {
			Agent string `json:"agent"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("ungueltige Argumente: %w", err)
		}
		if _, ok := a.registry.Get(params.Agent); !ok || params.Agent == "security" {
			return agent.Text{Message: fmt.Sprintf("Fehler: Agent %q ist nicht verfuegbar.", params.Agent)}, nil
		}
		return agent.SwitchAgent{Target: params.Agent}, nil

	case "zeige_optionen":
		specialists := a.registry.Specialists()
		if len(specialists) == 0 {
			return agent.Text{Message: "Derzeit sind keine Spezialisten verfuegbar."}, nil
		}
		var b strings.Builder
		b.WriteString("Verfuegbare Spezialisten: ")
		for i, s := range specialists {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s (%s)", s.DisplayName(), s.Description())
		}
		return agent.Text{Message: b.String()}, nil

	default:
		return nil, fmt.Errorf("unbekanntes Werkzeug %q", name)
	}
}
