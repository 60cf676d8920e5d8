package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// German error strings the model receives when tool execution is refused
// or fails.
const (
	msgLocked = "Fehler: Anruf nicht freigeschaltet. Bitte zuerst den Zugangs-Code eingeben."
)

// Global tools available with every agent.
const (
	ToolHangup      = "auflegen"
	ToolModelSwitch = "model_wechseln"
)

var globalTools = []ToolDef{
	{
		Name:        ToolHangup,
		Description: "Beendet den Anruf, wenn der Anrufer sich verabschiedet oder auflegen moechte.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	},
	{
		Name:        ToolModelSwitch,
		Description: "Wechselt das Sprachmodell. 'mini' ist schnell und guenstig, 'premium' ist gruendlicher.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"modell":{"type":"string","enum":["mini","premium"]}},"required":["modell"]}`),
	},
}

// Manager owns the active agent of one call and routes tool execution.
// Not safe for concurrent use; the gateway serializes calls into it.
type Manager struct {
	registry *Registry
	log      *slog.Logger
	active   Agent
}

// NewManager creates a manager for one call.
func NewManager(registry *Registry, log *slog.Logger) *Manager {
	return &Manager{
		registry: registry,
		log:      log.With("component", "agent"),
	}
}

// Active returns the current agent, nil before Start.
func (m *Manager) Active() Agent {
	return m.active
}

// Start activates the initial agent for the call.
func (m *Manager) Start(ctx context.Context, call *CallContext, name string) error {
	a, ok := m.registry.Get(name)
	if !ok {
		return fmt.Errorf("unknown agent %q", name)
	}
	m.active = a
	if err := a.OnActivated(ctx, call); err != nil {
		m.log.Warn("agent activation hook failed", "agent", name, "error", err)
	}
	if err := a.OnCallStart(ctx, call); err != nil {
		m.log.Warn("agent call-start hook failed", "agent", name, "error", err)
	}
	m.log.Info("agent active", "agent", name, "call_id", call.CallID)
	return nil
}

// Switch hands the call to another agent. Switching to the already active
// agent is a no-op.
func (m *Manager) Switch(ctx context.Context, call *CallContext, target string) (Agent, error) {
	next, ok := m.registry.Get(target)
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", target)
	}
	if m.active != nil && m.active.Name() == target {
		return m.active, nil
	}

	if m.active != nil {
		if err := m.active.OnDeactivated(ctx, call); err != nil {
			m.log.Warn("agent deactivation hook failed", "agent", m.active.Name(), "error", err)
		}
	}
	m.active = next
	if err := next.OnActivated(ctx, call); err != nil {
		m.log.Warn("agent activation hook failed", "agent", target, "error", err)
	}
	if err := next.OnCallStart(ctx, call); err != nil {
		m.log.Warn("agent call-start hook failed", "agent", target, "error", err)
	}
	m.log.Info("agent switched", "agent", target, "call_id", call.CallID)
	return next, nil
}

// End runs the active agent's call-end hook.
func (m *Manager) End(ctx context.Context, call *CallContext) {
	if m.active == nil {
		return
	}
	if err := m.active.OnCallEnd(ctx, call); err != nil {
		m.log.Warn("agent call-end hook failed", "agent", m.active.Name(), "error", err)
	}
}

// Tools returns the active agent's tools plus the global ones. The model
// switch tool is withheld while the active agent pins a model.
func (m *Manager) Tools() []ToolDef {
	var out []ToolDef
	if m.active != nil {
		out = append(out, m.active.Tools()...)
	}
	for _, t := range globalTools {
		if t.Name == ToolModelSwitch && m.active != nil && m.active.PinnedModel() != "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Instructions returns the active agent's instructions.
func (m *Manager) Instructions() string {
	if m.active == nil {
		return ""
	}
	return m.active.Instructions()
}

// ExecuteTool runs a tool call: global tools first, then the active agent.
// While the gate is closed only the security agent's tools and auflegen are
// allowed. Agent errors come back to the model as German text rather than
// failing the call.
func (m *Manager) ExecuteTool(ctx context.Context, call *CallContext, name string, args json.RawMessage) ToolResult {
	switch name {
	case ToolHangup:
		return HangupUser{}
	case ToolModelSwitch:
		var params struct {
			Modell string `json:"modell"`
		}
		if err := json.Unmarshal(args, &params); err != nil || (params.Modell != "mini" && params.Modell != "premium") {
			return Text{Message: "Fehler: unbekanntes Modell. Verfuegbar sind mini und premium."}
		}
		return ModelSwitch{Key: params.Modell}
	}

	if m.active == nil {
		return Text{Message: fmt.Sprintf("Fehler bei %s: kein Agent aktiv", name)}
	}
	if call.Locked() && m.active.Name() != "security" {
		return Text{Message: msgLocked}
	}

	result, err := m.active.ExecuteTool(ctx, call, name, args)
	if err != nil {
		m.log.Error("tool failed", "agent", m.active.Name(), "tool", name, "error", err)
		return Text{Message: fmt.Sprintf("Fehler bei %s: %v", name, err)}
	}
	return result
}
