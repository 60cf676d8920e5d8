// Package agent defines the pluggable conversation agents: the interface
// they implement, the result values their tools produce and the per-call
// manager that routes tool execution.
package agent

import (
	"context"
	"encoding/json"
	"strings"
)

// ToolDef describes one function the model may call while an agent is
// active. Parameters is a JSON schema object.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Gate is the per-call unlock state the security agent operates on.
type Gate interface {
	Unlocked() bool
	Unlock()
	// RegisterFailure counts a wrong code attempt and returns the new
	// strike count.
	RegisterFailure() int
	MaxStrikes() int
}

// CallContext is the slice of per-call state passed into agent hooks and
// tool execution.
type CallContext struct {
	CallID   string
	CallerID string
	Gate     Gate
}

// Locked reports whether the call still sits behind the security gate.
func (c *CallContext) Locked() bool {
	return c.Gate != nil && !c.Gate.Unlocked()
}

// Agent is one conversational persona with its own instructions and tools.
type Agent interface {
	Name() string
	DisplayName() string
	Description() string
	Capabilities() []string
	Keywords() []string

	Instructions() string
	Greeting() string
	Tools() []ToolDef

	// PinnedModel returns a model key the agent insists on, or "" when the
	// caller's choice applies.
	PinnedModel() string

	ExecuteTool(ctx context.Context, call *CallContext, name string, args json.RawMessage) (ToolResult, error)

	OnCallStart(ctx context.Context, call *CallContext) error
	OnCallEnd(ctx context.Context, call *CallContext) error
	OnActivated(ctx context.Context, call *CallContext) error
	OnDeactivated(ctx context.Context, call *CallContext) error

	// MatchesIntent scores how well a caller utterance fits this agent,
	// 0.0 to 1.0.
	MatchesIntent(text string) float64
}

// BaseAgent carries the descriptive fields and no-op lifecycle hooks that
// most agents share. Concrete agents embed it and override what they need.
type BaseAgent struct {
	AgentName        string
	AgentDisplayName string
	AgentDescription string
	AgentGreeting    string
	AgentModel       string
	AgentCaps        []string
	AgentKeywords    []string
}

func (b *BaseAgent) Name() string           { return b.AgentName }
func (b *BaseAgent) DisplayName() string    { return b.AgentDisplayName }
func (b *BaseAgent) Description() string    { return b.AgentDescription }
func (b *BaseAgent) Greeting() string       { return b.AgentGreeting }
func (b *BaseAgent) PinnedModel() string    { return b.AgentModel }
func (b *BaseAgent) Capabilities() []string { return b.AgentCaps }
func (b *BaseAgent) Keywords() []string     { return b.AgentKeywords }

func (b *BaseAgent) OnCallStart(context.Context, *CallContext) error   { return nil }
func (b *BaseAgent) OnCallEnd(context.Context, *CallContext) error     { return nil }
func (b *BaseAgent) OnActivated(context.Context, *CallContext) error   { return nil }
func (b *BaseAgent) OnDeactivated(context.Context, *CallContext) error { return nil }

// MatchesIntent scores 0.3 per keyword hit, capped at 1.0.
func (b *BaseAgent) MatchesIntent(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, kw := range b.AgentKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			score += 0.3
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
