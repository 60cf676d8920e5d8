package gateway

// Broadcaster pushes typed events to dashboard clients. The API layer's
// WebSocket hub implements it.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Event names sent to the dashboard.
const (
	EventStatus           = "status"
	EventCallIncoming     = "call_incoming"
	EventCallActive       = "call_active"
	EventCallRejected     = "call_rejected"
	EventCallEnded        = "call_ended"
	EventTranscript       = "transcript"
	EventFunctionCall     = "function_call"
	EventFunctionResult   = "function_result"
	EventAgentChanged     = "agent_changed"
	EventModelChanged     = "model_changed"
	EventAIState          = "ai_state"
	EventCallCost         = "call_cost"
	EventFirewallStatus   = "firewall_status"
	EventBlacklistUpdated = "blacklist_updated"
	EventWhitelistUpdated = "whitelist_updated"
)

// NopBroadcaster discards all events. Used when no dashboard is attached.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(string, any) {}
