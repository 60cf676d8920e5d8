package realtime

// State describes where the conversation currently is.
type State string

const (
	StateIdle         State = "idle"
	StateListening    State = "listening"
	StateUserSpeaking State = "user_speaking"
	StateThinking     State = "thinking"
	StateSpeaking     State = "speaking"
)
