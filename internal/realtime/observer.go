package realtime

import "encoding/json"

// SessionObserver receives the conversation events a session produces. All
// methods are called from the session's read pump, one at a time.
type SessionObserver interface {
	// OnStateChange reports every transition of the conversation state.
	OnStateChange(old, new State)

	// OnUserTranscript delivers the completed transcription of a caller
	// utterance.
	OnUserTranscript(text string)

	// OnAssistantTranscript delivers assistant speech text. Deltas arrive
	// with final=false, the full transcript once with final=true.
	OnAssistantTranscript(text string, final bool)

	// OnAudio delivers decoded assistant audio, PCM16 at the model's output
	// rate.
	OnAudio(pcm []byte)

	// OnFunctionCall reports a completed tool invocation request.
	OnFunctionCall(name, callID string, args json.RawMessage)

	// OnSpeechStarted fires when the caller starts speaking, including while
	// the assistant is still talking.
	OnSpeechStarted()

	// OnUsage reports the token usage and cost of one completed response.
	OnUsage(delta Usage, costDelta float64)

	// OnClosed fires when the connection drops outside of Close or a model
	// switch.
	OnClosed(err error)
}
