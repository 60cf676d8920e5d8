package realtime

import "encoding/json"

// serverEvent is the envelope of every event the model sends. Only the
// fields relevant to the event type are populated.
type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta, response.audio_transcript.delta
	Delta string `json:"delta"`

	// response.audio_transcript.done
	Transcript string `json:"transcript"`

	// response.function_call_arguments.done
	Name      string          `json:"name"`
	CallID    string          `json:"call_id"`
	Arguments json.RawMessage `json:"arguments"`

	// response.created, response.done
	Response *responseBody `json:"response"`

	// error
	Error *errorBody `json:"error"`
}

type responseBody struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Usage  *responseUsage `json:"usage"`
}

type responseUsage struct {
	TotalTokens        int           `json:"total_tokens"`
	InputTokens        int           `json:"input_tokens"`
	OutputTokens       int           `json:"output_tokens"`
	InputTokenDetails  *tokenDetails `json:"input_token_details"`
	OutputTokenDetails *tokenDetails `json:"output_token_details"`
}

type tokenDetails struct {
	TextTokens   int `json:"text_tokens"`
	AudioTokens  int `json:"audio_tokens"`
	CachedTokens int `json:"cached_tokens"`
}

type errorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (u *responseUsage) toUsage() Usage {
	if u == nil {
		return Usage{}
	}
	out := Usage{}
	if u.InputTokenDetails != nil {
		out.InputTextTokens = u.InputTokenDetails.TextTokens
		out.InputAudioTokens = u.InputTokenDetails.AudioTokens
	} else {
		out.InputTextTokens = u.InputTokens
	}
	if u.OutputTokenDetails != nil {
		out.OutputTextTokens = u.OutputTokenDetails.TextTokens
		out.OutputAudioTokens = u.OutputTokenDetails.AudioTokens
	} else {
		out.OutputTextTokens = u.OutputTokens
	}
	return out
}

// Tool is a function definition in the model's session configuration.
type Tool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// sessionUpdateEvent configures the model session.
type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string            `json:"modalities"`
	Instructions            string              `json:"instructions"`
	Voice                   string              `json:"voice"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *transcriptionModel `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection      `json:"turn_detection"`
	Tools                   []Tool              `json:"tools"`
	Temperature             float64             `json:"temperature"`
}

type transcriptionModel struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

type audioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type responseCreateEvent struct {
	Type string `json:"type"`
}

type itemCreateEvent struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}
