// Package realtime maintains the WebSocket conversation with the speech
// model: session configuration, audio streaming in both directions, the
// response lifecycle and per-response usage accounting.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	vadThreshold       = 0.4
	vadPrefixPadding   = 200
	vadSilenceDuration = 400

	defaultVoice       = "alloy"
	defaultTemperature = 0.8

	// How long a function result waits for the in-flight response to finish
	// before requesting the follow-up response anyway.
	functionResultWait = 5 * time.Second
)

// Config describes one model session.
type Config struct {
	APIKey string
	Host   string

	// ModelKey selects the pricing table ("mini" or "premium"), ModelID is
	// the wire identifier sent to the API.
	ModelKey string
	ModelID  string

	Voice        string
	Instructions string
	Tools        []Tool

	// TextOnly restricts the session to text responses. Used while the
	// security gate is locked so the model cannot speak the caller through.
	TextOnly bool

	Temperature float64
}

// Session is a live connection to the speech model. Safe for concurrent use.
type Session struct {
	obs SessionObserver
	log *slog.Logger

	mu   sync.Mutex // guards cfg, conn and gen
	cfg  Config
	conn *websocket.Conn
	gen  int

	writeMu sync.Mutex

	stateMu sync.Mutex
	state   State

	responseActive atomic.Bool
	closed         atomic.Bool

	usageMu    sync.Mutex
	totalUsage Usage
	totalCost  float64
}

// NewSession prepares a session. Connect must be called before use.
func NewSession(cfg Config, obs SessionObserver, log *slog.Logger) *Session {
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	return &Session{
		obs:   obs,
		log:   log.With("component", "realtime"),
		cfg:   cfg,
		state: StateIdle,
	}
}

// Connect dials the model and sends the session configuration.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	u := url.URL{
		Scheme:   "wss",
		Host:     s.cfg.Host,
		Path:     "/v1/realtime",
		RawQuery: "model=" + url.QueryEscape(s.cfg.ModelID),
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dialing model %s: %w", s.cfg.ModelID, err)
	}

	s.conn = conn
	s.gen++
	gen := s.gen

	if err := s.writeJSON(conn, s.sessionUpdateLocked()); err != nil {
		conn.Close()
		return fmt.Errorf("sending session config: %w", err)
	}

	go s.readPump(conn, gen)

	s.log.Info("model session connected", "model", s.cfg.ModelID)
	return nil
}

func (s *Session) sessionUpdateLocked() sessionUpdateEvent {
	modalities := []string{"text", "audio"}
	if s.cfg.TextOnly {
		modalities = []string{"text"}
	}
	return sessionUpdateEvent{
		Type: "session.update",
		Session: sessionConfig{
			Modalities:              modalities,
			Instructions:            s.cfg.Instructions,
			Voice:                   s.cfg.Voice,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: &transcriptionModel{Model: "whisper-1"},
			TurnDetection: &turnDetection{
				Type:              "server_vad",
				Threshold:         vadThreshold,
				PrefixPaddingMs:   vadPrefixPadding,
				SilenceDurationMs: vadSilenceDuration,
				CreateResponse:    true,
			},
			Tools:       s.cfg.Tools,
			Temperature: s.cfg.Temperature,
		},
	}
}

// Update changes instructions, tools and modalities on the live connection.
func (s *Session) Update(instructions string, tools []Tool, textOnly bool) error {
	s.mu.Lock()
	s.cfg.Instructions = instructions
	s.cfg.Tools = tools
	s.cfg.TextOnly = textOnly
	ev := s.sessionUpdateLocked()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("session not connected")
	}
	return s.writeJSON(conn, ev)
}

// SwitchModel reconnects with a different model. Accumulated usage and cost
// carry over; the session configuration is re-sent on the new connection.
func (s *Session) SwitchModel(ctx context.Context, modelKey, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.gen++ // silence the old pump before closing
		s.conn.Close()
		s.conn = nil
	}
	s.responseActive.Store(false)

	s.cfg.ModelKey = modelKey
	s.cfg.ModelID = modelID

	if err := s.connectLocked(ctx); err != nil {
		return fmt.Errorf("switching model: %w", err)
	}
	return nil
}

// Close shuts the connection down. The observer is not notified.
func (s *Session) Close() error {
	s.closed.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// SendAudio streams one chunk of caller audio, PCM16 at the model's input
// rate.
func (s *Session) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	conn := s.currentConn()
	if conn == nil {
		return fmt.Errorf("session not connected")
	}
	return s.writeJSON(conn, audioAppendEvent{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// CreateResponse asks the model to respond. A no-op while a response is
// already in flight.
func (s *Session) CreateResponse() error {
	if !s.responseActive.CompareAndSwap(false, true) {
		s.log.Debug("response.create suppressed, response in flight")
		return nil
	}
	conn := s.currentConn()
	if conn == nil {
		s.responseActive.Store(false)
		return fmt.Errorf("session not connected")
	}
	return s.writeJSON(conn, responseCreateEvent{Type: "response.create"})
}

// SendFunctionResult feeds a tool's output back to the model and requests
// the follow-up response. If a response is still in flight it waits for it
// to finish, bounded by functionResultWait.
func (s *Session) SendFunctionResult(ctx context.Context, callID, output string) error {
	conn := s.currentConn()
	if conn == nil {
		return fmt.Errorf("session not connected")
	}
	err := s.writeJSON(conn, itemCreateEvent{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(functionResultWait)
	for s.responseActive.Load() && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	s.responseActive.Store(true)
	conn = s.currentConn()
	if conn == nil {
		s.responseActive.Store(false)
		return fmt.Errorf("session not connected")
	}
	return s.writeJSON(conn, responseCreateEvent{Type: "response.create"})
}

// SendFunctionResultQuiet feeds a tool's output back without requesting a
// follow-up response; the session drops back to listening until the caller
// speaks again.
func (s *Session) SendFunctionResultQuiet(callID, output string) error {
	conn := s.currentConn()
	if conn == nil {
		return fmt.Errorf("session not connected")
	}
	err := s.writeJSON(conn, itemCreateEvent{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	})
	if err != nil {
		return err
	}
	s.setState(StateListening)
	return nil
}

// State returns the current conversation state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// ModelKey returns the pricing key of the currently connected model.
func (s *Session) ModelKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.ModelKey
}

// Totals returns the accumulated usage and cost across all responses,
// including those produced before a model switch.
func (s *Session) Totals() (Usage, float64) {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()
	return s.totalUsage, s.totalCost
}

func (s *Session) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) writeJSON(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (s *Session) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.mu.Lock()
			stale := gen != s.gen
			s.mu.Unlock()
			if stale {
				return
			}
			s.log.Warn("model connection lost", "error", err)
			s.obs.OnClosed(err)
			return
		}
		s.handleEvent(data)
	}
}

func (s *Session) setState(next State) {
	s.stateMu.Lock()
	prev := s.state
	if prev == next {
		s.stateMu.Unlock()
		return
	}
	s.state = next
	s.stateMu.Unlock()
	s.obs.OnStateChange(prev, next)
}

func (s *Session) handleEvent(data []byte) {
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warn("unparseable model event", "error", err)
		return
	}

	switch ev.Type {
	case "session.created", "session.updated":
		s.setState(StateListening)

	case "input_audio_buffer.speech_started":
		// Barge-in interrupts whatever response was playing.
		s.responseActive.Store(false)
		s.setState(StateUserSpeaking)
		s.obs.OnSpeechStarted()

	case "input_audio_buffer.speech_stopped":
		s.setState(StateThinking)

	case "conversation.item.input_audio_transcription.completed":
		if ev.Transcript != "" {
			s.obs.OnUserTranscript(ev.Transcript)
		}

	case "response.created":
		s.responseActive.Store(true)
		s.setState(StateThinking)

	case "response.audio.delta":
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			s.log.Warn("bad audio delta", "error", err)
			return
		}
		s.setState(StateSpeaking)
		s.obs.OnAudio(pcm)

	case "response.audio_transcript.delta":
		if ev.Delta != "" {
			s.obs.OnAssistantTranscript(ev.Delta, false)
		}

	case "response.audio_transcript.done":
		s.obs.OnAssistantTranscript(ev.Transcript, true)

	case "response.function_call_arguments.done":
		s.obs.OnFunctionCall(ev.Name, ev.CallID, ev.Arguments)

	case "response.done":
		s.responseActive.Store(false)
		s.setState(StateListening)
		if ev.Response != nil && ev.Response.Usage != nil {
			delta := ev.Response.Usage.toUsage()
			cost := Cost(delta, RatesFor(s.ModelKey()))
			s.usageMu.Lock()
			s.totalUsage.Add(delta)
			s.totalCost += cost
			s.usageMu.Unlock()
			s.obs.OnUsage(delta, cost)
		}

	case "error":
		if ev.Error != nil {
			// The model rejects response.create while another response is
			// running. Harmless, the running response covers the turn.
			if strings.Contains(ev.Error.Message, "already has an active response") {
				s.responseActive.Store(true)
				s.log.Debug("response already active", "message", ev.Error.Message)
				return
			}
			// Any other error means the expected response is not coming.
			s.responseActive.Store(false)
			s.log.Error("model error", "code", ev.Error.Code, "message", ev.Error.Message)
		}
	}
}
