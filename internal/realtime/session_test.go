package realtime

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// recordingObserver collects every observer callback for assertions.
type recordingObserver struct {
	states      []State
	userText    []string
	assistText  []string
	assistFinal []bool
	audio       [][]byte
	funcNames   []string
	funcCallIDs []string
	funcArgs    []string
	speechStart int
	usage       []Usage
	costs       []float64
	closedErrs  []error
}

func (o *recordingObserver) OnStateChange(_, next State)    { o.states = append(o.states, next) }
func (o *recordingObserver) OnUserTranscript(text string)   { o.userText = append(o.userText, text) }
func (o *recordingObserver) OnAssistantTranscript(text string, final bool) {
	o.assistText = append(o.assistText, text)
	o.assistFinal = append(o.assistFinal, final)
}
func (o *recordingObserver) OnAudio(pcm []byte) { o.audio = append(o.audio, pcm) }
func (o *recordingObserver) OnFunctionCall(name, callID string, args json.RawMessage) {
	o.funcNames = append(o.funcNames, name)
	o.funcCallIDs = append(o.funcCallIDs, callID)
	o.funcArgs = append(o.funcArgs, string(args))
}
func (o *recordingObserver) OnSpeechStarted() { o.speechStart++ }
func (o *recordingObserver) OnUsage(delta Usage, cost float64) {
	o.usage = append(o.usage, delta)
	o.costs = append(o.costs, cost)
}
func (o *recordingObserver) OnClosed(err error) { o.closedErrs = append(o.closedErrs, err) }

func newTestSession(t *testing.T, obs SessionObserver) *Session {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSession(Config{
		APIKey:   "sk-test",
		Host:     "api.example.com",
		ModelKey: "mini",
		ModelID:  "test-model",
	}, obs, log)
}

func TestHandleEventStateFlow(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestSession(t, obs)

	events := []string{
		`{"type":"session.created"}`,
		`{"type":"input_audio_buffer.speech_started"}`,
		`{"type":"input_audio_buffer.speech_stopped"}`,
		`{"type":"response.created","response":{"id":"r1"}}`,
		`{"type":"response.audio.delta","delta":"` + base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}) + `"}`,
		`{"type":"response.done","response":{"id":"r1","status":"completed"}}`,
	}
	for _, ev := range events {
		s.handleEvent([]byte(ev))
	}

	want := []State{StateListening, StateUserSpeaking, StateThinking, StateSpeaking, StateListening}
	if len(obs.states) != len(want) {
		t.Fatalf("states = %v, want %v", obs.states, want)
	}
	for i, st := range want {
		if obs.states[i] != st {
			t.Errorf("state[%d] = %s, want %s", i, obs.states[i], st)
		}
	}
	if obs.speechStart != 1 {
		t.Errorf("speech started = %d, want 1", obs.speechStart)
	}
	if len(obs.audio) != 1 || len(obs.audio[0]) != 4 {
		t.Errorf("audio = %v", obs.audio)
	}
	if s.State() != StateListening {
		t.Errorf("final state = %s", s.State())
	}
}

func TestHandleEventTranscripts(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestSession(t, obs)

	s.handleEvent([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"sieben zwei drei vier"}`))
	s.handleEvent([]byte(`{"type":"response.audio_transcript.delta","delta":"Willkommen"}`))
	s.handleEvent([]byte(`{"type":"response.audio_transcript.done","transcript":"Willkommen."}`))

	if len(obs.userText) != 1 || obs.userText[0] != "sieben zwei drei vier" {
		t.Errorf("user transcript = %v", obs.userText)
	}
	if len(obs.assistText) != 2 {
		t.Fatalf("assistant transcripts = %v", obs.assistText)
	}
	if obs.assistFinal[0] || !obs.assistFinal[1] {
		t.Errorf("final flags = %v", obs.assistFinal)
	}
}

func TestHandleEventFunctionCall(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestSession(t, obs)

	s.handleEvent([]byte(`{"type":"response.function_call_arguments.done","name":"unlock","call_id":"c-1","arguments":"{\"code\":\"7234\"}"}`))

	if len(obs.funcNames) != 1 || obs.funcNames[0] != "unlock" {
		t.Fatalf("function names = %v", obs.funcNames)
	}
	if obs.funcCallIDs[0] != "c-1" {
		t.Errorf("call id = %s", obs.funcCallIDs[0])
	}
	if obs.funcArgs[0] != `{"code":"7234"}` {
		t.Errorf("args = %s", obs.funcArgs[0])
	}
}

func TestHandleEventUsageAccumulates(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestSession(t, obs)

	done := `{"type":"response.done","response":{"id":"r1","usage":{
		"input_tokens":150,"output_tokens":80,
		"input_token_details":{"text_tokens":50,"audio_tokens":100},
		"output_token_details":{"text_tokens":30,"audio_tokens":50}}}}`
	s.handleEvent([]byte(done))
	s.handleEvent([]byte(done))

	total, cost := s.Totals()
	if total.InputTextTokens != 100 || total.InputAudioTokens != 200 {
		t.Errorf("input totals = %+v", total)
	}
	if total.OutputTextTokens != 60 || total.OutputAudioTokens != 100 {
		t.Errorf("output totals = %+v", total)
	}

	perResponse := Cost(Usage{
		InputTextTokens: 50, InputAudioTokens: 100,
		OutputTextTokens: 30, OutputAudioTokens: 50,
	}, RatesFor("mini"))
	if diff := cost - 2*perResponse; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("cost = %f, want %f", cost, 2*perResponse)
	}
	if len(obs.usage) != 2 {
		t.Errorf("usage callbacks = %d, want 2", len(obs.usage))
	}
}

func TestHandleEventUsageWithoutDetails(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestSession(t, obs)

	s.handleEvent([]byte(`{"type":"response.done","response":{"id":"r1","usage":{"input_tokens":40,"output_tokens":10}}}`))

	total, _ := s.Totals()
	if total.InputTextTokens != 40 || total.OutputTextTokens != 10 {
		t.Errorf("totals = %+v", total)
	}
}

func TestHandleEventActiveResponseErrorIgnored(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestSession(t, obs)

	msg := `{"type":"error","error":{"code":"conversation_already_has_active_response","message":"Conversation already has an active response"}}`
	s.handleEvent([]byte(msg))

	if !s.responseActive.Load() {
		t.Error("active-response error should mark a response in flight")
	}
	if len(obs.closedErrs) != 0 {
		t.Errorf("observer closed = %v", obs.closedErrs)
	}
}

func TestResponseDoneClearsActive(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestSession(t, obs)

	s.handleEvent([]byte(`{"type":"response.created","response":{"id":"r1"}}`))
	if !s.responseActive.Load() {
		t.Fatal("response.created should mark active")
	}
	s.handleEvent([]byte(`{"type":"response.done","response":{"id":"r1"}}`))
	if s.responseActive.Load() {
		t.Error("response.done should clear active")
	}
}

func TestSpeechStartedClearsActive(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestSession(t, obs)

	s.handleEvent([]byte(`{"type":"response.created","response":{"id":"r1"}}`))
	if !s.responseActive.Load() {
		t.Fatal("response.created should mark active")
	}
	// Barge-in cancels the running response server-side; no response.done
	// follows for it.
	s.handleEvent([]byte(`{"type":"input_audio_buffer.speech_started"}`))
	if s.responseActive.Load() {
		t.Error("barge-in should clear the in-flight response")
	}
}

func TestModelErrorClearsActive(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestSession(t, obs)

	s.handleEvent([]byte(`{"type":"response.created","response":{"id":"r1"}}`))
	s.handleEvent([]byte(`{"type":"error","error":{"code":"server_error","message":"internal"}}`))

	if s.responseActive.Load() {
		t.Error("a failed response must not stay marked in flight")
	}
	if len(obs.closedErrs) != 0 {
		t.Errorf("observer closed = %v", obs.closedErrs)
	}
}

// attachTestConn wires the session to an in-process websocket server and
// returns a channel of the JSON events the server receives.
func attachTestConn(t *testing.T, s *Session) <-chan map[string]any {
	t.Helper()
	msgs := make(chan map[string]any, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var ev map[string]any
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			msgs <- ev
		}
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dialing test server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return msgs
}

func TestSendFunctionResultQuietSkipsResponse(t *testing.T) {
	s := newTestSession(t, &recordingObserver{})
	msgs := attachTestConn(t, s)
	s.setState(StateThinking)

	if err := s.SendFunctionResultQuiet("c-1", "Falscher Code."); err != nil {
		t.Fatalf("SendFunctionResultQuiet: %v", err)
	}

	select {
	case ev := <-msgs:
		if ev["type"] != "conversation.item.create" {
			t.Fatalf("first event = %v, want conversation.item.create", ev["type"])
		}
		item, _ := ev["item"].(map[string]any)
		if item["call_id"] != "c-1" || item["output"] != "Falscher Code." {
			t.Errorf("item = %v", item)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("function output never reached the server")
	}

	// No response.create may follow; the session waits for the caller.
	select {
	case ev := <-msgs:
		t.Fatalf("unexpected event %v after quiet result", ev["type"])
	case <-time.After(300 * time.Millisecond):
	}

	if s.State() != StateListening {
		t.Errorf("state = %s, want %s", s.State(), StateListening)
	}
}

func TestHandleEventGarbage(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestSession(t, obs)

	s.handleEvent([]byte(`not json`))
	s.handleEvent([]byte(`{"type":"response.audio.delta","delta":"%%%not-base64%%%"}`))

	if len(obs.audio) != 0 {
		t.Errorf("audio = %v, want none", obs.audio)
	}
}

func TestSendAudioNotConnected(t *testing.T) {
	s := newTestSession(t, &recordingObserver{})
	if err := s.SendAudio([]byte{0, 0}); err == nil {
		t.Error("expected error when not connected")
	}
	if err := s.SendAudio(nil); err != nil {
		t.Errorf("empty audio should be a no-op, got %v", err)
	}
}

func TestModelRatesKnownKeys(t *testing.T) {
	for _, key := range []string{"mini", "premium"} {
		r := RatesFor(key)
		if r.InputText <= 0 || r.OutputAudio <= 0 {
			t.Errorf("%s rates incomplete: %+v", key, r)
		}
	}
}
