package agent

import "strings"

// ToolResult is what a tool execution produced. Plain text goes back to the
// model verbatim; the other variants instruct the gateway to act on the
// call. The string sentinels the model-facing layer uses exist only in
// ParseSentinel and ModelOutput.
type ToolResult interface {
	isToolResult()
}

// Text is a plain answer fed back to the model.
type Text struct {
	Message string
}

// SwitchAgent hands the call to another agent.
type SwitchAgent struct {
	Target string
}

// Hangup terminates the call on the gateway's initiative, counting as a
// failed unlock when the gate is still closed.
type Hangup struct{}

// HangupUser terminates the call at the caller's request.
type HangupUser struct{}

// Beep plays the alert tone and mutes assistant audio until the current
// response finishes.
type Beep struct{}

// BeepQuiet plays the alert tone, mutes like Beep, and feeds Message back
// to the model instead of the tone notice.
type BeepQuiet struct {
	Message string
}

// ModelSwitch changes the speech model to the given pricing key.
type ModelSwitch struct {
	Key string
}

// ModelSwitched acknowledges a completed model switch to the model.
type ModelSwitched struct{}

func (Text) isToolResult()          {}
func (SwitchAgent) isToolResult()   {}
func (Hangup) isToolResult()        {}
func (HangupUser) isToolResult()    {}
func (Beep) isToolResult()          {}
func (BeepQuiet) isToolResult()     {}
func (ModelSwitch) isToolResult()   {}
func (ModelSwitched) isToolResult() {}

const (
	sentinelSwitch        = "__SWITCH__:"
	sentinelHangup        = "__HANGUP__"
	sentinelHangupUser    = "__HANGUP_USER__"
	sentinelBeep          = "__BEEP__"
	sentinelBeepQuiet     = "__BEEP_QUIET__:"
	sentinelModelSwitch   = "__MODEL_SWITCH__:"
	sentinelModelSwitched = "__MODEL_SWITCHED__"
)

// ParseSentinel converts a model-boundary string into a ToolResult.
// Anything that is not a recognized sentinel is plain text.
func ParseSentinel(s string) ToolResult {
	switch {
	case strings.HasPrefix(s, sentinelSwitch):
		return SwitchAgent{Target: strings.TrimPrefix(s, sentinelSwitch)}
	case s == sentinelHangup:
		return Hangup{}
	case s == sentinelHangupUser:
		return HangupUser{}
	case s == sentinelBeep:
		return Beep{}
	case strings.HasPrefix(s, sentinelBeepQuiet):
		return BeepQuiet{Message: strings.TrimPrefix(s, sentinelBeepQuiet)}
	case strings.HasPrefix(s, sentinelModelSwitch):
		return ModelSwitch{Key: strings.TrimPrefix(s, sentinelModelSwitch)}
	case s == sentinelModelSwitched:
		return ModelSwitched{}
	default:
		return Text{Message: s}
	}
}

// ModelOutput renders the string the model receives as the function output
// for a result. Action variants that the gateway answers itself (switch,
// model switch) are rendered by the gateway with context and do not pass
// through here.
func ModelOutput(r ToolResult) string {
	switch v := r.(type) {
	case Text:
		return v.Message
	case BeepQuiet:
		return v.Message
	case Beep:
		return "Falscher Code. Sage nichts, warte still auf die naechste Eingabe."
	case HangupUser:
		return "Der Anruf wird beendet. Auf Wiederhoeren!"
	case ModelSwitched:
		return "Modellwechsel abgeschlossen."
	default:
		return ""
	}
}
