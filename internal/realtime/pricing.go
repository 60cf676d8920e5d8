package realtime

// Rates are USD per one million tokens.
type Rates struct {
	InputText   float64
	InputAudio  float64
	OutputText  float64
	OutputAudio float64
}

var modelRates = map[string]Rates{
	"mini":    {InputText: 0.60, InputAudio: 10.00, OutputText: 2.40, OutputAudio: 20.00},
	"premium": {InputText: 4.00, InputAudio: 32.00, OutputText: 16.00, OutputAudio: 64.00},
}

// RatesFor returns the pricing for a model key. Unknown keys fall back to
// the mini rates.
func RatesFor(key string) Rates {
	if r, ok := modelRates[key]; ok {
		return r
	}
	return modelRates["mini"]
}

// Usage counts the tokens of one or more responses.
type Usage struct {
	InputTextTokens   int
	InputAudioTokens  int
	OutputTextTokens  int
	OutputAudioTokens int
}

// Add accumulates another usage delta.
func (u *Usage) Add(d Usage) {
	u.InputTextTokens += d.InputTextTokens
	u.InputAudioTokens += d.InputAudioTokens
	u.OutputTextTokens += d.OutputTextTokens
	u.OutputAudioTokens += d.OutputAudioTokens
}

// Cost prices a usage delta against the given rates.
func Cost(u Usage, r Rates) float64 {
	const million = 1_000_000
	return float64(u.InputTextTokens)*r.InputText/million +
		float64(u.InputAudioTokens)*r.InputAudio/million +
		float64(u.OutputTextTokens)*r.OutputText/million +
		float64(u.OutputAudioTokens)*r.OutputAudio/million
}
