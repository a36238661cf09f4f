// ABOUTME: Host speech capability interfaces injected into the Bridge
// ABOUTME: A nil capability is the Unavailable variant; fakes implement these in tests

package speech

// RecognitionHandlers mirror the host recognition engine callbacks.
// The engine calls OnResult with the first final transcript, OnError with
// a native error code, and OnEnd when the session closes for any reason.
type RecognitionHandlers struct {
	OnResult func(transcript string)
	OnError  func(code string)
	OnEnd    func()
}

// Recognizer is the host speech-recognition capability. Sessions are
// single-shot, final-results-only. Start begins a session; Stop requests
// cancellation of the active one.
type Recognizer interface {
	Start(h RecognitionHandlers) error
	Stop()
}

// Voice describes one synthesis voice offered by the host
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default"`
}

// Utterance is one synthesis request with tuned playback parameters.
// VoiceName is empty for the engine default.
type Utterance struct {
	Text      string
	Lang      string
	Rate      float64
	Pitch     float64
	Volume    float64
	VoiceName string

	OnEnd   func()
	OnError func(code string)
}

// Synthesizer is the host speech-synthesis capability
type Synthesizer interface {
	Speak(u *Utterance)
	Cancel()
	Speaking() bool
	Voices() []Voice
}
