// ABOUTME: Bridge adapting host speech capabilities into blocking operations
// ABOUTME: One transcription session and one audible utterance at a time

package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Fixed playback parameters for the target locale
const (
	Locale       = "fr-FR"
	localePrefix = "fr"
	speechRate   = 0.9
	speechPitch  = 1.0
	speechVolume = 1.0
)

// Bridge wraps the host recognition and synthesis capabilities. Either may
// be nil (Unavailable); the corresponding operations then fail with
// UnsupportedError.
type Bridge struct {
	mu         sync.Mutex
	recognizer Recognizer
	synth      Synthesizer
	recording  bool
	logger     *slog.Logger
}

// NewBridge creates a bridge over the given capabilities.
// Pass nil logger for default.
func NewBridge(recognizer Recognizer, synth Synthesizer, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		recognizer: recognizer,
		synth:      synth,
		logger:     logger.With("component", "speech"),
	}
}

// transcription carries one session outcome. An empty transcript with nil
// error means the session ended without recognizing anything.
type transcription struct {
	transcript string
	err        error
}

// TranscribeOnce records a single utterance and returns the first final
// transcript. At most one session runs at a time; a concurrent call fails
// with AlreadyRecordingError. The recording flag is cleared on every exit
// path. An empty transcript with nil error means the session was stopped
// before anything was recognized.
func (b *Bridge) TranscribeOnce(ctx context.Context) (string, error) {
	if b.recognizer == nil {
		return "", &UnsupportedError{Capability: "recognition"}
	}

	b.mu.Lock()
	if b.recording {
		b.mu.Unlock()
		return "", &AlreadyRecordingError{}
	}
	b.recording = true
	b.mu.Unlock()

	done := make(chan transcription, 1)
	finish := func(o transcription) {
		// First outcome wins; OnEnd after OnResult is ignored
		select {
		case done <- o:
		default:
		}
	}

	err := b.recognizer.Start(RecognitionHandlers{
		OnResult: func(transcript string) { finish(transcription{transcript: transcript}) },
		OnError:  func(code string) { finish(transcription{err: &RecognitionError{Code: code}}) },
		OnEnd:    func() { finish(transcription{}) },
	})
	if err != nil {
		b.clearRecording()
		return "", &RecognitionError{Code: err.Error()}
	}

	select {
	case o := <-done:
		b.clearRecording()
		if o.err != nil {
			b.logger.Debug("transcription failed", "error", o.err)
			return "", o.err
		}
		return o.transcript, nil
	case <-ctx.Done():
		b.recognizer.Stop()
		b.clearRecording()
		return "", ctx.Err()
	}
}

// StopRecording requests cancellation of the active transcription session.
// Idempotent; a no-op when nothing is recording. The pending TranscribeOnce
// may then return an empty transcript.
func (b *Bridge) StopRecording() {
	b.mu.Lock()
	active := b.recording
	b.recording = false
	b.mu.Unlock()

	if active && b.recognizer != nil {
		b.recognizer.Stop()
	}
}

// IsRecording reports whether a transcription session is active
func (b *Bridge) IsRecording() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recording
}

func (b *Bridge) clearRecording() {
	b.mu.Lock()
	b.recording = false
	b.mu.Unlock()
}

// Speak plays the text aloud and returns when playback completes. Any
// utterance still playing is cancelled first, so at most one is audible.
// voiceHint is matched best-effort against available voices by exact name
// or locale substring; unmatched hints fall back to the engine default.
func (b *Bridge) Speak(ctx context.Context, text, voiceHint string) error {
	if b.synth == nil {
		return &UnsupportedError{Capability: "synthesis"}
	}

	b.synth.Cancel()

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	b.synth.Speak(&Utterance{
		Text:      text,
		Lang:      Locale,
		Rate:      speechRate,
		Pitch:     speechPitch,
		Volume:    speechVolume,
		VoiceName: b.resolveVoice(voiceHint),
		OnEnd:     func() { finish(nil) },
		OnError:   func(code string) { finish(&SynthesisError{Code: code}) },
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		b.synth.Cancel()
		return ctx.Err()
	}
}

// resolveVoice picks a voice name for the hint, or empty for the default
func (b *Bridge) resolveVoice(hint string) string {
	if hint == "" {
		return ""
	}
	for _, v := range b.synth.Voices() {
		if v.Name == hint || strings.Contains(v.Lang, localePrefix) {
			return v.Name
		}
	}
	return ""
}

// ListVoices returns the host voices filtered to the supported locale
// families. Pure query, no side effects.
func (b *Bridge) ListVoices() []Voice {
	if b.synth == nil {
		return nil
	}
	var out []Voice
	for _, v := range b.synth.Voices() {
		if strings.Contains(v.Lang, "fr") || strings.Contains(v.Lang, "en") {
			out = append(out, v)
		}
	}
	return out
}

// IsSpeaking reports whether an utterance is currently playing
func (b *Bridge) IsSpeaking() bool {
	if b.synth == nil {
		return false
	}
	return b.synth.Speaking()
}

// StopSpeaking cancels current playback. Idempotent.
func (b *Bridge) StopSpeaking() {
	if b.synth != nil {
		b.synth.Cancel()
	}
}
