// ABOUTME: Typed error taxonomy for the speech bridge
// ABOUTME: Capability and state failures carry the user-facing French message

package speech

import "fmt"

// UnsupportedError means the host environment lacks the capability
type UnsupportedError struct {
	Capability string // "recognition" or "synthesis"
}

func (e *UnsupportedError) Error() string {
	if e.Capability == "synthesis" {
		return "La synthèse vocale n'est pas supportée par cet environnement"
	}
	return "La reconnaissance vocale n'est pas supportée par cet environnement"
}

// AlreadyRecordingError means a transcription session is already active.
// Sessions never queue; the second caller fails fast.
type AlreadyRecordingError struct{}

func (e *AlreadyRecordingError) Error() string {
	return "Enregistrement déjà en cours"
}

// RecognitionError wraps a native recognition engine error code
type RecognitionError struct {
	Code string
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("Erreur de reconnaissance vocale: %s", e.Code)
}

// SynthesisError wraps a native synthesis engine error code
type SynthesisError struct {
	Code string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("Erreur de synthèse vocale: %s", e.Code)
}
