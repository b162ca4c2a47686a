package media

import "context"

// Transcriber is the external speech-to-text collaborator. It is out of
// scope per the purpose statement's "STT/TTS provider implementations" —
// the core only defines the contract it dispatches audio ingestion through.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (text string, err error)
}

// Synthesizer is the external text-to-speech collaborator invoked for the
// local-desktop transport's outbound audio streaming.
type Synthesizer interface {
	// Synthesize returns the encoded audio bytes, a MIME type, an estimated
	// duration in milliseconds, and the voice identifier used.
	Synthesize(ctx context.Context, text string) (audio []byte, mimeType string, durationMs int, voice string, err error)
}
