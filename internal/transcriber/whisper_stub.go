//go:build !cgo

package transcriber

import (
	"context"
	"errors"

	"github.com/jackzampolin/syncbridge/internal/transcript"
)

// WhisperEngine is a no-cgo stub that fails gracefully when the binary was
// built without cgo (whisper.cpp's bindings require it).
type WhisperEngine struct{}

func NewWhisperEngine(modelPath, language string) (*WhisperEngine, error) {
	return nil, errors.New("whisper engine unavailable: built without cgo")
}

func (w *WhisperEngine) Close() error { return nil }

func (w *WhisperEngine) Transcribe(_ context.Context, _ string, _ []string) (*transcript.Artifact, error) {
	return nil, errors.New("transcription unavailable: built without cgo")
}
